// Package cli implements the meterdist command line.
package cli

import (
	"fmt"
	"io"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"metering-dist/internal/config"
)

type app struct {
	stdout io.Writer
	stderr io.Writer

	envFile string
	quiet   bool

	cfg    config.Config
	logger *log.Logger
}

// NewRootCommand builds the meterdist command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:               "meterdist",
		Short:             "Distribute metering readings into per-category workbooks",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Load environment variables from this file (default .env when present)")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Suppress pipeline log output")

	root.AddCommand(a.newRunCommand())
	root.AddCommand(a.newRegistryCommand())
	root.AddCommand(a.newMigrateCommand())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	var out io.Writer = a.stderr
	if a.quiet {
		out = io.Discard
	}
	a.logger = log.New(out, "", log.LstdFlags)
	return nil
}
