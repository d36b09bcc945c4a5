package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"metering-dist/internal/bootstrap"
	"metering-dist/internal/config"
	distapp "metering-dist/internal/distribution/application"
	distinterfaces "metering-dist/internal/distribution/interfaces"
	readings "metering-dist/internal/readings/domain"
)

type runOptions struct {
	format   string
	registry string
	out      string
	report   string
}

func (a *app) newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [flags] FILE.json...",
		Short: "Distribute reading documents into a workbook archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Input format: MQ or CEEPS (default from config)")
	cmd.Flags().StringVarP(&opts.registry, "registry", "r", "", "Registry workbook (required unless the registry source is postgres)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "files.zip", "Archive output path")
	cmd.Flags().StringVar(&opts.report, "report", "", "Also write a diagnostics PDF to this path")
	return cmd
}

func (a *app) run(ctx context.Context, opts *runOptions, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format := opts.format
	if format == "" {
		format = a.cfg.DefaultFormat
	}
	parsed, err := readings.ParseFormat(format)
	if err != nil {
		return err
	}

	docs := make([]readings.Document, 0, len(paths))
	for _, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		docs = append(docs, readings.Document{Name: filepath.Base(path), Body: body})
	}

	cfg := a.cfg
	in := distapp.RunInput{Documents: docs, Format: parsed}
	if opts.registry != "" {
		file, err := os.Open(opts.registry)
		if err != nil {
			return fmt.Errorf("open registry: %w", err)
		}
		defer file.Close()
		in.Registry = file
		cfg.RegistrySource = config.RegistrySourceUpload
	} else if cfg.RegistrySource != config.RegistrySourcePostgres {
		return errors.New("--registry is required unless REGISTRY_SOURCE=postgres")
	}

	db, err := bootstrap.OpenDB(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	service, err := bootstrap.NewService(cfg, db, a.logger)
	if err != nil {
		return err
	}

	result, err := service.Run(ctx, in)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.out, result.Archive.Data, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if opts.report != "" {
		pdf, err := distinterfaces.BuildDiagnosticsPDF(distinterfaces.ReportInfo{
			RunID:       result.RunID,
			Format:      string(result.Format),
			Documents:   result.Summary.Documents,
			Workbooks:   result.Archive.Workbooks,
			GeneratedAt: result.StartedAt,
		}, result.Diagnostics.Snapshot())
		if err != nil {
			return fmt.Errorf("build report: %w", err)
		}
		if err := os.WriteFile(opts.report, pdf, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	printResult(a.stdout, result, opts.out)
	return nil
}
