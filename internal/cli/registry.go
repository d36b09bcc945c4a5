package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"metering-dist/internal/bootstrap"
	registry "metering-dist/internal/registry/domain"
	registryrepo "metering-dist/internal/registry/infrastructure/postgres"
	"metering-dist/internal/registry/infrastructure/xlsx"
)

func (a *app) newRegistryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the metering point registry",
	}

	var (
		path       string
		initSchema bool
	)
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the Postgres registry with the contents of a workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			records, err := xlsx.FileSource{Path: path}.Load(ctx)
			if err != nil {
				return err
			}
			reg, err := registry.NewRegistry(records)
			if err != nil {
				return err
			}

			if a.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for registry import")
			}
			db, err := bootstrap.OpenDB(a.cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := registryrepo.NewMeteringPointRepository(db, registryrepo.WithMeteringPointTable(a.cfg.RegistryTable))
			if initSchema {
				if _, err := db.ExecContext(ctx, repo.Schema()); err != nil {
					return fmt.Errorf("apply schema: %w", err)
				}
			}
			if err := repo.ReplaceAll(ctx, records); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s %d records (%d metering points)\n", boldGreen("Imported"), len(records), reg.Len())
			for _, id := range reg.Duplicates() {
				fmt.Fprintf(a.stdout, "%s %s is listed in more than one category\n", boldYellow("warning:"), id)
			}
			return nil
		},
	}
	importCmd.Flags().StringVarP(&path, "registry", "r", "", "Registry workbook to import")
	importCmd.Flags().BoolVar(&initSchema, "init-schema", false, "Create the registry table if it does not exist")
	_ = importCmd.MarkFlagRequired("registry")

	cmd.AddCommand(importCmd)
	return cmd
}

func (a *app) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the registry and run history tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrate")
			}
			db, err := bootstrap.OpenDB(a.cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := bootstrap.ApplySchema(cmd.Context(), db, a.cfg); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, boldGreen("Schema applied"))
			return nil
		},
	}
}
