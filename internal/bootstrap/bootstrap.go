// Package bootstrap wires the distribution pipeline from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"metering-dist/internal/config"
	distapp "metering-dist/internal/distribution/application"
	distrepo "metering-dist/internal/distribution/infrastructure/postgres"
	distinterfaces "metering-dist/internal/distribution/interfaces"
	"metering-dist/internal/notify"
	readingsapp "metering-dist/internal/readings/application"
	registryrepo "metering-dist/internal/registry/infrastructure/postgres"
	"metering-dist/internal/registry/infrastructure/xlsx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens and pings the configured database. It returns nil when no
// database is configured.
func OpenDB(cfg config.Config) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// ApplySchema creates the registry table named in cfg and the run history table.
func ApplySchema(ctx context.Context, db *sql.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("bootstrap: nil db")
	}
	registryRepo := registryrepo.NewMeteringPointRepository(db, registryrepo.WithMeteringPointTable(cfg.RegistryTable))
	for _, ddl := range []string{registryRepo.Schema(), distrepo.Schema} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Layout maps export configuration to the workbook layout.
func Layout(cfg config.ExportConfig) distinterfaces.Layout {
	return distinterfaces.Layout{
		Formatting:        cfg.Formatting,
		FixedColumnPixels: cfg.FixedColumnPixels,
		Selection:         cfg.Selection,
	}
}

// NewService builds the pipeline service. db may be nil unless the registry
// source is postgres.
func NewService(cfg config.Config, db *sql.DB, logger *log.Logger) (*distapp.Service, error) {
	exporter, err := distinterfaces.NewExporter(logger, distinterfaces.WithLayout(Layout(cfg.Export)))
	if err != nil {
		return nil, err
	}
	opts := []distapp.ServiceOption{distapp.WithRecordReader(xlsx.ReadRecords)}
	if cfg.RegistrySource == config.RegistrySourcePostgres {
		if db == nil {
			return nil, errors.New("bootstrap: postgres registry without database")
		}
		repo := registryrepo.NewMeteringPointRepository(db, registryrepo.WithMeteringPointTable(cfg.RegistryTable))
		opts = append(opts, distapp.WithRegistrySource(config.RegistrySourcePostgres, repo))
	}
	if db != nil {
		opts = append(opts, distapp.WithRunHistory(distrepo.NewRunRepository(db)))
	}
	if cfg.Notify.WebhookURL != "" {
		opts = append(opts, distapp.WithNotifier(notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)))
	}
	return distapp.NewService(readingsapp.NewExtractor(logger), exporter, logger, opts...)
}
