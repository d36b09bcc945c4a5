package bootstrap

import (
	"io"
	"log"
	"testing"

	"metering-dist/internal/config"
)

func TestNewService_Upload(t *testing.T) {
	svc, err := NewService(config.Default(), nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc == nil {
		t.Fatalf("expected service")
	}
}

func TestNewService_PostgresRequiresDB(t *testing.T) {
	cfg := config.Default()
	cfg.RegistrySource = config.RegistrySourcePostgres
	cfg.DatabaseURL = "postgres://unused"
	if _, err := NewService(cfg, nil, log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("expected error without database")
	}
}

func TestOpenDB_NoURL(t *testing.T) {
	db, err := OpenDB(config.Default())
	if err != nil || db != nil {
		t.Fatalf("expected no database, got %v %v", db, err)
	}
}

func TestLayout(t *testing.T) {
	layout := Layout(config.ExportConfig{Formatting: true, FixedColumnPixels: 100, Selection: "B3"})
	if !layout.Formatting || layout.FixedColumnPixels != 100 || layout.Selection != "B3" {
		t.Fatalf("unexpected layout: %+v", layout)
	}
}
