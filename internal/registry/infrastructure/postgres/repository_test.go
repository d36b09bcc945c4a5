package postgres

import (
	"strings"
	"testing"
)

func TestMeteringPointRepository_SchemaUsesConfiguredTable(t *testing.T) {
	ddl := NewMeteringPointRepository(nil, WithMeteringPointTable("registry_2026")).Schema()
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS registry_2026 (") {
		t.Fatalf("expected configured table in DDL, got %s", ddl)
	}
	if strings.Contains(ddl, defaultMeteringPointsTable) {
		t.Fatalf("unexpected default table in DDL: %s", ddl)
	}

	ddl = NewMeteringPointRepository(nil, WithMeteringPointTable("")).Schema()
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS metering_points (") {
		t.Fatalf("expected default table in DDL, got %s", ddl)
	}
}
