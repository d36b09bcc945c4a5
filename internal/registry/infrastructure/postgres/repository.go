package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	registry "metering-dist/internal/registry/domain"
)

const defaultMeteringPointsTable = "metering_points"

// MeteringPointRepository is a Postgres implementation of the registry source.
type MeteringPointRepository struct {
	db    *sql.DB
	table string
}

// NewMeteringPointRepository constructs a repository.
func NewMeteringPointRepository(db *sql.DB, opts ...MeteringPointOption) *MeteringPointRepository {
	repo := &MeteringPointRepository{db: db, table: defaultMeteringPointsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// MeteringPointOption configures the repository.
type MeteringPointOption func(*MeteringPointRepository)

// WithMeteringPointTable overrides the table name.
func WithMeteringPointTable(table string) MeteringPointOption {
	return func(repo *MeteringPointRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Load implements registry.Source.
func (r *MeteringPointRepository) Load(ctx context.Context) ([]registry.MeteringPointRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("metering point repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT point_id, category, position, distributor_id, payer_name
FROM %s
ORDER BY CASE category WHEN 'supply' THEN 0 WHEN 'purchase' THEN 1 ELSE 2 END, position ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.MeteringPointRecord
	for rows.Next() {
		var (
			record      registry.MeteringPointRecord
			category    string
			distributor int
			payerName   sql.NullString
		)
		if err := rows.Scan(&record.PointID, &category, &record.Position, &distributor, &payerName); err != nil {
			return nil, err
		}
		parsed, err := registry.ParseCategory(category)
		if err != nil {
			return nil, err
		}
		record.Category = parsed
		record.Distributor = registry.DistributorID(distributor)
		if payerName.Valid {
			record.PayerName = payerName.String
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReplaceAll swaps the stored registry for records in one transaction.
func (r *MeteringPointRepository) ReplaceAll(ctx context.Context, records []registry.MeteringPointRecord) error {
	if r == nil || r.db == nil {
		return errors.New("metering point repo: nil db")
	}
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", r.table)); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	point_id,
	category,
	position,
	distributor_id,
	payer_name
) VALUES (
	$1, $2, $3, $4, $5
)
ON CONFLICT (category, point_id, position)
DO UPDATE SET
	distributor_id = EXCLUDED.distributor_id,
	payer_name = EXCLUDED.payer_name,
	updated_at = NOW()`, r.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, record := range records {
		if _, err := stmt.ExecContext(
			ctx,
			record.PointID,
			string(record.Category),
			record.Position,
			int(record.Distributor),
			record.PayerName,
		); err != nil {
			return fmt.Errorf("metering point repo: insert %s: %w", record.PointID, err)
		}
	}
	return tx.Commit()
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %s (
	point_id TEXT NOT NULL,
	category TEXT NOT NULL,
	position INTEGER NOT NULL,
	distributor_id INTEGER NOT NULL,
	payer_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (category, point_id, position)
)`

// Schema returns the DDL for the table the repository reads and writes.
func (r *MeteringPointRepository) Schema() string {
	return fmt.Sprintf(schemaTemplate, r.table)
}
