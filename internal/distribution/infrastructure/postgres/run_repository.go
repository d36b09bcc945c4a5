package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	distribution "metering-dist/internal/distribution/domain"
)

const defaultRunLimit = 50

// RunRepository stores distribution run history.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record inserts a run. Recording the same run id twice is a no-op.
func (r *RunRepository) Record(ctx context.Context, run distribution.RunRecord) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if run.ID == "" {
		return errors.New("run repo: empty run id")
	}
	workbooks, err := json.Marshal(nonNil(run.Workbooks))
	if err != nil {
		return err
	}
	diag := run.Diagnostics
	if len(diag) == 0 {
		diag = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO distribution_runs (
	id, format, status, error, documents, series_routed, workbooks, diagnostics, started_at, finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Format, run.Status, run.Error, run.Documents, run.SeriesRouted,
		workbooks, diag, run.StartedAt.UTC(), run.FinishedAt.UTC())
	return err
}

// ListRecent returns the newest runs first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]distribution.RunRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, format, status, error, documents, series_routed, workbooks, diagnostics, started_at, finished_at
FROM distribution_runs
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []distribution.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRun returns a run by id, or nil when missing.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*distribution.RunRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, format, status, error, documents, series_routed, workbooks, diagnostics, started_at, finished_at
FROM distribution_runs
WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*distribution.RunRecord, error) {
	var (
		run       distribution.RunRecord
		errMsg    sql.NullString
		workbooks []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.Format,
		&run.Status,
		&errMsg,
		&run.Documents,
		&run.SeriesRouted,
		&workbooks,
		&run.Diagnostics,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if len(workbooks) > 0 {
		if err := json.Unmarshal(workbooks, &run.Workbooks); err != nil {
			return nil, fmt.Errorf("run repo: workbooks of %s: %w", run.ID, err)
		}
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Schema is the DDL expected by the repository.
const Schema = `
CREATE TABLE IF NOT EXISTS distribution_runs (
	id TEXT PRIMARY KEY,
	format TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	documents INTEGER NOT NULL DEFAULT 0,
	series_routed INTEGER NOT NULL DEFAULT 0,
	workbooks JSONB NOT NULL DEFAULT '[]',
	diagnostics JSONB NOT NULL DEFAULT '{}',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS distribution_runs_started_idx ON distribution_runs (started_at DESC);
`
