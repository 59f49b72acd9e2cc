package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/indicator"
)

type RunStore struct{ pool *pgxpool.Pool }

func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// EnsureSchema creates the run tables when absent.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			period_start TEXT NOT NULL,
			period_end TEXT NOT NULL,
			sources TEXT[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS run_indicators (
			run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INT NOT NULL,
			id_code TEXT NOT NULL,
			categoria TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			total_value DOUBLE PRECISION NOT NULL,
			total_population DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, position)
		);

		CREATE TABLE IF NOT EXISTS run_results (
			run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			indicator_position INT NOT NULL,
			position INT NOT NULL,
			source_id TEXT NOT NULL,
			source TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			population DOUBLE PRECISION NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, indicator_position, position)
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure run schema: %w", err)
	}
	return nil
}

// SaveRun writes the run header, one row per indicator and one row per
// (indicator, source) detail, atomically.
func (s *RunStore) SaveRun(ctx context.Context, run *indicator.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, period_start, period_end, sources, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Start, run.End, run.Sources, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, res := range run.Indicators {
		_, err = tx.Exec(ctx, `
			INSERT INTO run_indicators
				(run_id, position, id_code, categoria, label, unit, error, total_value, total_population)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.ID, i, res.IDCode, res.Categoria, res.Label, res.Unit, res.Err,
			res.TotalValue, res.TotalPopulation)
		if err != nil {
			return fmt.Errorf("insert indicator %s: %w", res.IDCode, err)
		}
		for j, sr := range res.PerSource {
			_, err = tx.Exec(ctx, `
				INSERT INTO run_results
					(run_id, indicator_position, position, source_id, source, value, population, error)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				run.ID, i, j, sr.SourceID, sr.Source, sr.Value, sr.Population, sr.Err)
			if err != nil {
				return fmt.Errorf("insert result %s/%s: %w", res.IDCode, sr.Source, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetRun reloads a run with its indicators and per-source detail in the
// order they were computed.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (*indicator.Run, error) {
	var run indicator.Run
	err := s.pool.QueryRow(ctx, `
		SELECT id, period_start, period_end, sources, created_at
		FROM runs WHERE id = $1`, id).
		Scan(&run.ID, &run.Start, &run.End, &run.Sources, &run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id_code, categoria, label, unit, error, total_value, total_population
		FROM run_indicators WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load indicators: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var res indicator.Result
		if err := rows.Scan(&res.IDCode, &res.Categoria, &res.Label, &res.Unit,
			&res.Err, &res.TotalValue, &res.TotalPopulation); err != nil {
			return nil, err
		}
		res.PerSource = []indicator.SourceResult{}
		run.Indicators = append(run.Indicators, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	detail, err := s.pool.Query(ctx, `
		SELECT indicator_position, source_id, source, value, population, error
		FROM run_results WHERE run_id = $1 ORDER BY indicator_position, position`, id)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	defer detail.Close()
	for detail.Next() {
		var pos int
		var sr indicator.SourceResult
		if err := detail.Scan(&pos, &sr.SourceID, &sr.Source, &sr.Value, &sr.Population, &sr.Err); err != nil {
			return nil, err
		}
		if pos >= 0 && pos < len(run.Indicators) {
			run.Indicators[pos].PerSource = append(run.Indicators[pos].PerSource, sr)
		}
	}
	if err := detail.Err(); err != nil {
		return nil, err
	}

	return &run, nil
}
