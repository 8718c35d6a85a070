package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

// PostgresStore persists job records in a jobs table via pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the jobs table
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversion_jobs (
			id TEXT PRIMARY KEY,
			record JSONB NOT NULL,
			status TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Save upserts the job record
func (s *PostgresStore) Save(ctx context.Context, job *models.ConversionJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversion_jobs (id, record, status, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET record = $2, status = $3, updated_at = now()`,
		job.ID, record, string(job.Status))
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// LoadAll reads every persisted job record
func (s *PostgresStore) LoadAll(ctx context.Context) ([]*models.ConversionJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM conversion_jobs`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ConversionJob
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		var job models.ConversionJob
		if err := json.Unmarshal(record, &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job record: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// Delete removes the job record
func (s *PostgresStore) Delete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM conversion_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
