package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-file-tree/internal/model"
)

// JobRepository keeps move job snapshots in the jobs table. Save is an
// upsert, so every status transition overwrites the previous row.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Save(ctx context.Context, job model.JobData) error {
	var report []byte
	if job.Report != nil {
		encoded, err := json.Marshal(job.Report)
		if err != nil {
			return fmt.Errorf("encode job report: %w", err)
		}
		report = encoded
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, status, total_items, bytes_planned, bytes_transferred,
		  progress, error, report, created_at, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		  status = EXCLUDED.status,
		  bytes_planned = EXCLUDED.bytes_planned,
		  bytes_transferred = EXCLUDED.bytes_transferred,
		  progress = EXCLUDED.progress,
		  error = EXCLUDED.error,
		  report = EXCLUDED.report,
		  started_at = EXCLUDED.started_at,
		  finished_at = EXCLUDED.finished_at`,
		job.JobID, job.UserID, job.Status, job.TotalItems, job.BytesPlanned, job.BytesTransferred,
		job.Progress, job.Error, report,
		parseJobTime(job.CreatedAt), parseJobTime(job.StartedAt), parseJobTime(job.FinishedAt))
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, jobID string) (model.JobData, error) {
	var job model.JobData
	var report []byte
	var createdAt time.Time
	var startedAt, finishedAt *time.Time

	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, status, total_items, bytes_planned, bytes_transferred,
		        progress, error, report, created_at, started_at, finished_at
		 FROM jobs WHERE id = $1`, jobID).
		Scan(&job.JobID, &job.UserID, &job.Status, &job.TotalItems, &job.BytesPlanned,
			&job.BytesTransferred, &job.Progress, &job.Error, &report,
			&createdAt, &startedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.JobData{}, model.ErrJobNotFound
	}
	if err != nil {
		return model.JobData{}, fmt.Errorf("find job: %w", err)
	}

	if len(report) > 0 {
		job.Report = &model.MoveBatchReport{}
		if err := json.Unmarshal(report, job.Report); err != nil {
			return model.JobData{}, fmt.Errorf("decode job report: %w", err)
		}
	}

	job.CreatedAt = formatJobTime(&createdAt)
	job.StartedAt = formatJobTime(startedAt)
	job.FinishedAt = formatJobTime(finishedAt)
	return job, nil
}

// FailUnfinished closes every queued or running job with reason. It is meant
// for startup, when no worker can still be running them.
func (r *JobRepository) FailUnfinished(ctx context.Context, reason string, finishedAt time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, finished_at = $3
		 WHERE status IN ($4, $5)`,
		model.JobStatusFailed, reason, finishedAt, model.JobStatusQueued, model.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("fail unfinished jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func parseJobTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return &parsed
}

func formatJobTime(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}
