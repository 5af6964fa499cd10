package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"groupshot/internal/domain"
	"groupshot/internal/infra"
)

// JobRepositoryPG implements domain.JobStore on PostgreSQL. A partial unique
// index on (group_id) WHERE status NOT IN ('finished','failed') enforces the
// one-non-terminal-job-per-group invariant at the database level, and
// Finalize is a single guarded UPDATE so concurrent poller/webhook callers
// serialize on the row.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

const jobColumns = `id, group_id, provider_job_id, status, result_asset_url, failure_reason, attempts, submitted_at, finalized_at`

// Create inserts a new job in submitted state.
func (r *JobRepositoryPG) Create(ctx context.Context, groupID string) (*domain.GenerationJob, error) {
	query := `--sql 0f7c1d86-3808-42fa-a797-7b94057a9c19
INSERT INTO generation_jobs (id, group_id, status)
VALUES ($1, $2, $3)
RETURNING ` + jobColumns + `;
`
	row := r.db.QueryRow(ctx, query, uuid.NewString(), groupID, domain.JobStatusSubmitted)
	job, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrJobAlreadyInFlight
		}
		return nil, err
	}
	return job, nil
}

// AttachProviderJobID records the provider handle and moves the job to
// awaiting_completion.
func (r *JobRepositoryPG) AttachProviderJobID(ctx context.Context, jobID, providerJobID string) error {
	query := `--sql 2fe256e1-334f-49b9-91bd-f660b3d49824
UPDATE generation_jobs
SET provider_job_id = $2, status = $3
WHERE id = $1 AND status = $4;
`
	tag, err := r.db.Exec(ctx, query, jobID, providerJobID, domain.JobStatusAwaitingCompletion, domain.JobStatusSubmitted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStatusConflict
	}
	return nil
}

// Finalize applies the outcome only when the job is still non-terminal. The
// guarded UPDATE is the race arbiter: the loser of a poller/webhook race gets
// the stored row back with won=false.
func (r *JobRepositoryPG) Finalize(ctx context.Context, jobID string, outcome domain.Outcome) (*domain.GenerationJob, bool, error) {
	query := `--sql d52113b2-096d-44a9-bb79-d1868aa198c0
UPDATE generation_jobs
SET status = $2,
    result_asset_url = $3,
    failure_reason = $4,
    finalized_at = NOW()
WHERE id = $1 AND status IN ($5, $6)
RETURNING ` + jobColumns + `;
`
	row := r.db.QueryRow(ctx, query,
		jobID,
		outcome.Status,
		outcome.AssetURL,
		outcome.FailureReason,
		domain.JobStatusSubmitted,
		domain.JobStatusAwaitingCompletion,
	)
	job, err := scanJob(row)
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	job, err = r.Get(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	return job, false, nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	query := `--sql e32a53e7-28b0-4c9d-b1c3-22c93430be38
SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1;
`
	return scanJobOrNotFound(r.db.QueryRow(ctx, query, jobID))
}

// GetByProviderJobID fetches a job by the provider-assigned handle.
func (r *JobRepositoryPG) GetByProviderJobID(ctx context.Context, providerJobID string) (*domain.GenerationJob, error) {
	query := `--sql f389c84c-6025-4a94-bdbc-856cd9921241
SELECT ` + jobColumns + ` FROM generation_jobs WHERE provider_job_id = $1;
`
	return scanJobOrNotFound(r.db.QueryRow(ctx, query, providerJobID))
}

// GetLatestByGroupID fetches the most recently submitted job for a group.
func (r *JobRepositoryPG) GetLatestByGroupID(ctx context.Context, groupID string) (*domain.GenerationJob, error) {
	query := `--sql 03287507-b5cf-44db-9a07-6eff0be1e74e
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE group_id = $1
ORDER BY submitted_at DESC
LIMIT 1;
`
	return scanJobOrNotFound(r.db.QueryRow(ctx, query, groupID))
}

// ListAwaiting returns every awaiting_completion job.
func (r *JobRepositoryPG) ListAwaiting(ctx context.Context) ([]domain.GenerationJob, error) {
	query := `--sql 26856cc5-cb59-4f3e-a386-5759130beff1
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE status = $1
ORDER BY submitted_at;
`
	rows, err := r.db.Query(ctx, query, domain.JobStatusAwaitingCompletion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// IncrementAttempts bumps the poll attempt counter.
func (r *JobRepositoryPG) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	query := `--sql 85a8f299-b6a3-4354-a903-0ae3ad3f1925
UPDATE generation_jobs
SET attempts = attempts + 1
WHERE id = $1
RETURNING attempts;
`
	var attempts int
	if err := r.db.QueryRow(ctx, query, jobID).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	var providerJobID, resultURL, failureReason *string
	if err := row.Scan(
		&job.ID,
		&job.GroupID,
		&providerJobID,
		&job.Status,
		&resultURL,
		&failureReason,
		&job.Attempts,
		&job.SubmittedAt,
		&job.FinalizedAt,
	); err != nil {
		return nil, err
	}
	if providerJobID != nil {
		job.ProviderJobID = *providerJobID
	}
	if resultURL != nil {
		job.ResultAssetURL = *resultURL
	}
	if failureReason != nil {
		job.FailureReason = *failureReason
	}
	return &job, nil
}

func scanJobOrNotFound(row pgx.Row) (*domain.GenerationJob, error) {
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
