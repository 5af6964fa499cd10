package domain

import "context"

// JobStore is the single source of truth for generation job lifecycle state.
// Finalize is the race arbiter between the poller and the webhook intake:
// the first caller to reach a terminal status wins, later callers get the
// stored job back with won=false.
type JobStore interface {
	// Create registers a new job for the group. It fails with
	// ErrJobAlreadyInFlight when a non-terminal job already exists.
	Create(ctx context.Context, groupID string) (*GenerationJob, error)
	// AttachProviderJobID records the provider's handle and moves the job
	// from submitted to awaiting_completion.
	AttachProviderJobID(ctx context.Context, jobID, providerJobID string) error
	// Finalize applies a terminal outcome exactly once. When the job is
	// already terminal it is a no-op returning the previously recorded job.
	Finalize(ctx context.Context, jobID string, outcome Outcome) (job *GenerationJob, won bool, err error)
	Get(ctx context.Context, jobID string) (*GenerationJob, error)
	GetByProviderJobID(ctx context.Context, providerJobID string) (*GenerationJob, error)
	GetLatestByGroupID(ctx context.Context, groupID string) (*GenerationJob, error)
	// ListAwaiting returns all awaiting_completion jobs; the poll scheduler
	// re-scans through it on every tick so jobs survive restarts.
	ListAwaiting(ctx context.Context) ([]GenerationJob, error)
	// IncrementAttempts bumps the poll attempt counter and returns the new count.
	IncrementAttempts(ctx context.Context, jobID string) (int, error)
}

// GroupStore exposes the group status state machine and the reference data
// the orchestrator needs to build a provider request.
type GroupStore interface {
	Get(ctx context.Context, groupID string) (*Group, error)
	// TransitionStatus is an atomic compare-and-set on the group status. It
	// returns ErrStatusConflict when the group is not currently in from.
	TransitionStatus(ctx context.Context, groupID string, from, to GroupStatus) error
	// SetGeneratedPhotoURL denormalizes the latest generated photo onto the
	// group row for cheap reads by outside collaborators.
	SetGeneratedPhotoURL(ctx context.Context, groupID, url string) error
}

// GeneratedPhotoStore persists composed group photos.
type GeneratedPhotoStore interface {
	Create(ctx context.Context, photo *GeneratedPhoto) error
	ListByGroupID(ctx context.Context, groupID string) ([]GeneratedPhoto, error)
}
