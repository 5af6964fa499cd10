package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"groupshot/internal/domain"
)

// MemoryStore is a mutex-guarded in-memory implementation of the job, group
// and generated-photo stores. It honors the same CAS semantics as the
// Postgres repositories and backs tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*domain.GenerationJob
	groups map[string]*domain.Group
	photos map[string][]domain.GeneratedPhoto

	// Now is the clock used for SubmittedAt/FinalizedAt; tests override it.
	Now func() time.Time
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*domain.GenerationJob),
		groups: make(map[string]*domain.Group),
		photos: make(map[string][]domain.GeneratedPhoto),
		Now:    time.Now,
	}
}

// PutGroup seeds or replaces a group.
func (s *MemoryStore) PutGroup(group *domain.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *group
	s.groups[group.ID] = &copied
}

// Create registers a new job unless a non-terminal one exists for the group.
func (s *MemoryStore) Create(ctx context.Context, groupID string) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.GroupID == groupID && !job.Status.Terminal() {
			return nil, domain.ErrJobAlreadyInFlight
		}
	}
	job := &domain.GenerationJob{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		Status:      domain.JobStatusSubmitted,
		SubmittedAt: s.Now(),
	}
	s.jobs[job.ID] = job
	copied := *job
	return &copied, nil
}

// AttachProviderJobID records the provider handle and advances the status.
func (s *MemoryStore) AttachProviderJobID(ctx context.Context, jobID, providerJobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusSubmitted {
		return domain.ErrStatusConflict
	}
	job.ProviderJobID = providerJobID
	job.Status = domain.JobStatusAwaitingCompletion
	return nil
}

// Finalize applies the outcome exactly once; later callers observe the first
// outcome with won=false.
func (s *MemoryStore) Finalize(ctx context.Context, jobID string, outcome domain.Outcome) (*domain.GenerationJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if job.Status.Terminal() {
		copied := *job
		return &copied, false, nil
	}
	job.Status = outcome.Status
	job.ResultAssetURL = outcome.AssetURL
	job.FailureReason = outcome.FailureReason
	now := s.Now()
	job.FinalizedAt = &now
	copied := *job
	return &copied, true, nil
}

// Get fetches a job by id.
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

// GetByProviderJobID fetches a job by the provider-assigned handle.
func (s *MemoryStore) GetByProviderJobID(ctx context.Context, providerJobID string) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ProviderJobID != "" && job.ProviderJobID == providerJobID {
			copied := *job
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

// GetLatestByGroupID fetches the most recently submitted job for a group.
func (s *MemoryStore) GetLatestByGroupID(ctx context.Context, groupID string) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.GenerationJob
	for _, job := range s.jobs {
		if job.GroupID != groupID {
			continue
		}
		if latest == nil || job.SubmittedAt.After(latest.SubmittedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

// ListAwaiting returns every awaiting_completion job.
func (s *MemoryStore) ListAwaiting(ctx context.Context) ([]domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []domain.GenerationJob
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusAwaitingCompletion {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

// IncrementAttempts bumps the poll attempt counter.
func (s *MemoryStore) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	job.Attempts++
	return job.Attempts, nil
}

// GetGroup fetches a group.
func (s *MemoryStore) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *group
	return &copied, nil
}

// TransitionStatus performs the group status compare-and-set.
func (s *MemoryStore) TransitionStatus(ctx context.Context, groupID string, from, to domain.GroupStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return domain.ErrNotFound
	}
	if group.Status != from {
		return domain.ErrStatusConflict
	}
	group.Status = to
	return nil
}

// SetGeneratedPhotoURL denormalizes the generated photo onto the group.
func (s *MemoryStore) SetGeneratedPhotoURL(ctx context.Context, groupID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return domain.ErrNotFound
	}
	group.GeneratedPhotoURL = url
	return nil
}

// CreatePhoto persists a generated photo record.
func (s *MemoryStore) CreatePhoto(ctx context.Context, photo *domain.GeneratedPhoto) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = s.Now()
	}
	s.photos[photo.GroupID] = append(s.photos[photo.GroupID], *photo)
	return nil
}

// ListPhotosByGroupID returns a group's generated photos.
func (s *MemoryStore) ListPhotosByGroupID(ctx context.Context, groupID string) ([]domain.GeneratedPhoto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	photos := make([]domain.GeneratedPhoto, len(s.photos[groupID]))
	copy(photos, s.photos[groupID])
	return photos, nil
}

// Jobs returns the JobStore view of the memory store.
func (s *MemoryStore) Jobs() domain.JobStore { return s }

// Groups returns the GroupStore view of the memory store.
func (s *MemoryStore) Groups() domain.GroupStore { return memoryGroupStore{s} }

// Photos returns the GeneratedPhotoStore view of the memory store.
func (s *MemoryStore) Photos() domain.GeneratedPhotoStore { return memoryPhotoStore{s} }

type memoryGroupStore struct{ s *MemoryStore }

func (m memoryGroupStore) Get(ctx context.Context, groupID string) (*domain.Group, error) {
	return m.s.GetGroup(ctx, groupID)
}

func (m memoryGroupStore) TransitionStatus(ctx context.Context, groupID string, from, to domain.GroupStatus) error {
	return m.s.TransitionStatus(ctx, groupID, from, to)
}

func (m memoryGroupStore) SetGeneratedPhotoURL(ctx context.Context, groupID, url string) error {
	return m.s.SetGeneratedPhotoURL(ctx, groupID, url)
}

type memoryPhotoStore struct{ s *MemoryStore }

func (m memoryPhotoStore) Create(ctx context.Context, photo *domain.GeneratedPhoto) error {
	return m.s.CreatePhoto(ctx, photo)
}

func (m memoryPhotoStore) ListByGroupID(ctx context.Context, groupID string) ([]domain.GeneratedPhoto, error) {
	return m.s.ListPhotosByGroupID(ctx, groupID)
}

var _ domain.JobStore = (*MemoryStore)(nil)
