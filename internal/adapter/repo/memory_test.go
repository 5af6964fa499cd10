package repo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"groupshot/internal/domain"
)

func TestCreateRejectsSecondInFlightJob(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Create(ctx, "group-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if first.Status != domain.JobStatusSubmitted {
		t.Fatalf("status = %q, want submitted", first.Status)
	}

	if _, err := s.Create(ctx, "group-1"); !errors.Is(err, domain.ErrJobAlreadyInFlight) {
		t.Fatalf("second create err = %v, want ErrJobAlreadyInFlight", err)
	}

	// Other groups are unaffected.
	if _, err := s.Create(ctx, "group-2"); err != nil {
		t.Fatalf("create for other group: %v", err)
	}

	// Once terminal, a fresh job is allowed.
	if _, _, err := s.Finalize(ctx, first.ID, domain.Failed("boom")); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if _, err := s.Create(ctx, "group-1"); err != nil {
		t.Fatalf("create after terminal job: %v", err)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job, _ := s.Create(ctx, "group-1")
	if err := s.AttachProviderJobID(ctx, job.ID, "prov-1"); err != nil {
		t.Fatalf("AttachProviderJobID returned error: %v", err)
	}

	finished, won, err := s.Finalize(ctx, job.ID, domain.Finished("https://cdn/out.jpg"))
	if err != nil || !won {
		t.Fatalf("first finalize: won=%v err=%v", won, err)
	}
	if finished.Status != domain.JobStatusFinished || finished.ResultAssetURL != "https://cdn/out.jpg" {
		t.Fatalf("unexpected job after finalize: %#v", finished)
	}
	if finished.FinalizedAt == nil {
		t.Fatalf("FinalizedAt not set")
	}

	// Conflicting second outcome: first outcome sticks, won=false.
	again, won, err := s.Finalize(ctx, job.ID, domain.Failed("late timeout"))
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if won {
		t.Fatalf("second finalize must not win")
	}
	if again.Status != domain.JobStatusFinished || again.ResultAssetURL != "https://cdn/out.jpg" {
		t.Fatalf("second finalize changed the outcome: %#v", again)
	}
	if again.FinalizedAt == nil || !again.FinalizedAt.Equal(*finished.FinalizedAt) {
		t.Fatalf("FinalizedAt changed on second finalize")
	}
}

func TestFinalizeConcurrentSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job, _ := s.Create(ctx, "group-1")
	_ = s.AttachProviderJobID(ctx, job.ID, "prov-1")

	const callers = 16
	var wins struct {
		sync.Mutex
		n int
	}
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			outcome := domain.Finished("url-a")
			if i%2 == 1 {
				outcome = domain.Failed("reason-b")
			}
			_, won, err := s.Finalize(ctx, job.ID, outcome)
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if won {
				wins.Lock()
				wins.n++
				wins.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins.n != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins.n)
	}
}

func TestAttachProviderJobIDRequiresSubmitted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job, _ := s.Create(ctx, "group-1")
	_, _, _ = s.Finalize(ctx, job.ID, domain.Failed("early"))
	if err := s.AttachProviderJobID(ctx, job.ID, "prov-1"); !errors.Is(err, domain.ErrStatusConflict) {
		t.Fatalf("err = %v, want ErrStatusConflict", err)
	}
}

func TestGetByProviderJobID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job, _ := s.Create(ctx, "group-1")
	_ = s.AttachProviderJobID(ctx, job.ID, "prov-9")

	found, err := s.GetByProviderJobID(ctx, "prov-9")
	if err != nil {
		t.Fatalf("GetByProviderJobID returned error: %v", err)
	}
	if found.ID != job.ID {
		t.Fatalf("found job %q, want %q", found.ID, job.ID)
	}
	if _, err := s.GetByProviderJobID(ctx, "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown id err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetByProviderJobID(ctx, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty id must not match jobs without a provider id")
	}
}

func TestListAwaitingOnlyReturnsAwaitingJobs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	submitted, _ := s.Create(ctx, "group-1")
	awaiting, _ := s.Create(ctx, "group-2")
	_ = s.AttachProviderJobID(ctx, awaiting.ID, "prov-2")
	done, _ := s.Create(ctx, "group-3")
	_ = s.AttachProviderJobID(ctx, done.ID, "prov-3")
	_, _, _ = s.Finalize(ctx, done.ID, domain.Finished("u"))

	jobs, err := s.ListAwaiting(ctx)
	if err != nil {
		t.Fatalf("ListAwaiting returned error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != awaiting.ID {
		t.Fatalf("ListAwaiting = %#v, want only %q", jobs, awaiting.ID)
	}
	_ = submitted
}

func TestGroupStatusCAS(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutGroup(&domain.Group{ID: "g", Status: domain.GroupStatusCollecting})

	if err := s.TransitionStatus(ctx, "g", domain.GroupStatusCollecting, domain.GroupStatusProcessing); err != nil {
		t.Fatalf("first CAS: %v", err)
	}
	err := s.TransitionStatus(ctx, "g", domain.GroupStatusCollecting, domain.GroupStatusProcessing)
	if !errors.Is(err, domain.ErrStatusConflict) {
		t.Fatalf("second CAS err = %v, want ErrStatusConflict", err)
	}
	if err := s.TransitionStatus(ctx, "g", domain.GroupStatusProcessing, domain.GroupStatusCollecting); err != nil {
		t.Fatalf("rollback CAS: %v", err)
	}
}
