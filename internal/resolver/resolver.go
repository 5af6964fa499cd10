package resolver

import (
	"context"
	"errors"
	"time"

	"groupshot/internal/domain"
	"groupshot/internal/infra"
	"groupshot/internal/provider"
)

// TimeoutReason is recorded on jobs whose poll budget ran out.
const TimeoutReason = "timeout"

// Completer receives the downstream side effects of a finalized job: persist
// the generated photo and move the group, or roll the group back.
type Completer interface {
	Complete(ctx context.Context, job *domain.GenerationJob, outcome domain.Outcome) error
}

// Config tunes the resolver's polling and webhook behavior.
type Config struct {
	// PollInterval is the scheduler tick; it also defaults the grace window.
	PollInterval time.Duration
	// MaxAttempts bounds polling per job before a timeout failure.
	MaxAttempts int
	// LookupRetries bounds the webhook-side retries when a callback lands
	// before the job's provider id is recorded locally.
	LookupRetries int
	LookupBackoff time.Duration
	// GraceWindow is how long after a job's FinalizedAt a late webhook is
	// still routed into the idempotent finalize instead of being dropped.
	GraceWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 30
	}
	if c.LookupRetries <= 0 {
		c.LookupRetries = 3
	}
	if c.LookupBackoff <= 0 {
		c.LookupBackoff = 250 * time.Millisecond
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = c.PollInterval
	}
	return c
}

// Resolver drives asynchronous jobs to completion. Its poller and its webhook
// intake are independent entry points that converge on the job store's
// idempotent Finalize; the store, not the resolver, arbitrates the race.
type Resolver struct {
	jobs      domain.JobStore
	generator provider.AsyncGenerator
	completer Completer
	logger    infra.Logger
	cfg       Config

	now func() time.Time
}

// New constructs a resolver.
func New(jobs domain.JobStore, generator provider.AsyncGenerator, completer Completer, logger infra.Logger, cfg Config) *Resolver {
	return &Resolver{
		jobs:      jobs,
		generator: generator,
		completer: completer,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// Run polls all awaiting jobs on a fixed interval until ctx is cancelled.
// The job list is re-read from the store every tick, so jobs accepted before
// a restart resume polling without any handoff.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.cfg.PollInterval).
		Int("max_attempts", r.cfg.MaxAttempts).
		Msg("resolver: started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("resolver: stopped")
			return ctx.Err()
		case <-ticker.C:
			r.PollOnce(ctx)
		}
	}
}

// PollOnce performs a single scheduler tick over every awaiting job.
func (r *Resolver) PollOnce(ctx context.Context) {
	jobs, err := r.jobs.ListAwaiting(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("resolver: list awaiting jobs failed")
		return
	}
	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		r.pollJob(ctx, &jobs[i])
	}
}

func (r *Resolver) pollJob(ctx context.Context, job *domain.GenerationJob) {
	attempts, err := r.jobs.IncrementAttempts(ctx, job.ID)
	if err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("resolver: increment attempts failed")
		return
	}

	result, err := r.generator.Poll(ctx, job.ProviderJobID)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("job_id", job.ID).
			Str("provider_job_id", job.ProviderJobID).
			Int("attempt", attempts).
			Msg("resolver: poll failed")
		if attempts >= r.cfg.MaxAttempts {
			r.finalize(ctx, job.ID, domain.Failed(TimeoutReason), "poller")
		}
		return
	}

	switch result.State {
	case provider.PollStateFinished:
		r.finalize(ctx, job.ID, domain.Finished(result.ImageURL), "poller")
	case provider.PollStateFailed:
		r.finalize(ctx, job.ID, domain.Failed(result.FailureReason), "poller")
	default:
		r.logger.Debug().
			Str("job_id", job.ID).
			Int("attempt", attempts).
			Msg("resolver: still pending")
		if attempts >= r.cfg.MaxAttempts {
			r.finalize(ctx, job.ID, domain.Failed(TimeoutReason), "poller")
		}
	}
}

// finalize funnels both entry points through the store's idempotent Finalize
// and runs downstream completion only for the call that won the transition.
func (r *Resolver) finalize(ctx context.Context, jobID string, outcome domain.Outcome, source string) {
	job, won, err := r.jobs.Finalize(ctx, jobID, outcome)
	if err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Str("source", source).Msg("resolver: finalize failed")
		return
	}
	if !won {
		r.logger.Info().
			Str("job_id", jobID).
			Str("source", source).
			Str("recorded_status", string(job.Status)).
			Msg("resolver: job already finalized, keeping first outcome")
		return
	}
	r.logger.Info().
		Str("job_id", jobID).
		Str("source", source).
		Str("status", string(job.Status)).
		Msg("resolver: job finalized")
	if r.completer == nil {
		return
	}
	if err := r.completer.Complete(ctx, job, domain.OutcomeOf(job)); err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("resolver: completion side effects failed")
	}
}

// Callback is a normalized inbound webhook payload.
type Callback struct {
	ProviderJobID string
	Status        string
	ImageURL      string
	FailureReason string
}

// CallbackDisposition says what the resolver did with a webhook.
type CallbackDisposition string

const (
	CallbackAccepted      CallbackDisposition = "accepted"
	CallbackIgnored       CallbackDisposition = "ignored"
	CallbackUnknownJob    CallbackDisposition = "unknown_job"
	CallbackPastGrace     CallbackDisposition = "past_grace"
	CallbackNotTerminal   CallbackDisposition = "not_terminal_status"
	CallbackMissingResult CallbackDisposition = "missing_result"
)

// HandleCallback processes an authenticated webhook payload. Every return is
// accepted-or-ignored; the caller answers 200 in either case. Unknown
// provider job ids never mutate anything, and a payload older than the grace
// window past the job's finalize is dropped rather than resurrecting a job
// the rest of the system already rolled back.
func (r *Resolver) HandleCallback(ctx context.Context, cb Callback) CallbackDisposition {
	outcome, ok := outcomeFromCallback(cb)
	if !ok {
		r.logger.Info().
			Str("provider_job_id", cb.ProviderJobID).
			Str("status", cb.Status).
			Msg("resolver: webhook reports non-terminal status, ignoring")
		if cb.Status == string(provider.PollStateFinished) {
			return CallbackMissingResult
		}
		return CallbackNotTerminal
	}

	job, err := r.lookupWithRetry(ctx, cb.ProviderJobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn().
				Str("provider_job_id", cb.ProviderJobID).
				Msg("resolver: webhook for unknown provider job, ignoring")
			return CallbackUnknownJob
		}
		r.logger.Error().Err(err).Str("provider_job_id", cb.ProviderJobID).Msg("resolver: webhook lookup failed")
		return CallbackIgnored
	}

	if job.Status.Terminal() && job.FinalizedAt != nil {
		if r.now().Sub(*job.FinalizedAt) > r.cfg.GraceWindow {
			r.logger.Info().
				Str("job_id", job.ID).
				Time("finalized_at", *job.FinalizedAt).
				Msg("resolver: webhook past grace window, dropping")
			return CallbackPastGrace
		}
	}

	r.finalize(ctx, job.ID, outcome, "webhook")
	return CallbackAccepted
}

// lookupWithRetry tolerates a provider calling back faster than the local
// provider-id write lands: the lookup is retried a bounded number of times
// before the payload is treated as unknown.
func (r *Resolver) lookupWithRetry(ctx context.Context, providerJobID string) (*domain.GenerationJob, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.LookupRetries; attempt++ {
		job, err := r.jobs.GetByProviderJobID(ctx, providerJobID)
		if err == nil {
			return job, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if attempt == r.cfg.LookupRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.LookupBackoff):
		}
	}
	return nil, lastErr
}

func outcomeFromCallback(cb Callback) (domain.Outcome, bool) {
	switch cb.Status {
	case string(provider.PollStateFinished):
		if cb.ImageURL == "" {
			return domain.Outcome{}, false
		}
		return domain.Finished(cb.ImageURL), true
	case string(provider.PollStateFailed):
		reason := cb.FailureReason
		if reason == "" {
			reason = "unknown reason"
		}
		return domain.Failed(reason), true
	default:
		return domain.Outcome{}, false
	}
}
