package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"groupshot/internal/assets"
	"groupshot/internal/domain"
	"groupshot/internal/infra"
	"groupshot/internal/provider"
)

// AssetFetcher retrieves reference assets for a group.
type AssetFetcher interface {
	Fetch(ctx context.Context, refs []assets.Ref) ([]assets.Asset, error)
}

// BlobStore persists inline image bytes (the synchronous provider path) and
// maps storage keys onto externally reachable URLs.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	PublicURL(key string) string
}

// Result is the immediate answer to a generation request. Synchronous
// providers fill GeneratedImageURL; asynchronous providers only accept, and
// completion is observed later through group/job status.
type Result struct {
	Accepted          bool
	GeneratedImageURL string
}

// Config tunes submission retry behavior.
type Config struct {
	SubmitAttempts int
	SubmitBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitAttempts <= 0 {
		c.SubmitAttempts = 3
	}
	if c.SubmitBackoff <= 0 {
		c.SubmitBackoff = time.Second
	}
	return c
}

// Orchestrator wires the stores, the asset fetcher and exactly one provider
// capability into the generation workflow. Exactly one of sync/async is set;
// it never branches on provider identity, only on capability shape.
type Orchestrator struct {
	groups  domain.GroupStore
	jobs    domain.JobStore
	photos  domain.GeneratedPhotoStore
	fetcher AssetFetcher
	sync    provider.SyncGenerator
	async   provider.AsyncGenerator
	blobs   BlobStore
	logger  infra.Logger
	cfg     Config
}

// Options collects the orchestrator's collaborators.
type Options struct {
	Groups  domain.GroupStore
	Jobs    domain.JobStore
	Photos  domain.GeneratedPhotoStore
	Fetcher AssetFetcher
	Sync    provider.SyncGenerator
	Async   provider.AsyncGenerator
	Blobs   BlobStore
	Logger  infra.Logger
	Config  Config
}

// New validates the wiring and builds an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Groups == nil || opts.Jobs == nil || opts.Photos == nil || opts.Fetcher == nil {
		return nil, errors.New("orchestrator: stores and fetcher are required")
	}
	if (opts.Sync == nil) == (opts.Async == nil) {
		return nil, errors.New("orchestrator: exactly one provider capability must be configured")
	}
	if opts.Sync != nil && opts.Blobs == nil {
		return nil, errors.New("orchestrator: blob store is required for a synchronous provider")
	}
	return &Orchestrator{
		groups:  opts.Groups,
		jobs:    opts.Jobs,
		photos:  opts.Photos,
		fetcher: opts.Fetcher,
		sync:    opts.Sync,
		async:   opts.Async,
		blobs:   opts.Blobs,
		logger:  opts.Logger,
		cfg:     opts.Config.withDefaults(),
	}, nil
}

// Generate runs the generation sequence for a group. The collecting→processing
// CAS is the admission gate; every failure edge before handoff rolls the group
// back so it is never left stuck in processing.
func (o *Orchestrator) Generate(ctx context.Context, groupID string) (*Result, error) {
	group, err := o.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if err := o.groups.TransitionStatus(ctx, groupID, domain.GroupStatusCollecting, domain.GroupStatusProcessing); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return nil, domain.ErrAlreadyProcessing
		}
		return nil, err
	}

	fetched, err := o.fetcher.Fetch(ctx, assets.RefsForGroup(group))
	if err != nil {
		o.rollback(ctx, groupID)
		return nil, err
	}
	members, background := splitAssets(fetched)

	backgroundName := ""
	if len(group.Backgrounds) > 0 {
		backgroundName = group.Backgrounds[0].Name
	}
	prompt := provider.BuildPrompt(group.Name, memberNames(members), backgroundName)

	job, err := o.jobs.Create(ctx, groupID)
	if err != nil {
		o.rollback(ctx, groupID)
		return nil, err
	}

	req := provider.Request{
		GroupID:     groupID,
		GroupName:   group.Name,
		Prompt:      prompt,
		Members:     members,
		Background:  background,
		MemberNames: memberNames(members),
	}

	if o.sync != nil {
		return o.generateSync(ctx, group, job, req)
	}
	return o.generateAsync(ctx, job, req)
}

func (o *Orchestrator) generateSync(ctx context.Context, group *domain.Group, job *domain.GenerationJob, req provider.Request) (*Result, error) {
	var img *provider.Image
	err := o.submitWithRetry(ctx, func() error {
		var genErr error
		img, genErr = o.sync.Generate(ctx, req)
		return genErr
	})
	if err != nil {
		o.failJob(ctx, job.ID, err.Error())
		o.rollback(ctx, group.ID)
		return nil, fmt.Errorf("generate group photo: %w", err)
	}

	key := storageKey(group.ID, job.ID, img.ContentType)
	savedKey, err := o.blobs.Write(ctx, key, img.Data)
	if err != nil {
		o.failJob(ctx, job.ID, "persist generated image: "+err.Error())
		o.rollback(ctx, group.ID)
		return nil, fmt.Errorf("persist generated image: %w", err)
	}
	url := o.blobs.PublicURL(savedKey)

	photo := &domain.GeneratedPhoto{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		ImageURL:   url,
		PromptUsed: req.Prompt,
		Metadata: map[string]any{
			"model":        img.Model,
			"member_count": len(req.Members),
		},
	}
	if err := o.photos.Create(ctx, photo); err != nil {
		o.failJob(ctx, job.ID, "record generated photo: "+err.Error())
		o.rollback(ctx, group.ID)
		return nil, fmt.Errorf("record generated photo: %w", err)
	}
	if err := o.groups.SetGeneratedPhotoURL(ctx, group.ID, url); err != nil {
		o.logger.Error().Err(err).Str("group_id", group.ID).Msg("orchestrator: set generated photo url failed")
	}

	if _, _, err := o.jobs.Finalize(ctx, job.ID, domain.Finished(url)); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: finalize sync job failed")
	}
	if err := o.groups.TransitionStatus(ctx, group.ID, domain.GroupStatusProcessing, domain.GroupStatusCompleted); err != nil {
		o.logger.Error().Err(err).Str("group_id", group.ID).Msg("orchestrator: complete transition failed")
	}

	o.logger.Info().Str("group_id", group.ID).Str("job_id", job.ID).Msg("orchestrator: group photo generated")
	return &Result{Accepted: true, GeneratedImageURL: url}, nil
}

func (o *Orchestrator) generateAsync(ctx context.Context, job *domain.GenerationJob, req provider.Request) (*Result, error) {
	var providerJobID string
	err := o.submitWithRetry(ctx, func() error {
		var submitErr error
		providerJobID, submitErr = o.async.Submit(ctx, req)
		return submitErr
	})
	if err != nil {
		o.failJob(ctx, job.ID, err.Error())
		o.rollback(ctx, req.GroupID)
		return nil, fmt.Errorf("submit generation job: %w", err)
	}

	if err := o.jobs.AttachProviderJobID(ctx, job.ID, providerJobID); err != nil {
		// The job id is lost to us; fail the job so the group is unblocked
		// instead of leaving an orphan the poller can never resolve.
		o.failJob(ctx, job.ID, "attach provider job id: "+err.Error())
		o.rollback(ctx, req.GroupID)
		return nil, fmt.Errorf("attach provider job id: %w", err)
	}

	o.logger.Info().
		Str("group_id", req.GroupID).
		Str("job_id", job.ID).
		Str("provider_job_id", providerJobID).
		Msg("orchestrator: generation job accepted")
	return &Result{Accepted: true}, nil
}

// Complete applies the downstream side effects of a finalized job. It is
// invoked by the completion resolver for exactly the call that won the
// finalize transition.
func (o *Orchestrator) Complete(ctx context.Context, job *domain.GenerationJob, outcome domain.Outcome) error {
	if outcome.Status == domain.JobStatusFinished {
		photo := &domain.GeneratedPhoto{
			ID:         uuid.NewString(),
			GroupID:    job.GroupID,
			ImageURL:   outcome.AssetURL,
			PromptUsed: "group photo composition",
			Metadata: map[string]any{
				"provider_job_id": job.ProviderJobID,
				"poll_attempts":   job.Attempts,
			},
		}
		if err := o.photos.Create(ctx, photo); err != nil {
			return fmt.Errorf("record generated photo: %w", err)
		}
		if err := o.groups.SetGeneratedPhotoURL(ctx, job.GroupID, outcome.AssetURL); err != nil {
			o.logger.Error().Err(err).Str("group_id", job.GroupID).Msg("orchestrator: set generated photo url failed")
		}
		if err := o.groups.TransitionStatus(ctx, job.GroupID, domain.GroupStatusProcessing, domain.GroupStatusCompleted); err != nil {
			if errors.Is(err, domain.ErrStatusConflict) {
				o.logger.Warn().Str("group_id", job.GroupID).Msg("orchestrator: group moved before completion, skipping transition")
				return nil
			}
			return fmt.Errorf("complete group: %w", err)
		}
		o.logger.Info().Str("group_id", job.GroupID).Str("job_id", job.ID).Msg("orchestrator: group completed")
		return nil
	}

	o.logger.Info().
		Str("group_id", job.GroupID).
		Str("job_id", job.ID).
		Str("reason", outcome.FailureReason).
		Msg("orchestrator: generation failed, unlocking group")
	if err := o.groups.TransitionStatus(ctx, job.GroupID, domain.GroupStatusProcessing, domain.GroupStatusCollecting); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			o.logger.Warn().Str("group_id", job.GroupID).Msg("orchestrator: group moved before rollback, skipping transition")
			return nil
		}
		return fmt.Errorf("roll back group: %w", err)
	}
	return nil
}

// submitWithRetry retries retryable provider failures with exponential
// backoff; auth and invalid-request failures surface immediately.
func (o *Orchestrator) submitWithRetry(ctx context.Context, fn func() error) error {
	backoff := o.cfg.SubmitBackoff
	var err error
	for attempt := 1; attempt <= o.cfg.SubmitAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !provider.IsRetryable(err) || attempt == o.cfg.SubmitAttempts {
			return err
		}
		o.logger.Warn().Err(err).Int("attempt", attempt).Msg("orchestrator: submission failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func (o *Orchestrator) rollback(ctx context.Context, groupID string) {
	if err := o.groups.TransitionStatus(ctx, groupID, domain.GroupStatusProcessing, domain.GroupStatusCollecting); err != nil {
		o.logger.Error().Err(err).Str("group_id", groupID).Msg("orchestrator: rollback to collecting failed")
	}
}

func (o *Orchestrator) failJob(ctx context.Context, jobID, reason string) {
	if _, _, err := o.jobs.Finalize(ctx, jobID, domain.Failed(reason)); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("orchestrator: fail job failed")
	}
}

func splitAssets(fetched []assets.Asset) ([]assets.Asset, *assets.Asset) {
	members := make([]assets.Asset, 0, len(fetched))
	var background *assets.Asset
	for i := range fetched {
		if fetched[i].Role == assets.RoleBackground {
			if background == nil {
				bg := fetched[i]
				background = &bg
			}
			continue
		}
		members = append(members, fetched[i])
	}
	return members, background
}

func memberNames(members []assets.Asset) []string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

func storageKey(groupID, jobID, contentType string) string {
	ext := ".jpg"
	if strings.Contains(contentType, "png") {
		ext = ".png"
	}
	return fmt.Sprintf("generated/groups/%s/%s%s", groupID, jobID, ext)
}
