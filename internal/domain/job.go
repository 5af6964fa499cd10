package domain

import "time"

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusSubmitted          JobStatus = "submitted"
	JobStatusAwaitingCompletion JobStatus = "awaiting_completion"
	JobStatusFinished           JobStatus = "finished"
	JobStatusFailed             JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed
}

// GenerationJob tracks one attempt to produce a composed group photo.
// The ID is assigned by this service; ProviderJobID is the handle returned
// by an asynchronous provider, empty until the submission is accepted.
type GenerationJob struct {
	ID             string
	GroupID        string
	ProviderJobID  string
	Status         JobStatus
	ResultAssetURL string
	FailureReason  string
	Attempts       int
	SubmittedAt    time.Time
	FinalizedAt    *time.Time
}

// Outcome is the terminal result applied to a job by Finalize.
type Outcome struct {
	Status        JobStatus
	AssetURL      string
	FailureReason string
}

// Finished builds a successful outcome carrying the generated asset URL.
func Finished(assetURL string) Outcome {
	return Outcome{Status: JobStatusFinished, AssetURL: assetURL}
}

// Failed builds a failed outcome with a human-readable reason.
func Failed(reason string) Outcome {
	return Outcome{Status: JobStatusFailed, FailureReason: reason}
}

// OutcomeOf reconstructs the outcome already recorded on a terminal job.
func OutcomeOf(job *GenerationJob) Outcome {
	if job.Status == JobStatusFinished {
		return Finished(job.ResultAssetURL)
	}
	return Failed(job.FailureReason)
}
