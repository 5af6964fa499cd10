package provider

import (
	"context"
	"errors"
	"fmt"

	"groupshot/internal/assets"
)

// Request is the normalized submission handed to any provider adapter.
type Request struct {
	GroupID     string
	GroupName   string
	Prompt      string
	Members     []assets.Asset
	Background  *assets.Asset
	MemberNames []string
}

// Image is an inline generation result from a synchronous provider.
type Image struct {
	Data        []byte
	ContentType string
	Model       string
}

// PollState enumerates the states an asynchronous provider job can report.
type PollState string

const (
	PollStatePending  PollState = "pending"
	PollStateFinished PollState = "finished"
	PollStateFailed   PollState = "failed"
)

// PollResult is the outcome of one status check against an async provider.
type PollResult struct {
	State         PollState
	ImageURL      string
	FailureReason string
}

// SyncGenerator is implemented by providers that return the composed image
// inline on the submission call.
type SyncGenerator interface {
	Generate(ctx context.Context, req Request) (*Image, error)
}

// AsyncGenerator is implemented by providers that return a job handle and
// require later status polling (and optionally deliver a webhook).
type AsyncGenerator interface {
	Submit(ctx context.Context, req Request) (providerJobID string, err error)
	Poll(ctx context.Context, providerJobID string) (*PollResult, error)
}

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	KindAuth           ErrorKind = "auth"
	KindRateLimited    ErrorKind = "rate_limited"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindTransient      ErrorKind = "transient"
)

// Error wraps a provider failure with its classification. Adapters map their
// backend-specific error shapes into this taxonomy so the orchestrator never
// inspects provider identity.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class is worth another attempt.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// NewError builds a classified provider error.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Classify extracts the classification from an error chain, defaulting to
// transient so unknown transport failures stay retryable.
func Classify(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// IsRetryable reports whether the error chain carries a retryable class.
func IsRetryable(err error) bool {
	kind := Classify(err)
	return kind == KindRateLimited || kind == KindTransient
}

// kindForStatus maps an HTTP response code onto the error taxonomy.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindInvalidRequest
	default:
		return KindTransient
	}
}
