package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"groupshot/internal/assets"
	"groupshot/internal/infra"
)

// ErrMissingAstriaKey indicates the client was configured without credentials.
var ErrMissingAstriaKey = errors.New("astria: api key is required")

// AstriaOptions configures the Astria client.
type AstriaOptions struct {
	APIKey      string
	BaseURL     string
	TuneID      int
	CallbackURL string
	HTTPClient  *http.Client
	Logger      infra.Logger
}

// Astria submits composition prompts to the Astria tunes API. It is an
// asynchronous provider: Submit returns the remote prompt id and completion
// is observed via Poll or the webhook callback Astria posts back to us.
type Astria struct {
	apiKey      string
	baseURL     string
	tuneID      int
	callbackURL string
	httpClient  *http.Client
	logger      infra.Logger
}

// NewAstria constructs the client with sane defaults.
func NewAstria(opts AstriaOptions) (*Astria, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAstriaKey
	}
	if opts.TuneID <= 0 {
		return nil, errors.New("astria: tune id is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.astria.ai"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Astria{
		apiKey:      apiKey,
		baseURL:     baseURL,
		tuneID:      opts.TuneID,
		callbackURL: strings.TrimSpace(opts.CallbackURL),
		httpClient:  httpClient,
		logger:      opts.Logger,
	}, nil
}

type astriaPromptRequest struct {
	TuneID          int     `json:"tune_id"`
	Prompt          string  `json:"prompt"`
	InputImage      string  `json:"input_image,omitempty"`
	W               int     `json:"w"`
	H               int     `json:"h"`
	Style           string  `json:"style"`
	Scheduler       string  `json:"scheduler"`
	Steps           int     `json:"steps"`
	CFG             float64 `json:"cfg"`
	SuperResolution bool    `json:"super_resolution"`
	Callback        string  `json:"callback,omitempty"`
}

type astriaPrompt struct {
	ID            json.Number       `json:"id"`
	Status        string            `json:"status"`
	Images        []json.RawMessage `json:"images"`
	FailureReason string            `json:"failure_reason"`
}

// Submit creates a prompt against the configured tune and returns its id.
func (a *Astria) Submit(ctx context.Context, req Request) (string, error) {
	payload := astriaPromptRequest{
		TuneID:          a.tuneID,
		Prompt:          req.Prompt,
		W:               1024,
		H:               1024,
		Style:           "Photographic",
		Scheduler:       "euler_a",
		Steps:           30,
		CFG:             7.5,
		SuperResolution: true,
		Callback:        a.callbackURL,
	}
	if len(req.Members) > 0 {
		// The API accepts a single conditioning image; the first member
		// portrait is the primary reference, the rest steer via the prompt.
		payload.InputImage = dataURI(req.Members[0])
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("astria: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/tunes/prompts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("astria: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", NewError(KindTransient, fmt.Errorf("astria: http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewError(KindTransient, fmt.Errorf("astria: read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return "", a.errorFromStatus(resp.StatusCode, raw)
	}

	var created astriaPrompt
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", NewError(KindTransient, fmt.Errorf("astria: decode response: %w", err))
	}
	id := created.ID.String()
	if id == "" {
		return "", NewError(KindTransient, errors.New("astria: response missing prompt id"))
	}
	a.logger.Info().Str("provider_job_id", id).Msg("astria: prompt created")
	return id, nil
}

// Poll fetches the prompt's current status.
func (a *Astria) Poll(ctx context.Context, providerJobID string) (*PollResult, error) {
	endpoint := fmt.Sprintf("%s/tunes/prompts/%s", a.baseURL, url.PathEscape(providerJobID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("astria: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewError(KindTransient, fmt.Errorf("astria: http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindTransient, fmt.Errorf("astria: read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return nil, a.errorFromStatus(resp.StatusCode, raw)
	}

	var status astriaPrompt
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, NewError(KindTransient, fmt.Errorf("astria: decode response: %w", err))
	}
	return pollResultFromPrompt(status), nil
}

func (a *Astria) errorFromStatus(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 512 {
		detail = detail[:512]
	}
	return NewError(kindForStatus(status), fmt.Errorf("astria: status %d: %s", status, detail))
}

func pollResultFromPrompt(p astriaPrompt) *PollResult {
	switch p.Status {
	case "finished":
		if url := FirstImageURL(p.Images); url != "" {
			return &PollResult{State: PollStateFinished, ImageURL: url}
		}
		// Finished without images; keep polling until the asset appears.
		return &PollResult{State: PollStatePending}
	case "failed":
		reason := p.FailureReason
		if reason == "" {
			reason = "unknown reason"
		}
		return &PollResult{State: PollStateFailed, FailureReason: reason}
	default:
		return &PollResult{State: PollStatePending}
	}
}

// FirstImageURL extracts the first usable image URL from an Astria images
// array. Entries may be plain strings or objects with a url field.
func FirstImageURL(images []json.RawMessage) string {
	for _, entry := range images {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil && strings.TrimSpace(obj.URL) != "" {
			return strings.TrimSpace(obj.URL)
		}
	}
	return ""
}

// dataURI inlines a fetched reference as a data URI the prompt API accepts
// in place of a hosted image URL.
func dataURI(asset assets.Asset) string {
	contentType := strings.TrimSpace(asset.ContentType)
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(asset.Data)
}

var _ AsyncGenerator = (*Astria)(nil)

// CallbackURL assembles the webhook address Astria should post back to,
// carrying the shared secret as a query parameter.
func CallbackURL(baseURL, secret string) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return ""
	}
	u := strings.TrimRight(base, "/") + "/webhooks/astria"
	if secret != "" {
		u += "?secret=" + url.QueryEscape(secret)
	}
	return u
}
