package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"groupshot/internal/provider"
	"groupshot/internal/resolver"
)

// astriaWebhookPayload is the enveloped shape Astria posts to the callback
// URL. The flat shape is accepted too for providers that post the prompt
// fields at the top level.
type astriaWebhookPayload struct {
	Prompt *astriaWebhookPrompt `json:"prompt"`

	ProviderJobID string            `json:"providerJobId"`
	Status        string            `json:"status"`
	ImageURL      string            `json:"imageUrl"`
	Images        []json.RawMessage `json:"images"`
	FailureReason string            `json:"failureReason"`
}

type astriaWebhookPrompt struct {
	ID            json.Number       `json:"id"`
	Status        string            `json:"status"`
	Images        []json.RawMessage `json:"images"`
	FailureReason string            `json:"failure_reason"`
}

func (p *astriaWebhookPayload) callback() (resolver.Callback, bool) {
	cb := resolver.Callback{
		ProviderJobID: strings.TrimSpace(p.ProviderJobID),
		Status:        strings.TrimSpace(p.Status),
		ImageURL:      strings.TrimSpace(p.ImageURL),
		FailureReason: p.FailureReason,
	}
	if cb.ImageURL == "" {
		cb.ImageURL = provider.FirstImageURL(p.Images)
	}
	if p.Prompt != nil {
		cb.ProviderJobID = p.Prompt.ID.String()
		cb.Status = strings.TrimSpace(p.Prompt.Status)
		cb.ImageURL = provider.FirstImageURL(p.Prompt.Images)
		cb.FailureReason = p.Prompt.FailureReason
	}
	if cb.ProviderJobID == "" || cb.ProviderJobID == "0" || cb.Status == "" {
		return resolver.Callback{}, false
	}
	return cb, true
}

func (a *App) AstriaWebhook(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if a.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(a.WebhookSecret)) != 1 {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
		return
	}

	if a.Callbacks == nil {
		// No asynchronous provider is configured, nothing can consume this.
		a.error(w, http.StatusNotFound, "not_found", "webhook intake is not enabled")
		return
	}

	var payload astriaWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	cb, ok := payload.callback()
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "payload missing prompt id or status")
		return
	}

	disposition := a.Callbacks.HandleCallback(r.Context(), cb)
	a.Logger.Info().
		Str("provider_job_id", cb.ProviderJobID).
		Str("status", cb.Status).
		Str("disposition", string(disposition)).
		Msg("astria webhook processed")

	a.json(w, http.StatusOK, map[string]string{"result": string(disposition)})
}
