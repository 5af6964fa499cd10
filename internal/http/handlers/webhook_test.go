package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"groupshot/internal/infra"
	"groupshot/internal/resolver"
)

type callbackRecorder struct {
	last        *resolver.Callback
	disposition resolver.CallbackDisposition
}

func (c *callbackRecorder) HandleCallback(ctx context.Context, cb resolver.Callback) resolver.CallbackDisposition {
	c.last = &cb
	if c.disposition == "" {
		return resolver.CallbackAccepted
	}
	return c.disposition
}

func newWebhookApp(recorder *callbackRecorder) *App {
	return &App{
		Callbacks:     recorder,
		WebhookSecret: "s3cret",
		Logger:        infra.NewLogger("test"),
	}
}

func postWebhook(app *App, secret, body string) *httptest.ResponseRecorder {
	url := "/webhooks/astria"
	if secret != "" {
		url += "?secret=" + secret
	}
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.AstriaWebhook(rec, req)
	return rec
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	recorder := &callbackRecorder{}
	app := newWebhookApp(recorder)

	for _, secret := range []string{"", "wrong"} {
		rec := postWebhook(app, secret, `{"prompt":{"id":1,"status":"finished"}}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("secret %q: status = %d, want 401", secret, rec.Code)
		}
	}
	if recorder.last != nil {
		t.Fatal("callback must not reach the resolver without a valid secret")
	}
}

func TestWebhookRejectsUnconfiguredSecret(t *testing.T) {
	app := newWebhookApp(&callbackRecorder{})
	app.WebhookSecret = ""
	rec := postWebhook(app, "anything", `{"prompt":{"id":1,"status":"finished"}}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	recorder := &callbackRecorder{}
	app := newWebhookApp(recorder)

	for _, body := range []string{"not json", "{}", `{"prompt":{"status":"finished"}}`, `{"prompt":{"id":7}}`} {
		rec := postWebhook(app, "s3cret", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if recorder.last != nil {
		t.Fatal("malformed payloads must not reach the resolver")
	}
}

func TestWebhookAcceptsEnvelopedPayload(t *testing.T) {
	recorder := &callbackRecorder{}
	app := newWebhookApp(recorder)

	body := `{"prompt":{"id":912,"status":"finished","images":[{"url":"https://cdn/u.jpg"},"https://cdn/extra.jpg"]}}`
	rec := postWebhook(app, "s3cret", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if recorder.last == nil {
		t.Fatal("expected the callback to reach the resolver")
	}
	if recorder.last.ProviderJobID != "912" {
		t.Fatalf("provider job id = %q, want 912", recorder.last.ProviderJobID)
	}
	if recorder.last.Status != "finished" {
		t.Fatalf("status = %q, want finished", recorder.last.Status)
	}
	if recorder.last.ImageURL != "https://cdn/u.jpg" {
		t.Fatalf("image url = %q", recorder.last.ImageURL)
	}
}

func TestWebhookAcceptsFlatPayload(t *testing.T) {
	recorder := &callbackRecorder{}
	app := newWebhookApp(recorder)

	body := `{"providerJobId":"prov-9","status":"failed","failureReason":"nsfw filter"}`
	rec := postWebhook(app, "s3cret", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if recorder.last == nil || recorder.last.ProviderJobID != "prov-9" {
		t.Fatalf("callback = %+v", recorder.last)
	}
	if recorder.last.FailureReason != "nsfw filter" {
		t.Fatalf("failure reason = %q", recorder.last.FailureReason)
	}
}

func TestWebhookReportsDisposition(t *testing.T) {
	recorder := &callbackRecorder{disposition: resolver.CallbackUnknownJob}
	app := newWebhookApp(recorder)

	rec := postWebhook(app, "s3cret", `{"prompt":{"id":1,"status":"finished","images":["https://cdn/u.jpg"]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even for unknown jobs", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(resolver.CallbackUnknownJob)) {
		t.Fatalf("body %q should carry the disposition", rec.Body.String())
	}
}
