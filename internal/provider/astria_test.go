package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"groupshot/internal/assets"
	"groupshot/internal/infra"
)

func newTestAstria(t *testing.T, baseURL string) *Astria {
	t.Helper()
	a, err := NewAstria(AstriaOptions{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		TuneID:      42,
		CallbackURL: "https://example.com/webhooks/astria?secret=s",
		Logger:      infra.NewLogger("test"),
	})
	if err != nil {
		t.Fatalf("NewAstria returned error: %v", err)
	}
	return a
}

func TestAstriaSubmitCreatesPrompt(t *testing.T) {
	var got astriaPromptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tunes/prompts" {
			t.Errorf("path = %q, want /tunes/prompts", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"id": 9912, "status": "pending"}`))
	}))
	defer srv.Close()

	a := newTestAstria(t, srv.URL)
	id, err := a.Submit(context.Background(), Request{
		Prompt:  "compose",
		Members: []assets.Asset{{Name: "alice", ContentType: "image/png", Data: []byte("img")}},
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if id != "9912" {
		t.Fatalf("provider job id = %q, want 9912", id)
	}
	if got.TuneID != 42 {
		t.Fatalf("tune_id = %d, want 42", got.TuneID)
	}
	if got.Callback == "" {
		t.Fatalf("callback missing from request")
	}
	if got.InputImage == "" {
		t.Fatalf("input_image missing from request")
	}
}

func TestAstriaSubmitClassifiesAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newTestAstria(t, srv.URL)
	_, err := a.Submit(context.Background(), Request{Prompt: "compose"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindAuth {
		t.Fatalf("err = %v, want KindAuth", err)
	}
	if pe.Retryable() {
		t.Fatalf("auth error must not be retryable")
	}
}

func TestAstriaSubmitClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := newTestAstria(t, srv.URL)
	_, err := a.Submit(context.Background(), Request{Prompt: "compose"})
	if !IsRetryable(err) {
		t.Fatalf("rate limit should be retryable, got %v", err)
	}
	if Classify(err) != KindRateLimited {
		t.Fatalf("Classify = %v, want KindRateLimited", Classify(err))
	}
}

func TestAstriaPollStates(t *testing.T) {
	responses := map[string]string{
		"/tunes/prompts/1": `{"id": 1, "status": "pending"}`,
		"/tunes/prompts/2": `{"id": 2, "status": "finished", "images": ["https://cdn.astria.ai/out.jpg"]}`,
		"/tunes/prompts/3": `{"id": 3, "status": "finished", "images": [{"url": "https://cdn.astria.ai/obj.jpg"}]}`,
		"/tunes/prompts/4": `{"id": 4, "status": "failed", "failure_reason": "nsfw filter"}`,
		"/tunes/prompts/5": `{"id": 5, "status": "finished", "images": []}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	a := newTestAstria(t, srv.URL)
	ctx := context.Background()

	cases := []struct {
		id     string
		state  PollState
		url    string
		reason string
	}{
		{"1", PollStatePending, "", ""},
		{"2", PollStateFinished, "https://cdn.astria.ai/out.jpg", ""},
		{"3", PollStateFinished, "https://cdn.astria.ai/obj.jpg", ""},
		{"4", PollStateFailed, "", "nsfw filter"},
		{"5", PollStatePending, "", ""},
	}
	for _, tc := range cases {
		result, err := a.Poll(ctx, tc.id)
		if err != nil {
			t.Fatalf("Poll(%s) returned error: %v", tc.id, err)
		}
		if result.State != tc.state {
			t.Fatalf("Poll(%s).State = %q, want %q", tc.id, result.State, tc.state)
		}
		if result.ImageURL != tc.url {
			t.Fatalf("Poll(%s).ImageURL = %q, want %q", tc.id, result.ImageURL, tc.url)
		}
		if result.FailureReason != tc.reason {
			t.Fatalf("Poll(%s).FailureReason = %q, want %q", tc.id, result.FailureReason, tc.reason)
		}
	}
}

func TestCallbackURL(t *testing.T) {
	got := CallbackURL("https://app.example.com/", "s3cret&more")
	want := "https://app.example.com/webhooks/astria?secret=s3cret%26more"
	if got != want {
		t.Fatalf("CallbackURL = %q, want %q", got, want)
	}
	if CallbackURL("", "x") != "" {
		t.Fatalf("empty base should produce empty callback")
	}
}
