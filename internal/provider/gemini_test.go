package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"groupshot/internal/assets"
	"groupshot/internal/infra"
)

func newTestGemini(t *testing.T, baseURL string) *Gemini {
	t.Helper()
	g, err := NewGemini(GeminiOptions{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gemini-2.5-flash",
		Logger:  infra.NewLogger("test"),
	})
	if err != nil {
		t.Fatalf("NewGemini returned error: %v", err)
	}
	return g
}

func TestGeminiGenerateReturnsInlineImage(t *testing.T) {
	imageBytes := []byte{0x89, 0x50, 0x4e, 0x47}
	var got geminiGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if key := r.URL.Query().Get("key"); key != "test-key" {
			t.Errorf("key = %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "here you go"},
						{"inlineData": map[string]any{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(imageBytes),
						}},
					},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL)
	img, err := g.Generate(context.Background(), Request{
		Prompt: "compose the group",
		Members: []assets.Asset{
			{Name: "alice", ContentType: "image/jpeg", Data: []byte("a")},
			{Name: "bob", ContentType: "image/jpeg", Data: []byte("b")},
		},
		Background: &assets.Asset{Name: "beach", ContentType: "image/png", Data: []byte("bg")},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if string(img.Data) != string(imageBytes) {
		t.Fatalf("image bytes mismatch: %v", img.Data)
	}
	if img.ContentType != "image/png" {
		t.Fatalf("ContentType = %q, want image/png", img.ContentType)
	}
	// prompt text + background + two members
	if parts := got.Contents[0].Parts; len(parts) != 4 {
		t.Fatalf("request parts = %d, want 4", len(parts))
	}
	if got.Contents[0].Parts[0].Text == "" {
		t.Fatalf("first part should carry the prompt text")
	}
}

func TestGeminiGenerateNoImageData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "cannot do that"}]}}]}`))
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL)
	_, err := g.Generate(context.Background(), Request{Prompt: "compose"})
	if err == nil {
		t.Fatalf("expected error when response has no image")
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindInvalidRequest {
		t.Fatalf("err = %v, want KindInvalidRequest", err)
	}
}

func TestGeminiGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL)
	_, err := g.Generate(context.Background(), Request{Prompt: "compose"})
	if !IsRetryable(err) {
		t.Fatalf("5xx should classify as retryable, got %v", err)
	}
}
