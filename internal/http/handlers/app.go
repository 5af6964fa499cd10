package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"groupshot/internal/assets"
	"groupshot/internal/domain"
	"groupshot/internal/infra"
	"groupshot/internal/orchestrator"
	"groupshot/internal/resolver"
)

// GenerateService starts a group photo generation run.
type GenerateService interface {
	Generate(ctx context.Context, groupID string) (*orchestrator.Result, error)
}

// CallbackService routes provider webhook payloads to the completion resolver.
type CallbackService interface {
	HandleCallback(ctx context.Context, cb resolver.Callback) resolver.CallbackDisposition
}

// AssetDownloader retrieves a remote image for re-serving, e.g. in archives.
type AssetDownloader interface {
	Download(ctx context.Context, name, url string) (*assets.Asset, error)
}

type App struct {
	Groups        domain.GroupStore
	Jobs          domain.JobStore
	Photos        domain.GeneratedPhotoStore
	Generator     GenerateService
	Callbacks     CallbackService
	Downloader    AssetDownloader
	WebhookSecret string
	Logger        infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
