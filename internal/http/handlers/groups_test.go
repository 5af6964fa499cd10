package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"groupshot/internal/adapter/repo"
	"groupshot/internal/domain"
	"groupshot/internal/infra"
)

func newGroupApp(store *repo.MemoryStore) *App {
	return &App{
		Groups: store.Groups(),
		Jobs:   store.Jobs(),
		Logger: infra.NewLogger("test"),
	}
}

func getPath(app *App, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/groups/{id}", app.GetGroup)
	r.Get("/groups/{id}/jobs/latest", app.GetLatestJob)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetGroup(t *testing.T) {
	store := repo.NewMemoryStore()
	store.PutGroup(&domain.Group{
		ID:                "group-1",
		Name:              "ski trip",
		Status:            domain.GroupStatusCompleted,
		GeneratedPhotoURL: "https://cdn/u.jpg",
		Members: []domain.MemberPhoto{
			{Name: "alice", PhotoURL: "https://cdn/a.jpg"},
			{Name: "bob", PhotoURL: "https://cdn/b.jpg"},
		},
	})
	app := newGroupApp(store)

	rec := getPath(app, "/groups/group-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body groupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != string(domain.GroupStatusCompleted) || body.GeneratedPhotoURL != "https://cdn/u.jpg" {
		t.Fatalf("body = %+v", body)
	}
	if body.MemberCount != 2 {
		t.Fatalf("member count = %d, want 2", body.MemberCount)
	}

	if rec := getPath(app, "/groups/missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing group status = %d, want 404", rec.Code)
	}
}

func TestGetLatestJob(t *testing.T) {
	store := repo.NewMemoryStore()
	store.PutGroup(&domain.Group{ID: "group-1", Name: "g", Status: domain.GroupStatusCollecting})
	app := newGroupApp(store)

	if rec := getPath(app, "/groups/group-1/jobs/latest"); rec.Code != http.StatusNotFound {
		t.Fatalf("no jobs status = %d, want 404", rec.Code)
	}

	job, err := store.Create(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, _, err := store.Finalize(context.Background(), job.ID, domain.Failed("timeout")); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	rec := getPath(app, "/groups/group-1/jobs/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != string(domain.JobStatusFailed) || body.FailureReason != "timeout" {
		t.Fatalf("body = %+v", body)
	}
}
