package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"groupshot/internal/domain"
)

type groupResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	GeneratedPhotoURL string `json:"generated_photo_url,omitempty"`
	MemberCount       int    `json:"member_count"`
	BackgroundCount   int    `json:"background_count"`
}

type jobResponse struct {
	ID             string     `json:"id"`
	GroupID        string     `json:"group_id"`
	ProviderJobID  string     `json:"provider_job_id,omitempty"`
	Status         string     `json:"status"`
	ResultAssetURL string     `json:"result_asset_url,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	Attempts       int        `json:"attempts"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	FinalizedAt    *time.Time `json:"finalized_at,omitempty"`
}

func (a *App) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	group, err := a.Groups.Get(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "group not found")
			return
		}
		a.Logger.Error().Err(err).Str("group_id", groupID).Msg("load group failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load group")
		return
	}
	a.json(w, http.StatusOK, groupResponse{
		ID:                group.ID,
		Name:              group.Name,
		Status:            string(group.Status),
		GeneratedPhotoURL: group.GeneratedPhotoURL,
		MemberCount:       len(group.Members),
		BackgroundCount:   len(group.Backgrounds),
	})
}

func (a *App) GetLatestJob(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	job, err := a.Jobs.GetLatestByGroupID(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no jobs for group")
			return
		}
		a.Logger.Error().Err(err).Str("group_id", groupID).Msg("load latest job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, jobResponse{
		ID:             job.ID,
		GroupID:        job.GroupID,
		ProviderJobID:  job.ProviderJobID,
		Status:         string(job.Status),
		ResultAssetURL: job.ResultAssetURL,
		FailureReason:  job.FailureReason,
		Attempts:       job.Attempts,
		SubmittedAt:    job.SubmittedAt,
		FinalizedAt:    job.FinalizedAt,
	})
}
