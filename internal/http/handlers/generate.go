package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"groupshot/internal/domain"
	"groupshot/internal/provider"
)

type generateResponse struct {
	Accepted          bool   `json:"accepted"`
	GeneratedImageURL string `json:"generated_image_url,omitempty"`
}

func (a *App) GeneratePhoto(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	if groupID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "group id required")
		return
	}

	result, err := a.Generator.Generate(r.Context(), groupID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "group not found")
		case errors.Is(err, domain.ErrAlreadyProcessing), errors.Is(err, domain.ErrJobAlreadyInFlight):
			a.error(w, http.StatusConflict, "already_processing", "a generation run is already in progress for this group")
		case errors.Is(err, domain.ErrInsufficientAssets):
			a.error(w, http.StatusUnprocessableEntity, "insufficient_assets", "at least two member photos are required")
		default:
			var perr *provider.Error
			if errors.As(err, &perr) {
				a.Logger.Error().Err(err).Str("group_id", groupID).Str("kind", string(perr.Kind)).Msg("provider generation failed")
				a.error(w, http.StatusBadGateway, "provider_error", "image provider rejected the generation request")
				return
			}
			a.Logger.Error().Err(err).Str("group_id", groupID).Msg("generation failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to start generation")
		}
		return
	}

	a.json(w, http.StatusOK, generateResponse{
		Accepted:          result.Accepted,
		GeneratedImageURL: result.GeneratedImageURL,
	})
}
