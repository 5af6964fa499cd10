package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"groupshot/internal/domain"
	pkgzip "groupshot/pkg/zip"
)

// PhotoArchive bundles every generated photo of a group into a zip download.
func (a *App) PhotoArchive(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	photos, err := a.Photos.ListByGroupID(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "group not found")
			return
		}
		a.Logger.Error().Err(err).Str("group_id", groupID).Msg("list photos failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load photos")
		return
	}
	if len(photos) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no generated photos for group")
		return
	}

	var items []pkgzip.Asset
	for i, photo := range photos {
		asset, err := a.Downloader.Download(r.Context(), photo.ID, photo.ImageURL)
		if err != nil {
			a.Logger.Warn().Err(err).Str("photo_id", photo.ID).Msg("skipping unreachable photo")
			continue
		}
		items = append(items, pkgzip.Asset{
			Filename: fmt.Sprintf("photo-%02d%s", i+1, extensionFor(asset.ContentType)),
			MIME:     asset.ContentType,
			Data:     asset.Data,
		})
	}
	if len(items) == 0 {
		a.error(w, http.StatusBadGateway, "unreachable", "no photo could be downloaded")
		return
	}

	archive, err := pkgzip.ArchiveAssets(items)
	if err != nil {
		a.Logger.Error().Err(err).Str("group_id", groupID).Msg("archive build failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "group-"+groupID+"-photos.zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
