package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"groupshot/internal/domain"
	"groupshot/internal/infra"
)

// GeneratedPhotoRepositoryPG implements domain.GeneratedPhotoStore on PostgreSQL.
type GeneratedPhotoRepositoryPG struct {
	db infra.SQLExecutor
}

// NewGeneratedPhotoRepository creates a new generated photo repository.
func NewGeneratedPhotoRepository(db infra.SQLExecutor) *GeneratedPhotoRepositoryPG {
	return &GeneratedPhotoRepositoryPG{db: db}
}

// Create inserts a generated photo record.
func (r *GeneratedPhotoRepositoryPG) Create(ctx context.Context, photo *domain.GeneratedPhoto) error {
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(photo.Metadata)
	if err != nil {
		return fmt.Errorf("encode photo metadata: %w", err)
	}
	query := `--sql 5b587cc3-ee9c-4c13-847e-d5266ba8064e
INSERT INTO generated_photos (id, group_id, image_url, prompt_used, generation_metadata)
VALUES ($1, $2, $3, $4, $5);
`
	_, err = r.db.Exec(ctx, query, photo.ID, photo.GroupID, photo.ImageURL, photo.PromptUsed, metadata)
	return err
}

// ListByGroupID returns a group's generated photos, newest first.
func (r *GeneratedPhotoRepositoryPG) ListByGroupID(ctx context.Context, groupID string) ([]domain.GeneratedPhoto, error) {
	query := `--sql 1dcbcd29-8299-4221-81ff-cd108064e430
SELECT id, group_id, image_url, prompt_used, generation_metadata, created_at
FROM generated_photos
WHERE group_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []domain.GeneratedPhoto
	for rows.Next() {
		var photo domain.GeneratedPhoto
		var metadata []byte
		if err := rows.Scan(&photo.ID, &photo.GroupID, &photo.ImageURL, &photo.PromptUsed, &metadata, &photo.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &photo.Metadata); err != nil {
				return nil, fmt.Errorf("decode photo metadata: %w", err)
			}
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

var _ domain.GeneratedPhotoStore = (*GeneratedPhotoRepositoryPG)(nil)
