package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"groupshot/internal/domain"
	"groupshot/internal/infra"
)

// GroupRepositoryPG implements domain.GroupStore on PostgreSQL.
type GroupRepositoryPG struct {
	db infra.SQLExecutor
}

// NewGroupRepository creates a new group repository backed by PostgreSQL.
func NewGroupRepository(db infra.SQLExecutor) *GroupRepositoryPG {
	return &GroupRepositoryPG{db: db}
}

// Get fetches a group together with its member photo references and
// background images.
func (r *GroupRepositoryPG) Get(ctx context.Context, groupID string) (*domain.Group, error) {
	query := `--sql aaaf8820-4867-480a-b61b-e301377cf088
SELECT id, name, status, COALESCE(generated_photo_url, ''), created_at
FROM groups
WHERE id = $1;
`
	var group domain.Group
	if err := r.db.QueryRow(ctx, query, groupID).Scan(
		&group.ID,
		&group.Name,
		&group.Status,
		&group.GeneratedPhotoURL,
		&group.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	members, err := r.listMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	group.Members = members

	backgrounds, err := r.listBackgrounds(ctx, groupID)
	if err != nil {
		return nil, err
	}
	group.Backgrounds = backgrounds

	return &group, nil
}

func (r *GroupRepositoryPG) listMembers(ctx context.Context, groupID string) ([]domain.MemberPhoto, error) {
	query := `--sql 532ec6b3-f619-4bca-9954-cf99f62d9ad7
SELECT name, COALESCE(photo_url, '')
FROM group_members
WHERE group_id = $1
ORDER BY created_at;
`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.MemberPhoto
	for rows.Next() {
		var m domain.MemberPhoto
		if err := rows.Scan(&m.Name, &m.PhotoURL); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *GroupRepositoryPG) listBackgrounds(ctx context.Context, groupID string) ([]domain.BackgroundImage, error) {
	query := `--sql f63161c3-b8ee-4944-b158-178c12265a05
SELECT name, COALESCE(image_url, '')
FROM group_backgrounds
WHERE group_id = $1
ORDER BY created_at;
`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var backgrounds []domain.BackgroundImage
	for rows.Next() {
		var b domain.BackgroundImage
		if err := rows.Scan(&b.Name, &b.ImageURL); err != nil {
			return nil, err
		}
		backgrounds = append(backgrounds, b)
	}
	return backgrounds, rows.Err()
}

// TransitionStatus performs the atomic compare-and-set on group status. It is
// the admission-control gate for collecting→processing and the only writer of
// the completed and rollback transitions.
func (r *GroupRepositoryPG) TransitionStatus(ctx context.Context, groupID string, from, to domain.GroupStatus) error {
	query := `--sql 38e28933-e3f4-4ced-86d2-647a29579778
UPDATE groups
SET status = $3
WHERE id = $1 AND status = $2;
`
	tag, err := r.db.Exec(ctx, query, groupID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStatusConflict
	}
	return nil
}

// SetGeneratedPhotoURL denormalizes the latest generated photo onto the group row.
func (r *GroupRepositoryPG) SetGeneratedPhotoURL(ctx context.Context, groupID, url string) error {
	query := `--sql b2f39022-911e-4ce4-a869-a7daafccf5bf
UPDATE groups
SET generated_photo_url = $2
WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, groupID, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.GroupStore = (*GroupRepositoryPG)(nil)
