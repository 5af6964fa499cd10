package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"groupshot/internal/domain"
	"groupshot/internal/infra"
)

// MinMemberPhotos is the smallest number of member references a composition
// can be built from.
const MinMemberPhotos = 2

const defaultContentType = "image/jpeg"

// Role distinguishes member portraits from background scenes.
type Role string

const (
	RoleMember     Role = "member"
	RoleBackground Role = "background"
)

// Ref points at one asset to fetch.
type Ref struct {
	Name string
	URL  string
	Role Role
}

// Asset is a fetched reference image ready to hand to a provider.
type Asset struct {
	Name        string
	Role        Role
	ContentType string
	Data        []byte
}

// Fetcher retrieves reference assets over plain HTTP(S) GET. It is pure: no
// group state is touched regardless of outcome.
type Fetcher struct {
	client       *http.Client
	logger       infra.Logger
	retryBackoff time.Duration
}

// NewFetcher builds a Fetcher. A nil client gets a 30s-timeout default.
func NewFetcher(client *http.Client, logger infra.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, logger: logger, retryBackoff: 500 * time.Millisecond}
}

// Fetch retrieves every ref, dropping assets that still fail after one retry.
// It returns domain.ErrInsufficientAssets when fewer than MinMemberPhotos
// member assets survive; a missing background never fails the aggregate.
func (f *Fetcher) Fetch(ctx context.Context, refs []Ref) ([]Asset, error) {
	fetched := make([]Asset, 0, len(refs))
	members := 0
	for _, ref := range refs {
		asset, err := f.fetchOne(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn().Err(err).
				Str("url", ref.URL).
				Str("role", string(ref.Role)).
				Msg("assets: dropping unreachable reference")
			continue
		}
		fetched = append(fetched, *asset)
		if ref.Role == RoleMember {
			members++
		}
	}
	if members < MinMemberPhotos {
		return nil, fmt.Errorf("%w: need %d member photos, fetched %d", domain.ErrInsufficientAssets, MinMemberPhotos, members)
	}
	return fetched, nil
}

// Download retrieves a single asset with the same retry behavior as Fetch.
func (f *Fetcher) Download(ctx context.Context, name, url string) (*Asset, error) {
	return f.fetchOne(ctx, Ref{Name: name, URL: url})
}

func (f *Fetcher) fetchOne(ctx context.Context, ref Ref) (*Asset, error) {
	asset, err := f.get(ctx, ref)
	if err == nil {
		return asset, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.retryBackoff):
	}
	return f.get(ctx, ref)
}

func (f *Fetcher) get(ctx context.Context, ref Ref) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("assets: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assets: fetch %s: %w", ref.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assets: fetch %s: unexpected status %d", ref.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("assets: read %s: %w", ref.URL, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("assets: fetch %s: empty body", ref.URL)
	}
	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Asset{
		Name:        ref.Name,
		Role:        ref.Role,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// RefsForGroup maps a group's member photos and first background onto fetch refs.
func RefsForGroup(group *domain.Group) []Ref {
	refs := make([]Ref, 0, len(group.Members)+1)
	for _, m := range group.Members {
		if strings.TrimSpace(m.PhotoURL) == "" {
			continue
		}
		refs = append(refs, Ref{Name: m.Name, URL: m.PhotoURL, Role: RoleMember})
	}
	if len(group.Backgrounds) > 0 && strings.TrimSpace(group.Backgrounds[0].ImageURL) != "" {
		refs = append(refs, Ref{
			Name: group.Backgrounds[0].Name,
			URL:  group.Backgrounds[0].ImageURL,
			Role: RoleBackground,
		})
	}
	return refs
}
