package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"groupshot/internal/infra"
)

const (
	ProviderGemini = "gemini"
	ProviderAstria = "astria"
)

// Store keeps provider API keys in the database so deployments can rotate
// them without restarting. Environment variables still win when set.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

func (s *Store) AstriaAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderAstria)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	query := `--sql 1b04eef7-6c84-47bf-83b4-cd3693c838f9
SELECT token
FROM integration_tokens
WHERE provider = $1;
`
	row := s.sql.QueryRow(ctx, query, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.TrimSpace(provider)
	token = strings.TrimSpace(token)
	if provider == "" || token == "" {
		return errors.New("provider and token are required")
	}
	return s.upsert(ctx, provider, token, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	query := `--sql 2b8f6f7d-4f30-4f43-a7f4-6f1334e9f2c4
INSERT INTO integration_tokens (provider, token, properties, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (provider)
DO UPDATE SET token = EXCLUDED.token, properties = EXCLUDED.properties, updated_at = now();
`
	_, err = s.sql.Exec(ctx, query, provider, token, raw)
	return err
}
