// Package credentials keeps the generative API key in Postgres so workers can
// start without it in their environment.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kairopi/internal/infra"
	"kairopi/internal/sqlinline"
)

const ProviderGemini = "gemini"

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// EnsureSchema creates the token table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QCreateIntegrationTokensTable); err != nil {
		return fmt.Errorf("credentials: create table: %w", err)
	}
	return nil
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

// Token returns an empty string when no token was stored for provider.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	return s.upsert(ctx, ProviderGemini, key, map[string]any{"source": "geminikey"})
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
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// ResolveGeminiKey returns the configured key, falling back to the stored one.
func ResolveGeminiKey(ctx context.Context, cfg *infra.Config, store *Store) (string, error) {
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		return key, nil
	}
	if store == nil {
		return "", nil
	}
	return store.GeminiAPIKey(ctx)
}
