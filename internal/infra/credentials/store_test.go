package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairopi/internal/infra"
	"kairopi/internal/sqlinline"
)

type stubExecutor struct {
	token   string
	err     error
	queries []string
	args    []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestGeminiAPIKeyTrimsStoredValue(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.GeminiAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)
}

func TestGeminiAPIKeyNoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.GeminiAPIKey(context.Background())
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestGeminiAPIKeyPropagatesErrors(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("boom")})
	_, err := store.GeminiAPIKey(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestSetGeminiAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	require.NoError(t, store.SetGeminiAPIKey(context.Background(), " secret "))
	require.Len(t, exec.queries, 1)
	assert.Equal(t, sqlinline.QUpsertIntegrationToken, exec.queries[0])
	assert.Equal(t, ProviderGemini, exec.args[0])
	assert.Equal(t, "secret", exec.args[1])

	assert.Error(t, store.SetGeminiAPIKey(context.Background(), "  "))
}

func TestEnsureSchema(t *testing.T) {
	exec := &stubExecutor{}
	require.NoError(t, NewStore(exec).EnsureSchema(context.Background()))
	assert.Equal(t, []string{sqlinline.QCreateIntegrationTokensTable}, exec.queries)
}

func TestResolveGeminiKeyPrefersConfig(t *testing.T) {
	exec := &stubExecutor{token: "stored"}
	key, err := ResolveGeminiKey(context.Background(), &infra.Config{GeminiAPIKey: "env"}, NewStore(exec))
	require.NoError(t, err)
	assert.Equal(t, "env", key)
	assert.Empty(t, exec.queries)

	key, err = ResolveGeminiKey(context.Background(), &infra.Config{}, NewStore(exec))
	require.NoError(t, err)
	assert.Equal(t, "stored", key)

	key, err = ResolveGeminiKey(context.Background(), &infra.Config{}, nil)
	require.NoError(t, err)
	assert.Empty(t, key)
}
