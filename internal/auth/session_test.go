package auth

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/carrental-system/internal/model"
)

func newTestManager() (*Manager, *TokenManager) {
	tokens := NewTokenManager("test-secret", time.Hour)
	return NewManager(tokens, NewMemorySessionStore(), time.Second), tokens
}

func TestManager_IssueResolveRevoke(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	token, expiresAt, err := m.Issue(ctx, Subject{Kind: SubjectProvider, ID: 7})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	subject, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, Subject{Kind: SubjectProvider, ID: 7}, subject)

	require.NoError(t, m.Revoke(ctx, token))

	_, err = m.Resolve(ctx, token)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestManager_RejectsTokenNotInStore(t *testing.T) {
	_, tokens := newTestManager()
	other := NewManager(tokens, NewMemorySessionStore(), time.Second)

	token, _, _, err := tokens.Generate(Subject{Kind: SubjectUser, ID: 1})
	require.NoError(t, err)

	_, err = other.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestTokenManager_Expired(t *testing.T) {
	tokens := NewTokenManager("test-secret", time.Minute)
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, _, err := tokens.Generate(Subject{Kind: SubjectUser, ID: 1})
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Parse(token)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	token, _, _, err := NewTokenManager("a", time.Hour).Generate(Subject{Kind: SubjectUser, ID: 1})
	require.NoError(t, err)

	_, err = NewTokenManager("b", time.Hour).Parse(token)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestSubjectOf(t *testing.T) {
	tests := []struct {
		name    string
		claims  Claims
		want    Subject
		wantErr bool
	}{
		{
			name:   "user without type",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "5"}},
			want:   Subject{Kind: SubjectUser, ID: 5},
		},
		{
			name:   "provider",
			claims: Claims{Type: SubjectProvider, RegisteredClaims: jwt.RegisteredClaims{Subject: "9"}},
			want:   Subject{Kind: SubjectProvider, ID: 9},
		},
		{
			name:    "unknown type",
			claims:  Claims{Type: "robot", RegisteredClaims: jwt.RegisteredClaims{Subject: "9"}},
			wantErr: true,
		},
		{
			name:    "bad subject",
			claims:  Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SubjectOf(&tt.claims)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Add(ctx, "a", "user:1", now.Add(time.Minute)))
	ok, err := s.Contains(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	ok, err = s.Contains(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSessionStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS is not set")
	}

	ctx := context.Background()
	s, err := NewRedisSessionStore(ctx, addr)
	require.NoError(t, err)
	defer s.Close()

	jti := "test-" + time.Now().Format(time.RFC3339Nano)
	owner := "user:" + jti
	require.NoError(t, s.Add(ctx, jti, owner, time.Now().Add(time.Minute)))

	ok, err := s.Contains(ctx, jti)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Remove(ctx, jti))
	ok, err = s.Contains(ctx, jti)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, jti+"-1", owner, time.Now().Add(time.Minute)))
	require.NoError(t, s.Add(ctx, jti+"-2", owner, time.Now().Add(time.Minute)))
	require.NoError(t, s.RemoveOwner(ctx, owner))
	for _, id := range []string{jti + "-1", jti + "-2"} {
		ok, err = s.Contains(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestSubject_Key(t *testing.T) {
	assert.Equal(t, "user:5", Subject{Kind: SubjectUser, ID: 5}.Key())
	assert.Equal(t, "provider:9", Subject{Kind: SubjectProvider, ID: 9}.Key())
}

func TestManager_RevokeSubject(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	first, _, err := m.Issue(ctx, Subject{Kind: SubjectUser, ID: 3})
	require.NoError(t, err)
	second, _, err := m.Issue(ctx, Subject{Kind: SubjectUser, ID: 3})
	require.NoError(t, err)
	// Провайдер с тем же числовым ID не затрагивается.
	provider, _, err := m.Issue(ctx, Subject{Kind: SubjectProvider, ID: 3})
	require.NoError(t, err)

	require.NoError(t, m.RevokeSubject(ctx, Subject{Kind: SubjectUser, ID: 3}))

	for _, token := range []string{first, second} {
		_, err = m.Resolve(ctx, token)
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	}
	subject, err := m.Resolve(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, Subject{Kind: SubjectProvider, ID: 3}, subject)
}

// failingStore имитирует недоступное хранилище сессий.
type failingStore struct {
	err   error
	block bool
}

func (s failingStore) wait(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s failingStore) Add(ctx context.Context, _, _ string, _ time.Time) error { return s.wait(ctx) }

func (s failingStore) Contains(ctx context.Context, _ string) (bool, error) {
	return false, s.wait(ctx)
}

func (s failingStore) Remove(ctx context.Context, _ string) error { return s.wait(ctx) }

func (s failingStore) RemoveOwner(ctx context.Context, _ string) error { return s.wait(ctx) }

func TestManager_StoreFailureIsTransient(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenManager("test-secret", time.Hour)
	m := NewManager(tokens, failingStore{err: errors.New("connection refused")}, time.Second)

	_, _, err := m.Issue(ctx, Subject{Kind: SubjectUser, ID: 1})
	assert.ErrorIs(t, err, model.ErrTransient)

	token, _, _, err := tokens.Generate(Subject{Kind: SubjectUser, ID: 1})
	require.NoError(t, err)

	_, err = m.Resolve(ctx, token)
	assert.ErrorIs(t, err, model.ErrTransient)
	assert.NotErrorIs(t, err, model.ErrUnauthorized)

	assert.ErrorIs(t, m.Revoke(ctx, token), model.ErrTransient)
	assert.ErrorIs(t, m.RevokeSubject(ctx, Subject{Kind: SubjectUser, ID: 1}), model.ErrTransient)
}

func TestManager_SlowStoreIsBounded(t *testing.T) {
	tokens := NewTokenManager("test-secret", time.Hour)
	m := NewManager(tokens, failingStore{block: true}, 50*time.Millisecond)

	token, _, _, err := tokens.Generate(Subject{Kind: SubjectUser, ID: 1})
	require.NoError(t, err)

	start := time.Now()
	_, err = m.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, model.ErrTransient)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestManager_InvalidTokenIsNotTransient(t *testing.T) {
	m := NewManager(NewTokenManager("test-secret", time.Hour), failingStore{block: true}, time.Second)

	_, err := m.Resolve(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.NotErrorIs(t, err, model.ErrTransient)
}
