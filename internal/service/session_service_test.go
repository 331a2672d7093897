package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/feellog-api/internal/models"
)

type failingSessionRepo struct {
	mockSessionRepo
	err error
}

func (f *failingSessionRepo) FindByTriple(ctx context.Context, sessionID, userID, refreshToken string) (*models.Session, error) {
	return nil, f.err
}

func TestSessionStoreCreateAndFind(t *testing.T) {
	repo := &mockSessionRepo{}
	metrics := NewMetricsService()
	store := NewSessionStore(repo, 2, nil, metrics)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	first, err := store.CreateSession(ctx, "user-1", "token-1", exp)
	require.NoError(t, err)
	second, err := store.CreateSession(ctx, "user-1", "token-2", exp.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	session, err := store.FindSession(ctx, first, "user-1", "token-1")
	require.NoError(t, err)
	assert.Equal(t, "token-1", session.RefreshToken)

	_, err = store.FindSession(ctx, first, "user-1", "token-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.FindSession(ctx, first, "user-2", "token-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.CreateSession(ctx, "user-1", "token-3", exp.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = store.FindUserSession(ctx, first, "user-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, uint64(1), metrics.Snapshot().SessionsEvicted)
}

func TestSessionStoreExpiry(t *testing.T) {
	store := NewSessionStore(&mockSessionRepo{}, 5, nil, nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	jakarta := time.FixedZone("WIB", 7*3600)
	assert.False(t, store.IsExpired(&models.Session{ExpiresAt: now.Add(time.Second).In(jakarta)}))
	assert.True(t, store.IsExpired(&models.Session{ExpiresAt: now}))
	assert.True(t, store.IsExpired(&models.Session{ExpiresAt: now.Add(-time.Hour).In(jakarta)}))
}

func TestSessionStoreDelete(t *testing.T) {
	repo := &mockSessionRepo{}
	store := NewSessionStore(repo, 5, nil, nil)
	ctx := context.Background()

	id, err := store.CreateSession(ctx, "user-1", "token", time.Now().Add(time.Hour))
	require.NoError(t, err)
	session, err := store.FindUserSession(ctx, id, "user-1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteExpired(ctx, session))
	require.NoError(t, store.DeleteExpired(ctx, session))
	assert.ErrorIs(t, store.DeleteSession(ctx, id, "user-1"), ErrSessionNotFound)
}

func TestSessionStorePropagatesRepositoryErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewSessionStore(&failingSessionRepo{err: boom}, 5, nil, nil)
	_, err := store.FindSession(context.Background(), uuid.NewString(), "u", "t")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStoreRejectsMalformedSessionID(t *testing.T) {
	boom := errors.New("pq: invalid input syntax for type uuid")
	store := NewSessionStore(&failingSessionRepo{err: boom}, 5, nil, nil)
	ctx := context.Background()

	for _, id := range []string{"abc", "", "refresh_token_1", "00000000-0000-0000-0000"} {
		_, err := store.FindSession(ctx, id, "user-1", "t")
		assert.ErrorIs(t, err, ErrSessionNotFound, id)
		_, err = store.FindUserSession(ctx, id, "user-1")
		assert.ErrorIs(t, err, ErrSessionNotFound, id)
		assert.ErrorIs(t, store.DeleteSession(ctx, id, "user-1"), ErrSessionNotFound, id)
	}
}
