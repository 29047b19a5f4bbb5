package repository

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T, ttl time.Duration) (ConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConversationRepository(client, "chat:conversation:", ttl), mr
}

func TestRedisRepository_GetUnknownID(t *testing.T) {
	repo, _ := newRedisRepo(t, 0)

	_, err := repo.Get(context.Background(), "never-written")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestRedisRepository_PutRoundTripsWithTTL(t *testing.T) {
	repo, mr := newRedisRepo(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "abc", sampleTurns()))

	got, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, sampleTurns(), got)

	raw, err := mr.Get("chat:conversation:abc")
	require.NoError(t, err)
	assert.Contains(t, raw, "\n  {\n    \"role\": \"user\"")
	assert.Equal(t, time.Hour, mr.TTL("chat:conversation:abc"))
}

func TestRedisRepository_ListTrimsPrefix(t *testing.T) {
	repo, mr := newRedisRepo(t, 0)
	ctx := context.Background()

	ids, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.Put(ctx, "b", sampleTurns()))
	require.NoError(t, repo.Put(ctx, "a", nil))
	require.NoError(t, mr.Set("session:other", "x"))

	ids, err = repo.List(ctx)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestRedisRepository_CorruptRecordAndInvalidID(t *testing.T) {
	repo, mr := newRedisRepo(t, 0)
	ctx := context.Background()
	require.NoError(t, mr.Set("chat:conversation:bad", "{not json"))

	_, err := repo.Get(ctx, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConversationNotFound)

	_, err = repo.Get(ctx, "../escape")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, repo.Put(ctx, "a/b", sampleTurns()), ErrInvalidID)
}
