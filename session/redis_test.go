package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKeysExpireAfterRetention(t *testing.T) {
	clock := newTestClock()
	store, mr := newRedisTestStore(t, clock)
	ctx := context.Background()

	sid, err := store.CreateSession(ctx, "p1", nil)
	require.NoError(t, err)
	assert.True(t, mr.TTL(store.sessionKey(sid)) > 0, "pending session must expire")

	require.NoError(t, store.RecordRefreshToken(ctx, sid, "t1", clock.Now().Add(time.Hour)))
	ttl := mr.TTL(store.tokenKey("t1"))
	assert.True(t, ttl > time.Hour && ttl <= 25*time.Hour, "unexpected ttl %s", ttl)
	assert.True(t, mr.TTL(store.principalKey("p1")) > 0)
}

func TestRedisListSessionsPrunesExpiredIndexEntries(t *testing.T) {
	clock := newTestClock()
	store, mr := newRedisTestStore(t, clock)
	ctx := context.Background()

	sid := newLiveSession(t, store, clock, "t1")
	mr.Del(store.sessionKey(sid))

	list, err := store.ListSessions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.False(t, mr.Exists(store.principalKey("p1")))
}

func TestRedisKeysShareOneHashSlot(t *testing.T) {
	clock := newTestClock()
	store, mr := newRedisTestStore(t, clock)
	ctx := context.Background()

	sid := newLiveSession(t, store, clock, "t1")
	require.NoError(t, store.RecordRefreshToken(ctx, sid, "t2", clock.Now().Add(time.Hour)))
	_, err := store.ConsumeRefreshToken(ctx, "t1")
	require.ErrorIs(t, err, ErrReused)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "{rn}:"), "key %q outside the store hash tag", k)
	}
}

func TestRedisHashTag(t *testing.T) {
	cases := map[string]string{
		"rn":          "{rn}",
		"app:rn":      "{app:rn}",
		"{tenant}:rn": "{tenant}:rn",
		"{}rn":        "{{}rn}",
	}
	for in, want := range cases {
		assert.Equal(t, want, hashTag(in), in)
	}
}

func TestRedisUnavailableIsWrapped(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisStore(rdb, "rn")

	_, err := store.ConsumeRefreshToken(context.Background(), "t1")
	require.True(t, errors.Is(err, ErrUnavailable), "got %v", err)

	_, err = store.CreateSession(context.Background(), "p1", nil)
	require.ErrorIs(t, err, ErrUnavailable)
}
