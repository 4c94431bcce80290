package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/memory"
)

func TestOwnerCache_FallsBackWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	docs := memory.NewDocuments(entity.Document{ID: "doc1", OwnerID: "alice"})
	c := NewOwnerCache(rdb, docs, time.Minute, zap.NewNop())

	owner, err := c.GetOwner(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	owner, err = c.GetOwner(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestOwnerCache_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis test")
	}

	ctx := context.Background()
	rdb := NewClient(Config{Addr: addr})
	defer rdb.Close()

	docs := memory.NewDocuments(entity.Document{ID: "cache-doc", OwnerID: "alice"})
	c := NewOwnerCache(rdb, docs, time.Minute, zap.NewNop())
	require.NoError(t, c.Ping(ctx))
	rdb.Del(ctx, keyPrefix+"cache-doc")

	owner, err := c.GetOwner(ctx, "cache-doc")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	cached, err := rdb.Get(ctx, keyPrefix+"cache-doc").Result()
	require.NoError(t, err)
	assert.Equal(t, "alice", cached)

	// ownership transfer invalidates the entry
	require.NoError(t, c.Save(ctx, &entity.Document{ID: "cache-doc", OwnerID: "bob"}))
	owner, err = c.GetOwner(ctx, "cache-doc")
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
}
