package rediscache

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/plantops/opsbrief/cache"
	"github.com/plantops/opsbrief/opsmodel"
)

var (
	testRedisClient    *redis.Client
	testRedisContainer testcontainers.Container
	skipRedisTests     bool
	redisSetupDone     bool
)

func setupRedis(t *testing.T) {
	t.Helper()
	if redisSetupDone {
		return
	}
	redisSetupDone = true
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}
		testRedisContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		skipRedisTests = true
		return
	}

	host, err := testRedisContainer.Host(ctx)
	if err != nil {
		skipRedisTests = true
		return
	}
	port, err := testRedisContainer.MappedPort(ctx, "6379")
	if err != nil {
		skipRedisTests = true
		return
	}

	testRedisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := testRedisClient.Ping(ctx).Err(); err != nil {
		skipRedisTests = true
	}
}

func integrationCache(t *testing.T) *Cache {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode, skipping Redis integration test")
	}
	setupRedis(t)
	if skipRedisTests {
		t.Skip("Docker not available, skipping Redis integration test")
	}
	prefix := "opsbrief:test:" + t.Name() + ":"
	c := New(testRedisClient, prefix)
	if _, err := c.Invalidate(context.Background(), cache.Selector{All: true}); err != nil {
		t.Fatalf("clean keyspace: %v", err)
	}
	return c
}

func TestRedisCacheSetGetAnnotates(t *testing.T) {
	c := integrationCache(t)
	ctx := context.Background()

	stored := opsmodel.ToolResult{Success: true, Data: map[string]any{"value": 1.0}}
	if err := c.Set(ctx, "oee_query:u:aaaa", cache.TierDaily, stored); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := c.Get(ctx, "oee_query:u:aaaa")
	if err != nil || !ok {
		t.Fatalf("Get = ok=%v err=%v, want hit", ok, err)
	}
	if got.Metadata.CachedAt == nil || got.Metadata.CacheTier != "daily" {
		t.Errorf("hit must be annotated, got %+v", got.Metadata)
	}
	data, _ := got.Data.(map[string]any)
	if data["value"] != 1.0 {
		t.Errorf("payload lost in the round trip: %+v", got.Data)
	}
}

func TestRedisCacheMiss(t *testing.T) {
	c := integrationCache(t)
	if _, ok, err := c.Get(context.Background(), "absent:u:ffff"); ok || err != nil {
		t.Errorf("absent key must miss cleanly, ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheTierNoneNeverStored(t *testing.T) {
	c := integrationCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, "t:u:h", cache.TierNone, opsmodel.ToolResult{Success: true}); err != nil {
		t.Fatalf("Set(TierNone): %v", err)
	}
	if _, ok, _ := c.Get(ctx, "t:u:h"); ok {
		t.Error("TierNone values must never be stored")
	}
}

func TestRedisCacheInvalidateSelectors(t *testing.T) {
	c := integrationCache(t)
	ctx := context.Background()

	c.Set(ctx, "oee_query:u:aaaa", cache.TierDaily, opsmodel.ToolResult{Success: true})
	c.Set(ctx, "alert_check:u:bbbb", cache.TierLive, opsmodel.ToolResult{Success: true})

	if n, err := c.Invalidate(ctx, cache.Selector{ToolName: "oee_query"}); err != nil || n != 1 {
		t.Errorf("tool invalidation removed %d (err=%v), want 1", n, err)
	}
	if _, ok, _ := c.Get(ctx, "alert_check:u:bbbb"); !ok {
		t.Error("unrelated entries must survive tool invalidation")
	}

	if n, err := c.Invalidate(ctx, cache.Selector{All: true}); err != nil || n != 1 {
		t.Errorf("all invalidation removed %d (err=%v), want 1", n, err)
	}
}
