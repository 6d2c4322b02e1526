package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
)

// SetupTestRedis connects to TEST_REDIS_URL and flushes the selected database on cleanup.
// The test is skipped when TEST_REDIS_URL is unset.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := RequireEnv(t, "TEST_REDIS_URL")

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("Failed to parse TEST_REDIS_URL: %v", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to connect to test redis: %v", err)
	}

	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		_ = rdb.Close()
	})
	return rdb
}
