package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	formzredis "github.com/zoobzio/formz/pkg/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	// Enable keyspace notifications
	if err := client.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err(); err != nil {
		t.Fatalf("failed to enable keyspace notifications: %v", err)
	}

	return client
}

func TestFormSync_Redis_UIChangeReachesReader(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p := newSyncPair(t, ctx, formzredis.New(client), formzredis.New(client))

	p.typeValue("name", "ada")
	if !waitFor(t, 5*time.Second, func() bool { return p.readerValue(ctx, "name") == "ada" }) {
		t.Fatalf("reader never saw the update, name = %v", p.readerValue(ctx, "name"))
	}

	p.typeValue("age", 36)
	if !waitFor(t, 5*time.Second, func() bool { return p.readerValue(ctx, "age") == float64(36) }) {
		t.Fatalf("reader never saw the second update, age = %v", p.readerValue(ctx, "age"))
	}
}

func TestFormSync_Redis_CloseRemovesKey(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p := newSyncPair(t, ctx, formzredis.New(client), formzredis.New(client))
	p.typeValue("name", "ada")
	if n, _ := client.Exists(ctx, "profile").Result(); n != 1 {
		t.Fatal("expected the value stored in redis")
	}

	if err := p.writerSvc.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n, _ := client.Exists(ctx, "profile").Result(); n != 0 {
		t.Error("expected the key removed on close")
	}
}
