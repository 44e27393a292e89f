package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/dispatch"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis and skips the test when none is
// running. Container-backed coverage lives in tests/integration.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisQueue_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisQueue should panic with nil redis client")
		}
	}()
	NewRedisQueue(nil, "q", zerolog.Nop())
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name     string
		keys     Keys
		wantList string
		wantRef  string
	}{
		{name: "named", keys: Keys{Name: "go-sync"}, wantList: "termsync:queue:go-sync", wantRef: "termsync:queue:go-sync:ref:2026-10-15_a"},
		{name: "empty name", keys: Keys{}, wantList: "termsync:queue:default", wantRef: "termsync:queue:default:ref:2026-10-15_a"},
		{name: "colon escaped", keys: Keys{Name: "a:b"}, wantList: "termsync:queue:a_b", wantRef: "termsync:queue:a_b:ref:2026-10-15_a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.keys.List(); got != tt.wantList {
				t.Errorf("List() = %q, want %q", got, tt.wantList)
			}
			if got := tt.keys.Reference("2026-10-15_a"); got != tt.wantRef {
				t.Errorf("Reference() = %q, want %q", got, tt.wantRef)
			}
		})
	}
}

func TestEntryAge(t *testing.T) {
	e := &Entry{}
	if e.Age() != 0 {
		t.Error("zero EnqueuedAt should have zero age")
	}
	e.EnqueuedAt = time.Now().Add(-time.Minute)
	if e.Age() < time.Minute {
		t.Errorf("Age() = %v, want >= 1m", e.Age())
	}
}

func TestAddItem_EmptyReferenceIsPermanent(t *testing.T) {
	q := NewRedisQueue(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "q", zerolog.Nop())

	err := q.AddItem(context.Background(), map[string]any{"a": 1}, "")
	if !errors.Is(err, ErrEmptyReference) || !dispatch.IsNoRetry(err) {
		t.Errorf("error = %v, want NoRetry(ErrEmptyReference)", err)
	}
}

func TestRedisQueue_AddAndNext(t *testing.T) {
	client := setupTestRedis(t)
	q := NewRedisQueue(client, "test", zerolog.Nop())
	ctx := context.Background()

	payload := map[string]any{"process": "term", "caseType": "emnesager"}
	if err := q.AddItem(ctx, payload, "2026-10-15_departments"); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if err := q.AddItem(ctx, map[string]any{"process": "taxonomy"}, "2026-10-15_list"); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Len() = %d, %v; want 2", n, err)
	}

	entry, err := q.Next(ctx, time.Second)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if entry.Item.Reference != "2026-10-15_departments" {
		t.Errorf("Reference = %q, want FIFO order", entry.Item.Reference)
	}
	if entry.Item.Data["caseType"] != "emnesager" {
		t.Errorf("Data = %v", entry.Item.Data)
	}
	if entry.EnqueuedAt.IsZero() {
		t.Error("EnqueuedAt not set")
	}
}

func TestRedisQueue_DuplicateReference(t *testing.T) {
	client := setupTestRedis(t)
	q := NewRedisQueue(client, "dupes", zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.AddItem(ctx, map[string]any{"n": i}, "2026-10-15_same"); err != nil {
			t.Fatalf("AddItem() #%d error = %v", i, err)
		}
	}

	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Errorf("Len() = %d, %v; want 1", n, err)
	}
}

func TestRedisQueue_NextTimeout(t *testing.T) {
	client := setupTestRedis(t)
	q := NewRedisQueue(client, "idle", zerolog.Nop())

	_, err := q.Next(context.Background(), time.Second)
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("Next() error = %v, want ErrEmpty", err)
	}
}

func TestRedisQueue_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	q := NewRedisQueue(client, "broken", zerolog.Nop())
	ctx := context.Background()

	if err := client.RPush(ctx, q.keys.List(), "not json").Err(); err != nil {
		t.Fatal(err)
	}
	_, err := q.Next(ctx, time.Second)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Next() error = %v, want ErrInvalidEntry", err)
	}
}
