//go:build integration

package integration

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/go-term-sync/internal/testutil"
	"github.com/Sternrassler/go-term-sync/pkg/client"
	"github.com/Sternrassler/go-term-sync/pkg/credentials"
	"github.com/Sternrassler/go-term-sync/pkg/dispatch"
	"github.com/Sternrassler/go-term-sync/pkg/jobs"
	"github.com/Sternrassler/go-term-sync/pkg/queue"
	"github.com/Sternrassler/go-term-sync/pkg/store"
	"github.com/Sternrassler/go-term-sync/pkg/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	startTermID = "3239f2cb-1cac-4f10-8897-39d64127a2e2"
	termSetID   = "62c5a7cc-eb6f-4704-a86f-c576c4bebcca"
	viewID      = "db7f8be3-a3cb-4ea2-b495-7eba638f3fc7"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping container test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// recordingStore records every procedure call in memory.
type recordingStore struct {
	mu    sync.Mutex
	calls map[string]int
}

func (s *recordingStore) Execute(ctx context.Context, procedure string, params []store.Param) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[procedure]++
	return nil
}

func (s *recordingStore) Close() error { return nil }

func (s *recordingStore) count(procedure string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[procedure]
}

func newProcessor(st *recordingStore) *worker.Processor {
	base := client.DefaultConfig("", "")
	base.RateLimit = 0
	base.Timeout = 5 * time.Second

	return worker.NewProcessor(worker.Options{
		Credentials: credentials.Static{Username: "svc", Password: "pw", ConnectionString: "sqlserver://db"},
		NewRemote:   worker.NewRemoteFactory(base, zerolog.Nop()),
		OpenStore: func(ctx context.Context, c credentials.Credentials) (store.Executor, io.Closer, error) {
			return st, st, nil
		},
	}, zerolog.Nop())
}

// TestEnqueueAndWork runs a catalog through the dispatcher onto a real Redis
// queue and drains it with the worker against the mock remote site.
func TestEnqueueAndWork(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGO("emnesager")
	defer mock.Close()
	mock.AddTerms(startTermID,
		testutil.MockTerm{ID: "d1", Name: "Borgerservice"},
		testutil.MockTerm{ID: "d2", Name: "Kultur"},
	)
	mock.SetListPages(
		[]map[string]any{{"ID": 1, "Title": "Skole"}, {"ID": 2, "Title": "Dagtilbud"}},
		[]map[string]any{{"ID": 3, "Title": "Byggesag"}},
	)

	cat := jobs.Catalog{
		{
			Name:     "pull_departments",
			Kind:     jobs.KindTerm,
			BaseURL:  mock.URL(),
			CaseType: "emnesager",
			Tree: &jobs.HierarchicalPull{
				StoredProcedure: "GO_Departments_Insert",
				ObjectType:      "departments",
				StartTermID:     startTermID,
				TermSetID:       termSetID,
			},
		},
		{
			Name:     "pull_taxonomy",
			Kind:     jobs.KindTaxonomy,
			BaseURL:  mock.URL(),
			CaseType: "emnesager",
			Flat:     &jobs.FlatPull{ViewID: viewID},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	q := queue.NewRedisQueue(redisClient, "integration", zerolog.Nop())
	d := dispatch.New(q, dispatch.Config{MaxConcurrency: 2, MaxRetries: 3, BaseDelay: 10 * time.Millisecond}, zerolog.Nop())

	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	summary := d.Dispatch(ctx, cat.WorkItems(day))
	if summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	// Same day again: references already seen, nothing new on the list.
	if again := d.Dispatch(ctx, cat.WorkItems(day)); again.Succeeded != 2 {
		t.Fatalf("second dispatch = %+v", again)
	}
	if n, err := q.Len(ctx); err != nil || n != 2 {
		t.Fatalf("queue length = %d, %v; want 2", n, err)
	}

	st := &recordingStore{calls: map[string]int{}}
	stats, err := newProcessor(st).Drain(ctx, q, 100*time.Millisecond, true)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if stats.Processed != 2 || stats.Succeeded != 2 {
		t.Errorf("stats = %+v", stats)
	}

	// Root plus two departments.
	if got := st.count("rpa.GO_Departments_Insert"); got != 3 {
		t.Errorf("department inserts = %d, want 3", got)
	}
	if got := st.count("rpa.GO_TaxonomyList_Insert"); got != 3 {
		t.Errorf("taxonomy inserts = %d, want 3", got)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("queue not drained: %d left", n)
	}
}

// TestDispatch_RedisUnavailable checks that a dead Redis fails every item
// after the configured attempts.
func TestDispatch_RedisUnavailable(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	cleanup()

	q := queue.NewRedisQueue(redisClient, "integration", zerolog.Nop())
	d := dispatch.New(q, dispatch.Config{MaxConcurrency: 2, MaxRetries: 2, BaseDelay: time.Millisecond}, zerolog.Nop())

	items := []dispatch.WorkItem{
		{Reference: "2026-10-15_a", Payload: map[string]any{"process": "term"}},
		{Reference: "2026-10-15_b", Payload: map[string]any{"process": "taxonomy"}},
	}
	summary := d.Dispatch(context.Background(), items)
	if summary.Failed != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	for _, o := range summary.Outcomes {
		if o.Attempts != 2 {
			t.Errorf("%s attempts = %d, want 2", o.Reference, o.Attempts)
		}
	}
}
