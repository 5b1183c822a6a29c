package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"FlowPull/internal/domain/models"
	"FlowPull/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestTrackerRoundTrip(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0, testLogger(t))
	ctx := context.Background()

	p := tr.Init(ctx, "job-1", "005930", 10)
	if p.JobID != "job-1" || p.Total != 10 {
		t.Fatalf("init = %+v", p)
	}

	p.Processed = 4
	p.Saved = 3
	tr.Save(ctx, p)

	got, err := tr.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Processed != 4 || got.Saved != 3 {
		t.Fatalf("snapshot = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("updated_at not set")
	}
}

func TestTrackerUnknownJob(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0, testLogger(t))
	if _, err := tr.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()
	tr := NewTracker(s, time.Millisecond, testLogger(t))
	ctx := context.Background()

	tr.Init(ctx, "job-ttl", "005930", 1)
	time.Sleep(5 * time.Millisecond)

	if _, err := tr.Get(ctx, "job-ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want expiry", err)
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, *models.FetchJobProgress, time.Duration) error {
	return errors.New("redis down")
}

func (failingStore) Get(context.Context, string) (*models.FetchJobProgress, error) {
	return nil, errors.New("redis down")
}

func TestTrackerSaveNeverFailsTheJob(t *testing.T) {
	tr := NewTracker(failingStore{}, 0, testLogger(t))
	p := tr.Init(context.Background(), "job-x", "005930", 1)
	tr.Save(context.Background(), p) // must not panic or propagate
}
