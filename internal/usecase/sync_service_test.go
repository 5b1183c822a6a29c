package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"FlowPull/internal/domain/models"
	"FlowPull/internal/service/progress"
	"FlowPull/internal/service/upstream"
	"FlowPull/pkg/util"
)

func newTestService(t *testing.T, fetcher upstream.PageFetcher, store *fakeFlowStore, cumuls *fakeCumulStore, universe *fakeUniverse) *SyncService {
	t.Helper()
	lgr := testLogger(t)
	m := newFakeMetrics()
	walker := NewWalker(fetcher, lgr, WithPageDelay(0))
	accum := NewAccumulator(store, cumuls, ymd(t, "20000101"), m, lgr)
	tracker := progress.NewTracker(progress.NewMemoryStore(), 0, lgr)
	if universe == nil {
		universe = &fakeUniverse{}
	}
	return NewSyncService(walker, fetcher, store, &fakePublisher{}, accum, universe, tracker, m, lgr,
		SyncConfig{FlushEvery: 1, UniverseFloor: ymd(t, "20000102")})
}

func TestFetchOneSavesAndFolds(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(req upstream.PageRequest) (*upstream.Page, error) {
		return &upstream.Page{
			Rows: []models.DailyFlow{
				testFlow(req.Instrument, "20240712", 10),
				testFlow(req.Instrument, "20240711", 20),
			},
		}, nil
	}}
	store := newFakeFlowStore()
	cumuls := newFakeCumulStore()
	svc := newTestService(t, fetcher, store, cumuls, nil)

	res, err := svc.FetchOne(context.Background(), FetchCommand{
		JobID:      "job-1",
		Instrument: "005930",
		Date:       ymd(t, "20240712"),
		Fold:       true,
	})
	if err != nil {
		t.Fatalf("fetch one: %v", err)
	}
	if res.Pages != 1 || res.Received != 2 || res.Saved != 2 || res.Duplicates != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Folded != 2 || cumuls.count("005930") != 2 {
		t.Fatalf("folded = %d cumulative = %d, want 2/2", res.Folded, cumuls.count("005930"))
	}
	if store.count() != 2 {
		t.Fatalf("stored = %d, want 2", store.count())
	}

	p, err := svc.tracker.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !p.Done || p.Saved != 2 {
		t.Fatalf("progress done=%v saved=%d, want done with 2", p.Done, p.Saved)
	}
}

func TestFetchOneDedups(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(req upstream.PageRequest) (*upstream.Page, error) {
		return &upstream.Page{
			Rows: []models.DailyFlow{testFlow(req.Instrument, "20240712", 10)},
		}, nil
	}}
	store := newFakeFlowStore()
	seed := testFlow("005930", "20240712", 10)
	if err := store.SaveAll(context.Background(), []*models.DailyFlow{&seed}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestService(t, fetcher, store, newFakeCumulStore(), nil)

	res, err := svc.FetchOne(context.Background(), FetchCommand{
		Instrument: "005930",
		Date:       ymd(t, "20240712"),
	})
	if err != nil {
		t.Fatalf("fetch one: %v", err)
	}
	if res.Saved != 0 || res.Duplicates != 1 {
		t.Fatalf("saved=%d duplicates=%d, want 0/1", res.Saved, res.Duplicates)
	}
}

func TestFetchRangeBuckets(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(req upstream.PageRequest) (*upstream.Page, error) {
		switch util.FormatYMD(req.Date) {
		case "20240710": // already stored
			return &upstream.Page{Rows: []models.DailyFlow{testFlow(req.Instrument, "20240710", 1)}}, nil
		case "20240711": // holiday, no rows
			return &upstream.Page{}, nil
		case "20240712": // fresh rows, anchor plus older history
			return &upstream.Page{Rows: []models.DailyFlow{
				testFlow(req.Instrument, "20240712", 2),
				testFlow(req.Instrument, "20240709", 3),
			}}, nil
		}
		return nil, errors.New("unexpected date")
	}}

	store := newFakeFlowStore()
	seed := testFlow("005930", "20240710", 1)
	if err := store.SaveAll(context.Background(), []*models.DailyFlow{&seed}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestService(t, fetcher, store, newFakeCumulStore(), nil)

	res, err := svc.FetchRange(context.Background(), RangeCommand{
		JobID:      "job-r",
		Instrument: "005930",
		From:       ymd(t, "20240710"),
		To:         ymd(t, "20240712"),
	})
	if err != nil {
		t.Fatalf("fetch range: %v", err)
	}

	if len(res.SkippedDates) != 1 || res.SkippedDates[0] != "20240710" {
		t.Fatalf("skipped = %v, want [20240710]", res.SkippedDates)
	}
	if len(res.EmptyDates) != 1 || res.EmptyDates[0] != "20240711" {
		t.Fatalf("empty = %v, want [20240711]", res.EmptyDates)
	}
	if len(res.SavedDates) != 1 || res.SavedDates[0] != "20240712" {
		t.Fatalf("saved = %v, want [20240712]", res.SavedDates)
	}
	// off-anchor history rows are filtered, only the 20240712 row lands
	if res.RowsSaved != 1 || res.RowsDuplicate != 1 {
		t.Fatalf("rows saved=%d duplicate=%d, want 1/1", res.RowsSaved, res.RowsDuplicate)
	}
}

func TestFetchRangeIsolatesDateErrors(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(req upstream.PageRequest) (*upstream.Page, error) {
		if util.FormatYMD(req.Date) == "20240711" {
			return nil, errors.New("upstream down")
		}
		return &upstream.Page{Rows: []models.DailyFlow{
			testFlow(req.Instrument, util.FormatYMD(req.Date), 1),
		}}, nil
	}}
	svc := newTestService(t, fetcher, newFakeFlowStore(), newFakeCumulStore(), nil)

	res, err := svc.FetchRange(context.Background(), RangeCommand{
		Instrument: "005930",
		From:       ymd(t, "20240710"),
		To:         ymd(t, "20240712"),
	})
	if err != nil {
		t.Fatalf("fetch range: %v", err)
	}
	if len(res.ErrorDates) != 1 || res.ErrorDates[0] != "20240711" {
		t.Fatalf("error dates = %v, want [20240711]", res.ErrorDates)
	}
	if len(res.SavedDates) != 2 {
		t.Fatalf("saved dates = %v, want the other two", res.SavedDates)
	}
}

func TestFetchRangeInvalid(t *testing.T) {
	svc := newTestService(t, &fakeFetcher{}, newFakeFlowStore(), newFakeCumulStore(), nil)
	if _, err := svc.FetchRange(context.Background(), RangeCommand{
		Instrument: "005930",
		From:       ymd(t, "20240712"),
		To:         ymd(t, "20240710"),
	}); err == nil {
		t.Fatalf("expected invalid range error")
	}
}

func TestUniverseBackfillStreamsEvents(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(req upstream.PageRequest) (*upstream.Page, error) {
		return &upstream.Page{
			Rows: []models.DailyFlow{testFlow(req.Instrument, "20240712", 7)},
		}, nil
	}}
	store := newFakeFlowStore()
	universe := &fakeUniverse{refs: []models.InstrumentRef{
		{Code: "005930", Name: "Samsung Electronics"},
		{Code: "000660", Name: "SK hynix"},
	}}
	svc := newTestService(t, fetcher, store, newFakeCumulStore(), universe)

	var events []models.ProgressEvent
	for ev := range svc.UniverseBackfill(context.Background(), BackfillCommand{JobID: "job-u"}) {
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("events = %d, want 2 instruments + terminal", len(events))
	}
	last := events[len(events)-1]
	if !last.Completed {
		t.Fatalf("terminal event not completed: %+v", last)
	}
	if last.CumulativeSavedCount != 2 {
		t.Fatalf("cumulative saved = %d, want 2", last.CumulativeSavedCount)
	}
	if events[0].Instrument != "005930" || events[0].InstrumentName != "Samsung Electronics" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].ProcessedCount != 2 || events[1].TotalCount != 2 {
		t.Fatalf("second event counts = %d/%d", events[1].ProcessedCount, events[1].TotalCount)
	}
	if store.count() != 2 {
		t.Fatalf("stored = %d, want one row per instrument", store.count())
	}
}

func TestUniverseBackfillListFailure(t *testing.T) {
	universe := &fakeUniverse{err: errors.New("universe table empty")}
	svc := newTestService(t, &fakeFetcher{}, newFakeFlowStore(), newFakeCumulStore(), universe)

	var events []models.ProgressEvent
	for ev := range svc.UniverseBackfill(context.Background(), BackfillCommand{}) {
		events = append(events, ev)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want single terminal event", len(events))
	}
	if !events[0].Completed || events[0].ErrorCount != 1 {
		t.Fatalf("terminal event = %+v", events[0])
	}
}

func TestFetchOneReportsRetries(t *testing.T) {
	attempts := 0
	flaky := &fakeFetcher{fn: func(req upstream.PageRequest) (*upstream.Page, error) {
		attempts++
		if attempts <= 2 {
			return nil, &upstream.StatusError{Code: 503, Body: "unavailable"}
		}
		return &upstream.Page{
			Rows: []models.DailyFlow{testFlow(req.Instrument, "20240712", 10)},
		}, nil
	}}
	caller := upstream.NewCaller(flaky, 1000, 1, testLogger(t),
		upstream.WithRetry(3, time.Millisecond, 2*time.Millisecond))
	svc := newTestService(t, caller, newFakeFlowStore(), newFakeCumulStore(), nil)

	res, err := svc.FetchOne(context.Background(), FetchCommand{
		JobID:      "job-retry",
		Instrument: "005930",
		Date:       ymd(t, "20240712"),
	})
	if err != nil {
		t.Fatalf("fetch one: %v", err)
	}
	if res.Saved != 1 {
		t.Fatalf("saved = %d, want 1 after retries", res.Saved)
	}

	p, err := svc.tracker.Get(context.Background(), "job-retry")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Retries != 2 {
		t.Fatalf("progress retries = %d, want the 2 transient failures counted", p.Retries)
	}
}

// recordingStore keeps a copy of every snapshot so tests can inspect mid-run
// progress, not just the final state.
type recordingStore struct {
	mu    sync.Mutex
	inner *progress.MemoryStore
	puts  []models.FetchJobProgress
}

func (s *recordingStore) Put(ctx context.Context, p *models.FetchJobProgress, ttl time.Duration) error {
	s.mu.Lock()
	s.puts = append(s.puts, *p)
	s.mu.Unlock()
	return s.inner.Put(ctx, p, ttl)
}

func (s *recordingStore) Get(ctx context.Context, jobID string) (*models.FetchJobProgress, error) {
	return s.inner.Get(ctx, jobID)
}

func TestFetchRangeProgressSeparatesPending(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(req upstream.PageRequest) (*upstream.Page, error) {
		return &upstream.Page{
			Rows: []models.DailyFlow{testFlow(req.Instrument, util.FormatYMD(req.Date), 1)},
		}, nil
	}}
	store := newFakeFlowStore()
	lgr := testLogger(t)
	m := newFakeMetrics()
	rec := &recordingStore{inner: progress.NewMemoryStore()}
	tracker := progress.NewTracker(rec, 0, lgr)
	walker := NewWalker(fetcher, lgr, WithPageDelay(0))
	accum := NewAccumulator(store, newFakeCumulStore(), ymd(t, "20000101"), m, lgr)
	svc := NewSyncService(walker, fetcher, store, &fakePublisher{}, accum, &fakeUniverse{}, tracker, m, lgr,
		SyncConfig{FlushEvery: 100, UniverseFloor: ymd(t, "20000102")})

	if _, err := svc.FetchRange(context.Background(), RangeCommand{
		JobID:      "job-p",
		Instrument: "005930",
		From:       ymd(t, "20240710"),
		To:         ymd(t, "20240711"),
	}); err != nil {
		t.Fatalf("fetch range: %v", err)
	}

	// snapshots: init, one per date, final
	if len(rec.puts) != 4 {
		t.Fatalf("snapshots = %d, want 4", len(rec.puts))
	}
	mid := rec.puts[1]
	if mid.Saved != 0 || mid.Pending != 1 {
		t.Fatalf("mid-run saved=%d pending=%d, want buffered rows reported as pending", mid.Saved, mid.Pending)
	}
	final := rec.puts[3]
	if final.Saved != 2 || final.Pending != 0 {
		t.Fatalf("final saved=%d pending=%d, want everything flushed", final.Saved, final.Pending)
	}
}

func TestUniverseBackfillAbandonedConsumer(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(upstream.PageRequest) (*upstream.Page, error) {
		return &upstream.Page{}, nil
	}}
	refs := make([]models.InstrumentRef, 30)
	for i := range refs {
		refs[i] = models.InstrumentRef{Code: fmt.Sprintf("%06d", i)}
	}
	svc := newTestService(t, fetcher, newFakeFlowStore(), newFakeCumulStore(), &fakeUniverse{refs: refs})

	// nobody reads the channel: the buffer fills and the producer must not
	// block past cancellation
	ctx, cancel := context.WithCancel(context.Background())
	svc.UniverseBackfill(ctx, BackfillCommand{JobID: "job-gone"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		p, err := svc.tracker.Get(context.Background(), "job-gone")
		if err == nil && p.Done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("producer still running after consumer went away")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUniverseBackfillResumesWindow(t *testing.T) {
	// stored window covers 20240710..20240711; today's walk should stop at
	// the max date and the past walk should anchor just before the min date.
	fetcher := &fakeFetcher{fn: func(req upstream.PageRequest) (*upstream.Page, error) {
		return &upstream.Page{}, nil
	}}
	store := newFakeFlowStore()
	f1 := testFlow("005930", "20240710", 1)
	f2 := testFlow("005930", "20240711", 2)
	if err := store.SaveAll(context.Background(), []*models.DailyFlow{&f1, &f2}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	universe := &fakeUniverse{refs: []models.InstrumentRef{{Code: "005930"}}}
	svc := newTestService(t, fetcher, store, newFakeCumulStore(), universe)

	for range svc.UniverseBackfill(context.Background(), BackfillCommand{}) {
	}

	if fetcher.callCount() != 2 {
		t.Fatalf("calls = %d, want recent walk + past walk", fetcher.callCount())
	}
	recent := fetcher.calls[0]
	if !util.SameDay(recent.Date, util.Today()) {
		t.Fatalf("recent walk anchored at %s, want today", util.FormatYMD(recent.Date))
	}
	past := fetcher.calls[1]
	if util.FormatYMD(past.Date) != "20240709" {
		t.Fatalf("past walk anchored at %s, want 20240709", util.FormatYMD(past.Date))
	}
}
