package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"FlowPull/internal/domain/models"
	"FlowPull/internal/service/upstream"
	"FlowPull/pkg/logger"
	"FlowPull/pkg/util"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func ymd(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := util.ParseYMD(s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func testFlow(instrument, date string, individual int64) models.DailyFlow {
	d, _ := util.ParseYMD(date)
	f := models.DailyFlow{
		Instrument:    instrument,
		Date:          d,
		TradeType:     models.TradeTypeNetBuy,
		AmountQtyType: models.AmtQtyTypeQty,
		Unit:          models.UnitThousand,
		CurrentPrice:  100,
		FetchedAt:     time.Now(),
	}
	f.Net[models.CatIndividual] = individual
	f.Net[models.CatForeigner] = -individual
	return f
}

// fakeFlowStore is an in-memory FlowStore.
type fakeFlowStore struct {
	mu        sync.Mutex
	rows      map[models.FlowKey]*models.DailyFlow
	saveErr   error
	existsErr error
	saves     int
}

func newFakeFlowStore() *fakeFlowStore {
	return &fakeFlowStore{rows: make(map[models.FlowKey]*models.DailyFlow)}
}

func (s *fakeFlowStore) Init(context.Context) error { return nil }

func (s *fakeFlowStore) SaveAll(_ context.Context, rows []*models.DailyFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	for _, r := range rows {
		c := *r
		s.rows[r.Key()] = &c
	}
	return nil
}

func (s *fakeFlowStore) Exists(_ context.Context, key models.FlowKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.rows[key]
	return ok, nil
}

func (s *fakeFlowStore) Range(_ context.Context, instrument string, from, to time.Time) ([]*models.DailyFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DailyFlow
	for _, r := range s.rows {
		if r.Instrument != instrument {
			continue
		}
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakeFlowStore) MaxDate(_ context.Context, instrument string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max time.Time
	found := false
	for _, r := range s.rows {
		if r.Instrument == instrument && (!found || r.Date.After(max)) {
			max = r.Date
			found = true
		}
	}
	return max, found, nil
}

func (s *fakeFlowStore) MinDate(_ context.Context, instrument string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var min time.Time
	found := false
	for _, r := range s.rows {
		if r.Instrument == instrument && (!found || r.Date.Before(min)) {
			min = r.Date
			found = true
		}
	}
	return min, found, nil
}

func (s *fakeFlowStore) Instruments(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for _, r := range s.rows {
		seen[r.Instrument] = true
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeFlowStore) Health(context.Context) error { return nil }
func (s *fakeFlowStore) Close() error                 { return nil }

func (s *fakeFlowStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fakeCumulStore is an in-memory CumulativeStore.
type fakeCumulStore struct {
	mu   sync.Mutex
	rows map[string][]*models.Cumulative // instrument -> sorted by date
}

func newFakeCumulStore() *fakeCumulStore {
	return &fakeCumulStore{rows: make(map[string][]*models.Cumulative)}
}

func (s *fakeCumulStore) Init(context.Context) error { return nil }

func (s *fakeCumulStore) SaveAll(_ context.Context, rows []*models.Cumulative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		c := *r
		s.rows[r.Instrument] = append(s.rows[r.Instrument], &c)
	}
	for code := range s.rows {
		sort.Slice(s.rows[code], func(i, j int) bool {
			return s.rows[code][i].Date.Before(s.rows[code][j].Date)
		})
	}
	return nil
}

func (s *fakeCumulStore) Range(_ context.Context, instrument string, from, to time.Time) ([]*models.Cumulative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Cumulative
	for _, r := range s.rows[instrument] {
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (s *fakeCumulStore) MaxDate(_ context.Context, instrument string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows[instrument]
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[len(rows)-1].Date, true, nil
}

func (s *fakeCumulStore) Latest(_ context.Context, instrument string) (*models.Cumulative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows[instrument]
	if len(rows) == 0 {
		return nil, errors.New("no cumulative rows")
	}
	c := *rows[len(rows)-1]
	return &c, nil
}

func (s *fakeCumulStore) Close() error { return nil }

func (s *fakeCumulStore) count(instrument string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[instrument])
}

// fakePublisher records published batches.
type fakePublisher struct {
	mu      sync.Mutex
	batches [][]*models.DailyFlow
	err     error
}

func (p *fakePublisher) PublishFlows(_ context.Context, rows []*models.DailyFlow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, rows)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// fakeMetrics counts recorder calls.
type fakeMetrics struct {
	mu         sync.Mutex
	pages      int
	saved      int
	duplicates int
	retries    int
	errors     map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: make(map[string]int)}
}

func (m *fakeMetrics) RecordPageFetched(string) {
	m.mu.Lock()
	m.pages++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordRowsSaved(_ string, n int) {
	m.mu.Lock()
	m.saved += n
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordRowsDuplicate(_ string, n int) {
	m.mu.Lock()
	m.duplicates += n
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordRetry(string) {
	m.mu.Lock()
	m.retries++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordLastPrice(string, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64)   {}

// fakeUniverse lists a fixed instrument set.
type fakeUniverse struct {
	refs []models.InstrumentRef
	err  error
}

func (u *fakeUniverse) List(context.Context) ([]models.InstrumentRef, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.refs, nil
}

// fakeFetcher serves scripted pages keyed by continuation cursor.
type fakeFetcher struct {
	mu    sync.Mutex
	fn    func(req upstream.PageRequest) (*upstream.Page, error)
	calls []upstream.PageRequest
}

func (f *fakeFetcher) FetchPage(_ context.Context, req upstream.PageRequest) (*upstream.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
