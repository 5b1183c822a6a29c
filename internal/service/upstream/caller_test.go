package upstream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"FlowPull/pkg/util"
)

func mustYMD(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := util.ParseYMD(s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

type scriptedFetcher struct {
	calls int32
	fn    func(attempt int32) (*Page, error)
}

func (f *scriptedFetcher) FetchPage(_ context.Context, _ PageRequest) (*Page, error) {
	n := atomic.AddInt32(&f.calls, 1)
	return f.fn(n)
}

func fastCaller(t *testing.T, fetcher PageFetcher, opts ...CallerOption) *Caller {
	t.Helper()
	base := []CallerOption{WithRetry(3, time.Millisecond, 2*time.Millisecond)}
	return NewCaller(fetcher, 1000, 10, testLogger(t), append(base, opts...)...)
}

func TestCallerRetriesTransientStatus(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(attempt int32) (*Page, error) {
		if attempt < 3 {
			return nil, &StatusError{Code: 503, Body: "unavailable"}
		}
		return &Page{NextKey: "k"}, nil
	}}

	var retries int32
	c := fastCaller(t, fetcher, WithOnRetry(func(string) { atomic.AddInt32(&retries, 1) }))

	page, err := c.FetchPage(context.Background(), PageRequest{Instrument: "005930"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.NextKey != "k" {
		t.Fatalf("page = %+v", page)
	}
	if atomic.LoadInt32(&fetcher.calls) != 3 {
		t.Fatalf("calls = %d, want 3", fetcher.calls)
	}
	if atomic.LoadInt32(&retries) != 2 {
		t.Fatalf("retry hook fired %d times, want 2", retries)
	}
}

func TestCallerCountsRetriesFromContext(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(attempt int32) (*Page, error) {
		if attempt < 3 {
			return nil, &StatusError{Code: 503, Body: "unavailable"}
		}
		return &Page{}, nil
	}}

	c := fastCaller(t, fetcher)
	rc := NewRetryCounter()
	ctx := ContextWithRetryCounter(context.Background(), rc)

	if _, err := c.FetchPage(ctx, PageRequest{Instrument: "005930"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rc.Count() != 2 {
		t.Fatalf("counter = %d, want 2 retries", rc.Count())
	}
}

func TestCallerStopsAtRetryLimit(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(int32) (*Page, error) {
		return nil, &StatusError{Code: 500, Body: "boom"}
	}}

	c := fastCaller(t, fetcher)
	if _, err := c.FetchPage(context.Background(), PageRequest{Instrument: "005930"}); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&fetcher.calls) != 3 {
		t.Fatalf("calls = %d, want 3 total tries", fetcher.calls)
	}
}

func TestCallerUnauthorizedIsPermanent(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(int32) (*Page, error) {
		return nil, ErrUnauthorized
	}}

	c := fastCaller(t, fetcher)
	_, err := c.FetchPage(context.Background(), PageRequest{Instrument: "005930"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if atomic.LoadInt32(&fetcher.calls) != 1 {
		t.Fatalf("calls = %d, want no retry on auth failure", fetcher.calls)
	}
}

func TestCallerClientErrorIsPermanent(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(int32) (*Page, error) {
		return nil, &StatusError{Code: 400, Body: "bad request"}
	}}

	c := fastCaller(t, fetcher)
	if _, err := c.FetchPage(context.Background(), PageRequest{Instrument: "005930"}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&fetcher.calls) != 1 {
		t.Fatalf("calls = %d, want no retry on 4xx", fetcher.calls)
	}
}

func TestCallerRateLimitedIsRetried(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(attempt int32) (*Page, error) {
		if attempt == 1 {
			return nil, &StatusError{Code: 429, Body: "slow down"}
		}
		return &Page{}, nil
	}}

	var reason string
	c := fastCaller(t, fetcher, WithOnRetry(func(r string) { reason = r }))
	if _, err := c.FetchPage(context.Background(), PageRequest{Instrument: "005930"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if reason != "rate_limited" {
		t.Fatalf("retry reason = %q, want rate_limited", reason)
	}
}

func TestCallerContextCancelled(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(int32) (*Page, error) {
		return &Page{}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := fastCaller(t, fetcher)
	if _, err := c.FetchPage(ctx, PageRequest{Instrument: "005930"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if atomic.LoadInt32(&fetcher.calls) != 0 {
		t.Fatalf("calls = %d, want 0", fetcher.calls)
	}
}
