package usecase

import (
	"context"
	"fmt"
	"time"

	"FlowPull/internal/domain/models"
	"FlowPull/internal/service/upstream"
	"FlowPull/pkg/logger"
	"FlowPull/pkg/util"
)

// Walker guard defaults, matching the upstream operator limits.
const (
	DefaultMaxPages    = 1000
	DefaultMaxWalkTime = 30 * time.Minute
	DefaultPageDelay   = 2500 * time.Millisecond
)

// WalkRequest describes one continuation walk. StopDate, when set, excludes
// rows dated on or before it and ends the walk once one is seen; rows after
// it on the same page are still delivered. Sink receives the kept rows of
// each page in upstream order (newest first).
type WalkRequest struct {
	Page     upstream.PageRequest
	StopDate *time.Time
	Sink     func(ctx context.Context, rows []models.DailyFlow) error
	OnPage   func(WalkResult)
}

// WalkResult is the running outcome of a walk. Received counts every row the
// upstream returned, including rows the stop predicate filtered out.
type WalkResult struct {
	Received    int
	Pages       int
	StopReached bool
}

// Walker follows the continuation cursor of the chart endpoint page by page.
type Walker struct {
	caller    upstream.PageFetcher
	maxPages  int
	maxWalk   time.Duration
	pageDelay time.Duration
	logger    *logger.Logger
}

// WalkerOption configures Walker.
type WalkerOption func(*Walker)

func WithMaxPages(n int) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.maxPages = n
		}
	}
}

func WithMaxWalkTime(d time.Duration) WalkerOption {
	return func(w *Walker) {
		if d > 0 {
			w.maxWalk = d
		}
	}
}

func WithPageDelay(d time.Duration) WalkerOption {
	return func(w *Walker) {
		if d >= 0 {
			w.pageDelay = d
		}
	}
}

// NewWalker creates a walker over the given (rate-limited) fetcher.
func NewWalker(caller upstream.PageFetcher, lgr *logger.Logger, opts ...WalkerOption) *Walker {
	w := &Walker{
		caller:    caller,
		maxPages:  DefaultMaxPages,
		maxWalk:   DefaultMaxWalkTime,
		pageDelay: DefaultPageDelay,
		logger:    lgr,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk runs the continuation loop until the stop predicate fires, the cursor
// is exhausted, a guard trips, or ctx is cancelled. The partial result is
// returned alongside any error.
func (w *Walker) Walk(ctx context.Context, req WalkRequest) (*WalkResult, error) {
	result := &WalkResult{}
	page := req.Page
	visited := make(map[string]bool)
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if result.Pages >= w.maxPages {
			w.logger.Warn("walk stopped at page limit",
				logger.String("instrument", page.Instrument),
				logger.Int("pages", result.Pages))
			return result, nil
		}
		if time.Since(start) > w.maxWalk {
			w.logger.Warn("walk stopped at time limit",
				logger.String("instrument", page.Instrument),
				logger.Duration("elapsed", time.Since(start)))
			return result, nil
		}

		fetched, err := w.caller.FetchPage(ctx, page)
		if err != nil {
			return result, fmt.Errorf("fetch page %d: %w", result.Pages+1, err)
		}
		result.Pages++
		result.Received += len(fetched.Rows)

		kept := fetched.Rows
		if req.StopDate != nil {
			kept = kept[:0:0]
			for _, row := range fetched.Rows {
				if !row.Date.After(*req.StopDate) {
					result.StopReached = true
					continue
				}
				kept = append(kept, row)
			}
		}

		if len(kept) > 0 && req.Sink != nil {
			if err := req.Sink(ctx, kept); err != nil {
				return result, fmt.Errorf("sink page %d: %w", result.Pages, err)
			}
		}
		if req.OnPage != nil {
			req.OnPage(*result)
		}

		if result.StopReached || !fetched.HasNext() {
			return result, nil
		}
		if visited[fetched.NextKey] {
			w.logger.Warn("walk stopped on repeated next-key",
				logger.String("instrument", page.Instrument),
				logger.String("next_key", fetched.NextKey))
			return result, nil
		}
		visited[fetched.NextKey] = true

		if w.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(w.pageDelay):
			}
		}

		w.logger.Debug("walk continuing",
			logger.String("instrument", page.Instrument),
			logger.String("date", util.FormatYMD(page.Date)),
			logger.Int("pages", result.Pages),
			logger.Int("received", result.Received))
		page = page.Next("Y", fetched.NextKey)
	}
}
