package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FlowPull/internal/domain/models"
)

// ErrUnauthorized signals a rejected or expired bearer token. Never retried.
var ErrUnauthorized = errors.New("upstream: unauthorized")

// StatusError carries a non-2xx upstream HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == 429 || e.Code >= 500
}

// PageRequest identifies one page of the investor-flow chart endpoint.
// ContYN and NextKey carry the continuation cursor; both empty means the
// first page.
type PageRequest struct {
	Instrument string
	Date       time.Time
	AmountQty  string
	TradeType  string
	Unit       string
	ContYN     string
	NextKey    string
}

// Next returns a copy of the request pointing at the following page.
func (r PageRequest) Next(contYN, nextKey string) PageRequest {
	r.ContYN = contYN
	r.NextKey = nextKey
	return r
}

// Page is one fetched page plus the continuation cursor for the next one.
type Page struct {
	Rows    []models.DailyFlow
	ContYN  string
	NextKey string
}

// HasNext reports whether the upstream signalled more pages.
func (p *Page) HasNext() bool {
	return p.ContYN == "Y" && p.NextKey != ""
}

// PageFetcher fetches one page of flow data.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}
