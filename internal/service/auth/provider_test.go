package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"FlowPull/pkg/cache"
	xhttp "FlowPull/pkg/http"
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

func tokenServer(t *testing.T, issued *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		atomic.AddInt32(issued, 1)
		exp := time.Now().Add(2 * time.Hour).Format(expiresLayout)
		_, _ = w.Write([]byte(`{"return_code":0,"token":"tok-` +
			time.Now().Format("150405.000000000") + `","token_type":"Bearer","expires_dt":"` + exp + `"}`))
	}))
}

func TestValidTokenIssuesOnce(t *testing.T) {
	var issued int32
	srv := tokenServer(t, &issued)
	defer srv.Close()

	p := New(xhttp.NewClient(), srv.URL, "ak", "sk", cache.NewMemoryCache(), testLogger(t))

	tok1, err := p.ValidToken(context.Background())
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	tok2, err := p.ValidToken(context.Background())
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if tok1 == "" || tok1 != tok2 {
		t.Fatalf("tokens %q vs %q, want one reused", tok1, tok2)
	}
	if atomic.LoadInt32(&issued) != 1 {
		t.Fatalf("issued %d tokens, want 1", issued)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var issued int32
	srv := tokenServer(t, &issued)
	defer srv.Close()

	p := New(xhttp.NewClient(), srv.URL, "ak", "sk", cache.NewMemoryCache(), testLogger(t))

	if _, err := p.ValidToken(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	if err := p.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := p.ValidToken(context.Background()); err != nil {
		t.Fatalf("token after invalidate: %v", err)
	}
	if atomic.LoadInt32(&issued) != 2 {
		t.Fatalf("issued %d tokens, want refresh after invalidate", issued)
	}
}

func TestValidTokenUpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"return_code":8005,"return_msg":"invalid appkey"}`))
	}))
	defer srv.Close()

	p := New(xhttp.NewClient(), srv.URL, "bad", "bad", nil, testLogger(t))
	if _, err := p.ValidToken(context.Background()); err == nil {
		t.Fatalf("expected rejection error")
	}
}
