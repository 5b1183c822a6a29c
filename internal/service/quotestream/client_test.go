package quotestream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FlowPull/pkg/logger"

	"github.com/gorilla/websocket"
)

type staticAuth struct{ token string }

func (a *staticAuth) ValidToken(context.Context) (string, error) { return a.token, nil }
func (a *staticAuth) Invalidate(context.Context) error           { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

var upgrader = websocket.Upgrader{}

// quoteServer speaks just enough of the realtime protocol: PING before the
// LOGIN ack, then a REAL price frame once registration arrives.
func quoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var login map[string]string
		if err := conn.ReadJSON(&login); err != nil || login["trnm"] != "LOGIN" {
			t.Errorf("login frame = %v err = %v", login, err)
			return
		}
		if login["token"] != "tok" {
			t.Errorf("token = %q", login["token"])
		}

		// clients must tolerate a PING arriving before the ack
		_ = conn.WriteJSON(map[string]string{"trnm": "PING"})
		zero := 0
		_ = conn.WriteJSON(map[string]interface{}{"trnm": "LOGIN", "return_code": zero})

		var reg map[string]interface{}
		if err := conn.ReadJSON(&reg); err != nil || reg["trnm"] != "REG" {
			t.Errorf("reg frame = %v err = %v", reg, err)
			return
		}

		_ = conn.WriteJSON(map[string]interface{}{
			"trnm": "REAL",
			"data": []map[string]interface{}{{
				"type":   "0B",
				"item":   "005930",
				"values": map[string]string{"10": "-70500"},
			}},
		})

		// hold the session open until the client hangs up
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestQuoteStreamHandshakeAndRead(t *testing.T) {
	srv := quoteServer(t)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := New(url, []string{"005930"}, &staticAuth{token: "tok"}, 0, 0, testLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if !c.IsConnected() {
		t.Fatalf("not connected after handshake")
	}
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	quotes, errs := c.Read(ctx)
	select {
	case q := <-quotes:
		if q.Instrument != "005930" || q.Price != 70500 {
			t.Fatalf("quote = %+v", q)
		}
	case err := <-errs:
		t.Fatalf("stream error: %v", err)
	case <-ctx.Done():
		t.Fatalf("no quote before timeout")
	}
}

func TestQuoteStreamLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var login map[string]string
		_ = conn.ReadJSON(&login)
		code := 1
		b, _ := json.Marshal(map[string]interface{}{"trnm": "LOGIN", "return_code": code, "return_msg": "bad token"})
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := New(url, nil, &staticAuth{token: "bad"}, 0, 0, testLogger(t))
	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected login rejection")
	}
}

func TestSubscribeBeforeConnect(t *testing.T) {
	c := New("ws://localhost:1", nil, &staticAuth{token: "tok"}, 0, 0, testLogger(t))
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatalf("expected not-connected error")
	}
}
