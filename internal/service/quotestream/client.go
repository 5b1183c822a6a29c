package quotestream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FlowPull/internal/domain/models"
	drepo "FlowPull/internal/domain/repository"
	"FlowPull/pkg/logger"
	"FlowPull/pkg/util"

	"github.com/gorilla/websocket"
)

// priceField is the current-price entry in a realtime values map.
const priceField = "10"

// Client implements a QuoteStream over the upstream realtime WebSocket.
// The session is token-authenticated: LOGIN first, then REG for the
// configured instruments. Server PING frames must be echoed back.
type Client struct {
	url            string
	instruments    []string
	auth           drepo.AuthProvider
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *logger.Logger

	conn      *websocket.Conn
	connected bool
}

// New creates a realtime quote stream client.
func New(url string, instruments []string, auth drepo.AuthProvider, reconnectDelay, pingInterval time.Duration, lgr *logger.Logger) drepo.QuoteStream {
	return &Client{
		url:            url,
		instruments:    instruments,
		auth:           auth,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         lgr,
	}
}

type wsFrame struct {
	Trnm       string       `json:"trnm"`
	ReturnCode *int         `json:"return_code,omitempty"`
	ReturnMsg  string       `json:"return_msg,omitempty"`
	Data       []wsRealItem `json:"data,omitempty"`
}

type wsRealItem struct {
	Type   string            `json:"type"`
	Item   string            `json:"item"`
	Values map[string]string `json:"values"`
}

type wsLogin struct {
	Trnm  string `json:"trnm"`
	Token string `json:"token"`
}

type wsRegister struct {
	Trnm    string      `json:"trnm"`
	GrpNo   string      `json:"grp_no"`
	Refresh string      `json:"refresh"`
	Data    []wsRegItem `json:"data"`
}

type wsRegItem struct {
	Item []string `json:"item"`
	Type []string `json:"type"`
}

// Connect dials the socket and completes the LOGIN handshake.
func (c *Client) Connect(ctx context.Context) error {
	token, err := c.auth.ValidToken(ctx)
	if err != nil {
		return fmt.Errorf("quotestream token: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("quotestream connect: %w", err)
	}

	if err := conn.WriteJSON(wsLogin{Trnm: "LOGIN", Token: token}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("quotestream login: %w", err)
	}

	// Wait for the LOGIN ack, echoing any PING that arrives first.
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			_ = conn.Close()
			return fmt.Errorf("quotestream login ack: %w", err)
		}
		if frame.Trnm == "PING" {
			_ = conn.WriteJSON(map[string]string{"trnm": "PING"})
			continue
		}
		if frame.Trnm != "LOGIN" {
			continue
		}
		if frame.ReturnCode != nil && *frame.ReturnCode != 0 {
			_ = conn.Close()
			return fmt.Errorf("quotestream login rejected, return_code %d: %s", *frame.ReturnCode, frame.ReturnMsg)
		}
		break
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("quotestream connected", logger.String("url", c.url))
	return nil
}

// Subscribe registers realtime price items for the configured instruments.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("quotestream not connected")
	}
	reg := wsRegister{
		Trnm:    "REG",
		GrpNo:   "1",
		Refresh: "1",
		Data: []wsRegItem{{
			Item: c.instruments,
			Type: []string{"0B"},
		}},
	}
	if err := c.conn.WriteJSON(reg); err != nil {
		return fmt.Errorf("quotestream register: %w", err)
	}
	c.logger.Info("quotestream subscribed", logger.Int("instruments", len(c.instruments)))
	return nil
}

// Read streams quotes and errors until the connection breaks or ctx ends.
func (c *Client) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, 1024)
	errs := make(chan error, 1)

	go func() {
		defer close(quotes)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("quotestream conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("quotestream read: %w", err)
					return
				}
				var frame wsFrame
				if err := json.Unmarshal(b, &frame); err != nil {
					continue
				}
				switch frame.Trnm {
				case "PING":
					// echo keeps the session alive
					_ = c.conn.WriteMessage(websocket.TextMessage, b)
				case "REAL":
					for _, item := range frame.Data {
						if item.Type != "0B" {
							continue
						}
						raw, ok := item.Values[priceField]
						if !ok {
							continue
						}
						q := &models.Quote{
							Instrument: item.Item,
							Price:      float64(util.ParseAbsInt64(raw)),
							Timestamp:  time.Now().Unix(),
						}
						select {
						case quotes <- q:
						default:
							// drop on backpressure
						}
					}
				}
			}
		}
	}()

	return quotes, errs
}

// Reconnect closes and re-establishes the session.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
