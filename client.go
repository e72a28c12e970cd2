package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/bt-bridge/twilio-realtime/shared"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ModelConfig describes one realtime model connection.
type ModelConfig struct {
	APIKey      string
	BaseURL     string // defaults to wss://api.openai.com/v1/realtime
	Model       string
	Temperature float64
	Session     *SessionConfig
	Greeting    string // when set, the assistant speaks first with this prompt
}

// ModelClient is one authenticated websocket connection to the realtime
// model service. Reads happen from a single goroutine (the outbound pump);
// writes may come from both pumps and are serialized here.
type ModelClient struct {
	logger shared.LoggerAdapter
	cfg    ModelConfig
	conn   *websocket.Conn

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelCauseFunc
	closeOnce sync.Once
}

// RealtimeURL builds the websocket address for a model connection.
func RealtimeURL(baseURL, model string, temperature float64) (string, error) {
	if baseURL == "" {
		baseURL = "wss://api.openai.com/v1/realtime"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	if temperature > 0 {
		q.Set("temperature", strconv.FormatFloat(temperature, 'g', -1, 64))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DialModel opens the model connection. The connection carries a bearer
// credential supplied at connect time. The session.update handshake is
// deferred to Initialize, which the call session drives when the caller
// stream starts.
func DialModel(ctx context.Context, logger shared.LoggerAdapter, cfg ModelConfig) (*ModelClient, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg.APIKey == "" {
		return nil, shared.ErrNoAPIKey
	}
	if cfg.Session == nil {
		return nil, shared.ErrNoConfig
	}
	addr, err := RealtimeURL(cfg.BaseURL, cfg.Model, cfg.Temperature)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, header)
	if err != nil {
		return nil, fmt.Errorf("dialing model: %w", err)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	return &ModelClient{
		logger: logger,
		cfg:    cfg,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Initialize performs the one-time session handshake: session configuration
// and, when configured, the assistant-speaks-first greeting.
func (c *ModelClient) Initialize() error {
	if err := c.Send(&ClientEvent{
		Type:  ClientEventTypeSessionUpdate,
		Param: &ClientEventParamSessionUpdate{Session: c.cfg.Session},
	}); err != nil {
		return fmt.Errorf("sending session.update: %w", err)
	}
	if c.cfg.Greeting == "" {
		return nil
	}
	if err := c.Send(&ClientEvent{
		Type:  ClientEventTypeConversationItemCreate,
		Param: &ClientEventParamConversationItemCreate{Role: "user", Text: c.cfg.Greeting},
	}); err != nil {
		return fmt.Errorf("sending greeting item: %w", err)
	}
	if err := c.Send(&ClientEvent{
		Type:  ClientEventTypeResponseCreate,
		Param: &ClientEventParamResponseCreate{},
	}); err != nil {
		return fmt.Errorf("requesting greeting response: %w", err)
	}
	return nil
}

// Send serializes and writes one command.
func (c *ModelClient) Send(ev *ClientEvent) error {
	if err := c.respectCtx(); err != nil {
		return err
	}
	data, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", ev.Type, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.cancel(fmt.Errorf("writing to model: %w", err))
		return err
	}
	return nil
}

// Read blocks for the next raw model message. Transport errors cancel the
// client; decode errors are the caller's per-message concern.
func (c *ModelClient) Read() ([]byte, error) {
	if err := c.respectCtx(); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.cancel(fmt.Errorf("reading from model: %w", err))
		return nil, err
	}
	return data, nil
}

func (c *ModelClient) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *ModelClient) Close() error {
	c.closeOnce.Do(func() {
		c.cancel(errors.New("model client closed"))
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("closing model connection", zap.Error(err))
		}
	})
	return nil
}

func (c *ModelClient) respectCtx() error {
	select {
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	default:
	}
	return nil
}
