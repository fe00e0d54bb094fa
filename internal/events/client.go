package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lotas/sensiblelive/internal/applog"
	"github.com/lotas/sensiblelive/internal/types"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

// Settings tunes the push connection.
type Settings struct {
	// RetryInterval is the fixed delay between connection attempts. It never
	// grows and there is no attempt limit.
	RetryInterval time.Duration
	DialTimeout   time.Duration
	ReadLimit     int64
}

// DefaultSettings returns the settings used by the CLI.
func DefaultSettings() *Settings {
	return &Settings{
		RetryInterval: time.Second,
		DialTimeout:   5 * time.Second,
		ReadLimit:     1 << 20,
	}
}

// Client keeps one websocket to the server's event endpoint open and
// republishes decoded events to every subscriber in arrival order.
type Client struct {
	url      string
	settings *Settings

	mu    sync.Mutex
	state types.ConnectionState
	subs  []chan types.ChangeEvent
	done  bool
}

// NewClient creates a client for the given ws:// or wss:// URL. A nil
// settings uses DefaultSettings.
func NewClient(url string, settings *Settings) *Client {
	s := *DefaultSettings()
	if settings != nil {
		s = *settings
	}
	if s.RetryInterval <= 0 {
		s.RetryInterval = DefaultSettings().RetryInterval
	}
	if s.DialTimeout <= 0 {
		s.DialTimeout = DefaultSettings().DialTimeout
	}
	return &Client{
		url:      url,
		settings: &s,
		state:    types.ConnectionState{FirstConnect: true},
	}
}

// Subscribe returns a channel that receives every event from now on. Delivery
// blocks when the buffer is full, so a subscriber must keep reading. The
// channel is closed when Run returns.
func (c *Client) Subscribe(buffer int) <-chan types.ChangeEvent {
	ch := make(chan types.ChangeEvent, buffer)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		close(ch)
		return ch
	}
	c.subs = append(c.subs, ch)
	return ch
}

// State reports the connection state.
func (c *Client) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and reconnects until ctx is done. Connection failures are
// logged and retried; Run only returns the context's error.
func (c *Client) Run(ctx context.Context) error {
	defer c.closeSubscribers()

	limiter := rate.NewLimiter(rate.Every(c.settings.RetryInterval), 1)
	for {
		if err := pace(ctx, limiter); err != nil {
			return err
		}
		c.connect(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// pace waits for the limiter's next token. It fails only once ctx is done,
// even when the token lies beyond the context deadline.
func pace(ctx context.Context, limiter *rate.Limiter) error {
	r := limiter.Reserve()
	d := r.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) connect(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, c.settings.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	cancel()
	if err != nil {
		applog.Error("events.dial", err, "url", c.url)
		return
	}
	defer conn.CloseNow()
	if c.settings.ReadLimit > 0 {
		conn.SetReadLimit(c.settings.ReadLimit)
	}

	reconnect := c.markConnected()
	defer c.markDisconnected()
	applog.Info("events.connected", "url", c.url, "reconnect", reconnect)

	if reconnect {
		if !c.publish(ctx, types.ChangeEvent{Kind: types.KindReconnected}) {
			return
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				applog.Error("events.disconnected", err)
			}
			return
		}
		ev, err := Decode(data)
		if err != nil {
			if errors.Is(err, ErrUnknownType) {
				applog.Info("events.ignored", "frame", string(data))
			} else {
				applog.Error("events.decode", err, "frame", string(data))
			}
			continue
		}
		applog.Info("events.recv", "type", ev.Kind.String(), "id", ev.EntityID)
		if !c.publish(ctx, ev) {
			return
		}
	}
}

// markConnected flips the state to connected and reports whether this is a
// reconnect.
func (c *Client) markConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	reconnect := !c.state.FirstConnect
	c.state.Connected = true
	c.state.FirstConnect = false
	return reconnect
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	c.state.Connected = false
	c.mu.Unlock()
}

func (c *Client) publish(ctx context.Context, ev types.ChangeEvent) bool {
	c.mu.Lock()
	subs := append([]chan types.ChangeEvent(nil), c.subs...)
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (c *Client) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
	c.done = true
	c.state.Connected = false
}
