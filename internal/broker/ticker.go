// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"breakout-trader/internal/models"
)

// ZerodhaTicker implements the Ticker interface for Zerodha WebSocket streaming.
type ZerodhaTicker struct {
	ticker      *kiteticker.Ticker
	apiKey      string
	accessToken string

	// Handlers
	onTick       func(models.Tick)
	onError      func(error)
	onConnect    func()
	onDisconnect func()

	// subscribeFn issues Subscribe and SetMode against the live socket.
	// Installed by Connect.
	subscribeFn func(tokens []uint32) error

	// State
	connected     bool
	everConnected bool
	subscribed    []uint32

	mu sync.RWMutex
}

// ZerodhaTickerConfig holds configuration for the ticker.
type ZerodhaTickerConfig struct {
	APIKey      string
	AccessToken string
}

// NewZerodhaTicker creates a new Zerodha ticker instance.
func NewZerodhaTicker(cfg ZerodhaTickerConfig) *ZerodhaTicker {
	return &ZerodhaTicker{
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
	}
}

// Connect establishes the WebSocket connection with Kite Connect.
func (t *ZerodhaTicker) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}

	t.ticker = kiteticker.New(t.apiKey, t.accessToken)
	t.subscribeFn = func(tokens []uint32) error {
		if err := t.ticker.Subscribe(tokens); err != nil {
			return err
		}
		return t.ticker.SetMode(kiteticker.ModeFull, tokens)
	}

	connectedCh := make(chan struct{}, 1)

	t.ticker.OnConnect(func() {
		t.socketConnected(connectedCh)
	})

	t.ticker.OnClose(func(code int, reason string) {
		t.mu.Lock()
		wasConnected := t.connected
		t.connected = false
		t.mu.Unlock()

		if t.onDisconnect != nil && wasConnected {
			go t.onDisconnect()
		}
	})

	t.ticker.OnError(func(err error) {
		if t.onError != nil {
			go t.onError(err)
		}
	})

	t.ticker.OnTick(func(tick kitemodels.Tick) {
		if t.onTick != nil {
			t.onTick(convertTick(tick))
		}
	})

	t.mu.Unlock() // Release lock before starting connection

	go t.ticker.Serve()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connectedCh:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("ticker connection timeout")
	}
}

// socketConnected runs on every websocket connect, initial or reconnect.
// The stored token set is pushed to the socket each time, so a Subscribe
// issued before Connect takes effect on the first connection and a
// reconnect restores the stream. The external callback fires once.
func (t *ZerodhaTicker) socketConnected(connectedCh chan<- struct{}) {
	t.mu.Lock()
	t.connected = true
	first := !t.everConnected
	t.everConnected = true
	tokens := append([]uint32(nil), t.subscribed...)
	sub := t.subscribeFn
	t.mu.Unlock()

	select {
	case connectedCh <- struct{}{}:
	default:
	}

	if len(tokens) > 0 && sub != nil {
		if err := sub(tokens); err != nil && t.onError != nil {
			go t.onError(err)
		}
	}

	if first && t.onConnect != nil {
		go t.onConnect()
	}
}

// Disconnect closes the WebSocket connection.
func (t *ZerodhaTicker) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil {
		t.ticker.Stop()
	}
	t.connected = false
	return nil
}

// Subscribe subscribes to tick updates for the given instrument tokens.
func (t *ZerodhaTicker) Subscribe(tokens []uint32) error {
	t.mu.Lock()
	t.subscribed = append([]uint32(nil), tokens...)
	connected := t.connected
	sub := t.subscribeFn
	t.mu.Unlock()

	if !connected {
		// Pushed to the socket on connect.
		return nil
	}

	if err := sub(tokens); err != nil {
		return fmt.Errorf("subscribing to tokens: %w", err)
	}
	return nil
}

// OnTick registers the tick handler.
func (t *ZerodhaTicker) OnTick(handler func(models.Tick)) {
	t.onTick = handler
}

// OnError registers the error handler.
func (t *ZerodhaTicker) OnError(handler func(error)) {
	t.onError = handler
}

// OnConnect registers the connect handler.
func (t *ZerodhaTicker) OnConnect(handler func()) {
	t.onConnect = handler
}

// OnDisconnect registers the disconnect handler.
func (t *ZerodhaTicker) OnDisconnect(handler func()) {
	t.onDisconnect = handler
}

func convertTick(tick kitemodels.Tick) models.Tick {
	ts := tick.Timestamp.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.Tick{
		Symbol:    fmt.Sprintf("%d", tick.InstrumentToken),
		Price:     tick.LastPrice,
		Volume:    int64(tick.VolumeTraded),
		Timestamp: ts,
	}
}
