// Package pricefeed maintains a websocket connection to the upstream
// market-data provider and mirrors funding-asset prices into the cache.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// Feed subscribes to ticker updates for a fixed set of funding assets and
// writes each quote into the price cache. It reconnects with backoff until
// its context is cancelled.
type Feed struct {
	url    string
	assets []string
	prices domain.PriceCache
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewFeed(url string, assets []string, prices domain.PriceCache, logger *slog.Logger) *Feed {
	return &Feed{
		url:    url,
		assets: assets,
		prices: prices,
		logger: logger.With("component", "pricefeed"),
	}
}

type subscribeMsg struct {
	Op     string   `json:"op"`
	Assets []string `json:"assets"`
}

type tickerMsg struct {
	Type  string  `json:"type"`
	Asset string  `json:"asset"`
	Price float64 `json:"price"`
	TS    int64   `json:"ts"`
}

// Run blocks until ctx is cancelled, reconnecting on any connection error.
func (f *Feed) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed session ended, reconnecting",
			"error", err,
			"backoff", backoff.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// session dials, subscribes, and pumps messages until the connection drops.
func (f *Feed) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("pricefeed: dial %s: %w", f.url, err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := f.subscribe(conn); err != nil {
		return err
	}
	f.logger.Info("feed connected", "assets", len(f.assets))

	done := make(chan struct{})
	go f.pingLoop(ctx, conn, done)
	defer close(done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("pricefeed: read: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

func (f *Feed) subscribe(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeMsg{Op: "subscribe", Assets: f.assets}); err != nil {
		return fmt.Errorf("pricefeed: subscribe: %w", err)
	}
	return nil
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

func (f *Feed) handleMessage(ctx context.Context, raw []byte) {
	var msg tickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Warn("feed message unreadable", "error", err)
		return
	}
	if msg.Type != "ticker" || msg.Asset == "" || msg.Price <= 0 {
		return
	}

	ts := time.Now()
	if msg.TS > 0 {
		ts = time.UnixMilli(msg.TS)
	}
	if err := f.prices.SetPrice(ctx, msg.Asset, msg.Price, ts); err != nil {
		f.logger.Error("cache price", "asset", msg.Asset, "error", err)
		return
	}
	f.logger.Debug("price updated", "asset", msg.Asset, "price", msg.Price)
}
