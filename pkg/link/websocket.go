// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// ErrConnectionClosed is returned once the bridge connection has failed
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConfig describes a serial-over-WebSocket bridge
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
	// HandshakeTimeout defaults to 10 seconds
	HandshakeTimeout time.Duration
}

// WebSocketLink is a bench.Link to a bridge that forwards binary messages
// to and from a serial port. A reader goroutine collects incoming bytes.
type WebSocketLink struct {
	cfg    WebSocketConfig
	secure bool

	mu      sync.Mutex
	conn    *websocket.Conn
	buf     []byte
	readErr error
	done    chan struct{}
}

// NewWebSocketLink validates the URL and returns an unopened link
func NewWebSocketLink(cfg WebSocketConfig) (*WebSocketLink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &WebSocketLink{cfg: cfg, secure: u.Scheme == "wss"}, nil
}

// String describes the link
func (w *WebSocketLink) String() string {
	return fmt.Sprintf("WebSocket: %s", w.cfg.URL)
}

// EnsureOpen implements bench.Link. A connection whose reader has failed
// is replaced.
func (w *WebSocketLink) EnsureOpen() error {
	w.mu.Lock()
	if w.conn != nil && w.readErr == nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()
	w.Close()

	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.HandshakeTimeout}
	if w.secure {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: w.cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if w.cfg.Username != "" && w.cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(w.cfg.Username + ":" + w.cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.HandshakeTimeout+5*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, w.cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return bench.WrapError(bench.KindPortUnavailable, err, "WebSocket connection failed (HTTP %d)", resp.StatusCode)
		}
		return bench.WrapError(bench.KindPortUnavailable, err, "WebSocket connection failed")
	}

	done := make(chan struct{})
	w.mu.Lock()
	w.conn = conn
	w.buf = nil
	w.readErr = nil
	w.done = done
	w.mu.Unlock()

	go w.readLoop(conn, done)
	return nil
}

func (w *WebSocketLink) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if w.conn == conn {
				w.readErr = err
			}
			w.mu.Unlock()
			return
		}
		// Text frames are bridge chatter, not serial data
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.mu.Lock()
		if w.conn == conn {
			w.buf = append(w.buf, data...)
		}
		w.mu.Unlock()
	}
}

// Write implements bench.Link
func (w *WebSocketLink) Write(p []byte) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return bench.WrapError(bench.KindPortUnavailable, ErrConnectionClosed, "write")
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return bench.WrapError(bench.KindPortUnavailable, err, "write")
	}
	return nil
}

// BytesPending implements bench.Link
func (w *WebSocketLink) BytesPending() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return 0, bench.WrapError(bench.KindPortUnavailable, ErrConnectionClosed, "poll")
	}
	if w.readErr != nil && len(w.buf) == 0 {
		return 0, bench.WrapError(bench.KindPortUnavailable, w.readErr, "poll")
	}
	return len(w.buf), nil
}

// ReadAvailable implements bench.Link
func (w *WebSocketLink) ReadAvailable() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.buf
	w.buf = nil
	return out, nil
}

// DrainStale implements bench.Link
func (w *WebSocketLink) DrainStale() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = nil
	return nil
}

// Close implements bench.Link and waits for the reader to exit
func (w *WebSocketLink) Close() error {
	w.mu.Lock()
	conn, done := w.conn, w.done
	w.conn = nil
	w.done = nil
	w.buf = nil
	w.readErr = nil
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	return err
}

var _ bench.Link = (*WebSocketLink)(nil)
