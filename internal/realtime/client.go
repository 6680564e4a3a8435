// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

const (
	pingInterval  = 30 * time.Second
	maxReconnects = 10
	maxBackoffExp = 5 // capped exponential backoff: 2^min(n,5) seconds
)

// Callback receives one dispatched Message. It must not block; long
// work is the caller's own responsibility, per spec.md §4.15.
type Callback func(Message)

// dialer is the subset of *websocket.Dialer this package calls,
// swappable in tests.
type dialer interface {
	DialContext(ctx context.Context, url string, header map[string][]string) (*websocket.Conn, error)
}

type defaultDialer struct{}

func (defaultDialer) DialContext(ctx context.Context, url string, header map[string][]string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	return conn, err
}

// Client is a persistent client to the server-initiated event stream.
type Client struct {
	url      string
	token    func() (string, bool)
	deviceID func() string
	dial     dialer
	uiIval   time.Duration

	mu        sync.Mutex
	callbacks map[string][]Callback

	dedup *deduplicator
	ui    *uiThrottler
	out   *batcher

	connMu sync.Mutex
	conn   *websocket.Conn
}

// New returns a Client dialing url. token supplies the current access
// token (if any) sent as the initial Auth message. deviceID supplies
// the same device fingerprint C13 sends on the REST auth flow
// (auth.Fingerprint), reused here as the realtime session id rather
// than inventing a second identifier, per SPEC_FULL.md.
func New(url string, token func() (string, bool), deviceID func() string) *Client {
	return &Client{
		url:       url,
		token:     token,
		deviceID:  deviceID,
		dial:      defaultDialer{},
		callbacks: map[string][]Callback{},
		dedup:     newDeduplicator(),
		ui:        newUIThrottler(defaultUIInterval),
		out:       newBatcher(),
	}
}

// On registers cb for messages of the given wire type.
func (c *Client) On(msgType string, cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[msgType] = append(c.callbacks[msgType], cb)
}

// Run connects and reconnects with capped exponential backoff until
// ctx is done or maxReconnects consecutive failures have occurred, at
// which point it returns a fatal error.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.dial.DialContext(ctx, c.url, nil)
		if err != nil {
			attempt++
			if attempt > maxReconnects {
				return agenterrors.New("realtime.Client.Run", agenterrors.KindNetwork, err)
			}
			if !sleepBackoff(ctx, attempt) {
				return ctx.Err()
			}
			continue
		}

		attempt = 0
		if err := c.runConnection(ctx, conn); err != nil {
			log.Printf("realtime: connection lost: %v", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		if attempt > maxReconnects {
			return agenterrors.New("realtime.Client.Run", agenterrors.KindNetwork, err)
		}
		if !sleepBackoff(ctx, attempt) {
			return ctx.Err()
		}
	}
}

func sleepBackoff(ctx context.Context, attempt int) bool {
	exp := attempt
	if exp > maxBackoffExp {
		exp = maxBackoffExp
	}
	backoff := time.Duration(1<<exp) * time.Second
	select {
	case <-time.After(backoff):
		return true
	case <-ctx.Done():
		return false
	}
}

// runConnection owns one live connection: it authenticates, then runs
// the ping ticker and receive loop until either fails.
func (c *Client) runConnection(ctx context.Context, conn *websocket.Conn) error {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer conn.Close()

	if tok, ok := c.token(); ok {
		auth := Message{Type: TypeAuth, Token: tok}
		if c.deviceID != nil {
			auth.DeviceID = c.deviceID()
		}
		if err := conn.WriteJSON(auth); err != nil {
			return err
		}
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go c.pingLoop(connCtx, conn)
	go func() { errCh <- c.readLoop(conn) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(Message{Type: TypePing}); err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	switch process(c.dedup, c.ui, msg) {
	case DispositionDuplicate, DispositionThrottled:
		return
	}

	c.mu.Lock()
	cbs := append([]Callback(nil), c.callbacks[msg.Type]...)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(msg)
	}
}

// Send batches an outgoing message by event type, flushing the batch
// to the wire when this call brings it to batchSize messages or finds
// that batchTimeout has elapsed since its first message. No timer
// flushes a batch between calls; FlushBatches writes out what is pending.
func (c *Client) Send(eventType string, msg Message) error {
	if flushed := c.out.add(eventType, msg); flushed != nil {
		return c.writeAll(flushed)
	}
	return nil
}

// FlushBatches force-flushes every pending outgoing batch, timed out
// or not — used on shutdown so nothing queued is silently dropped.
func (c *Client) FlushBatches() error {
	for _, msgs := range c.out.flushAll() {
		if err := c.writeAll(msgs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) writeAll(msgs []Message) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return agenterrors.Newf("realtime.Client.Send", agenterrors.KindNetwork, "not connected")
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			return err
		}
	}
	return nil
}
