// Package monitor follows the websocket state feed of a running bridge.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ammawel/cul_bridge/pkg/statebus"
)

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second

	pingInterval = 30 * time.Second
	readTimeout  = 90 * time.Second
)

var ErrMaxRetries = errors.New("max retries reached")

// RetryDelay is the wait before reconnect attempt n (n >= 1).
func RetryDelay(n int) time.Duration {
	if n > 6 {
		return maxRetryDelay
	}
	d := time.Duration(1<<n) * baseRetryDelay
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

func FeedURL(host string, tls bool) string {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}
	return u.String()
}

// Listen connects to feedURL and calls onChange for every state change
// until ctx is cancelled. Lost connections are retried with exponential
// backoff; ErrMaxRetries is returned after too many failed attempts.
func Listen(ctx context.Context, feedURL string, onChange func(statebus.Change)) error {
	entry := log.WithField("component", "monitor")
	retryCount := 0

	for {
		if retryCount > 0 {
			delay := RetryDelay(retryCount)
			entry.Infof("Retrying connection in %v... (attempt %d/%d)", delay, retryCount+1, maxRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}

		entry.Infof("Connecting to %s", feedURL)
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, feedURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			entry.Warnf("Connection failed: %v", err)
			retryCount++
			if retryCount >= maxRetries {
				entry.Errorf("Max retries (%d) reached. Giving up.", maxRetries)
				return ErrMaxRetries
			}
			continue
		}

		entry.Info("Connected! Following state changes.")
		retryCount = 0

		broken := handleConnection(ctx, entry, c, onChange)
		c.Close()
		if !broken {
			return nil
		}
		entry.Warn("Connection lost, will retry...")
		retryCount = 1
	}
}

func handleConnection(ctx context.Context, entry *log.Entry, c *websocket.Conn, onChange func(statebus.Change)) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					entry.Warnf("WebSocket error: %v", err)
				} else {
					entry.Debugf("Connection closed: %v", err)
				}
				return
			}
			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				continue
			}
			var change statebus.Change
			if err := json.Unmarshal(message, &change); err != nil {
				entry.Warnf("Failed to parse state change: %s", string(message))
				continue
			}
			onChange(change)
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				entry.Debugf("Failed to send ping: %v", err)
			}
		case <-ctx.Done():
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				entry.Debugf("Error sending close message: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
