// Package stream implements the two listener tasks spec §5 names (book
// channel, user channel): a gorilla/websocket client with silence
// detection and reconnection at exponential backoff capped at 60s, giving
// up after 10 attempts and falling back to HTTP (spec §5). Authenticated
// subscriptions sign timestamp+"GET"+path with HMAC-SHA256 (spec §6).
package stream

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	silenceTimeout   = 14 * time.Second
	maxBackoff       = 60 * time.Second
	maxReconnectTrys = 10
)

// Message is one decoded frame from the exchange's market or user channel.
type Message struct {
	Raw []byte
}

// Client manages one reconnecting WebSocket connection.
type Client struct {
	url    string
	log    zerolog.Logger
	dialer *websocket.Dialer
}

// NewClient creates a Client for the given WebSocket URL.
func NewClient(url string, log zerolog.Logger) *Client {
	return &Client{url: url, log: log, dialer: websocket.DefaultDialer}
}

// SubscribeMessage is the market-channel subscription payload (spec §6:
// `{type:"market", assets_ids:[...]}`).
type SubscribeMessage struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// SignAuth computes the HMAC-SHA256 signature the user channel requires:
// base64(HMAC-SHA256(secret, timestamp + "GET" + path)).
func SignAuth(secret, path string, now time.Time) (signature string, timestamp string) {
	ts := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "GET" + path))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), ts
}

// Run connects, subscribes with subscribeMsg (nil to skip), and delivers
// decoded messages on the returned channel until ctx is cancelled or the
// reconnect budget (10 attempts, backoff capped at 60s) is exhausted, at
// which point the channel is closed and the caller must fall back to
// HTTP polling (spec §5).
func (c *Client) Run(ctx context.Context, subscribeMsg *SubscribeMessage) <-chan Message {
	out := make(chan Message, 64)
	go c.loop(ctx, subscribeMsg, out)
	return out
}

func (c *Client) loop(ctx context.Context, subscribeMsg *SubscribeMessage, out chan<- Message) {
	defer close(out)

	backoff := time.Second
	for attempt := 0; attempt < maxReconnectTrys; attempt++ {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("websocket dial failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if subscribeMsg != nil {
			if payload, mErr := json.Marshal(subscribeMsg); mErr == nil {
				_ = conn.WriteMessage(websocket.TextMessage, payload)
			}
		}

		attempt = -1 // successful connect resets the attempt budget
		backoff = time.Second
		clean := c.readUntilSilentOrClosed(ctx, conn, out)
		_ = conn.Close()
		if clean {
			return
		}
		// Fell through due to silence timeout or read error; loop to redial.
	}
	c.log.Error().Msg("websocket reconnect budget exhausted, falling back to HTTP")
}

// readUntilSilentOrClosed pumps frames into out until ctx is done (returns
// true, clean shutdown) or the connection goes silent/errors (returns
// false, caller should redial).
func (c *Client) readUntilSilentOrClosed(ctx context.Context, conn *websocket.Conn, out chan<- Message) bool {
	msgCh := make(chan Message)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- Message{Raw: data}
		}
	}()

	timer := time.NewTimer(silenceTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case m := <-msgCh:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(silenceTimeout)
			select {
			case out <- m:
			case <-ctx.Done():
				return true
			}
		case err := <-errCh:
			c.log.Warn().Err(err).Msg("websocket read error")
			return false
		case <-timer.C:
			c.log.Warn().Msg("websocket silent for 14s, reconnecting")
			return false
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
