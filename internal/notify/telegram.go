// Package notify sends trade-event alerts to a Telegram chat via the Bot
// API, adapted from the teacher's internal/notify telegram client and
// narrowed to the four events the engine itself produces: buy fill, sell
// fill, stop-loss re-price, and resolution. Portfolio-level notifications
// (daily summary, risk cooldown, emergency stop) belonged to risk
// allocation across multiple markets, which is out of scope here (spec §1
// Non-goals).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Notifier sends alerts to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyBuyFill sends a buy-fill alert.
func (n *Notifier) NotifyBuyFill(ctx context.Context, slug, side string, price, shares float64) error {
	msg := fmt.Sprintf("<b>Buy Filled</b>\nMarket: <code>%s</code>\nSide: %s\nPrice: %.4f\nShares: %.2f", slug, side, price, shares)
	return n.Send(ctx, msg)
}

// NotifySellFill sends a sell-fill alert.
func (n *Notifier) NotifySellFill(ctx context.Context, slug, side string, price, shares, netPayout float64) error {
	msg := fmt.Sprintf("<b>Sell Filled</b>\nMarket: <code>%s</code>\nSide: %s\nPrice: %.4f\nShares: %.2f\nNet: %.2f USDC", slug, side, price, shares, netPayout)
	return n.Send(ctx, msg)
}

// NotifyStopLoss sends a stop-loss re-price alert.
func (n *Notifier) NotifyStopLoss(ctx context.Context, slug string, newPrice float64) error {
	msg := fmt.Sprintf("<b>Stop-Loss</b>\nMarket: <code>%s</code>\nRe-priced to: %.4f", slug, newPrice)
	return n.Send(ctx, msg)
}

// NotifyResolution sends a resolution alert once a trade's net payout and
// updated principal are known.
func (n *Notifier) NotifyResolution(ctx context.Context, slug string, isWin bool, netPayout, principalAfter float64) error {
	outcome := "LOST"
	if isWin {
		outcome = "WON"
	}
	msg := fmt.Sprintf(
		"<b>Resolved: %s</b>\nMarket: <code>%s</code>\nNet: %.2f USDC\nPrincipal: %.2f USDC",
		outcome, slug, netPayout, principalAfter,
	)
	return n.Send(ctx, msg)
}
