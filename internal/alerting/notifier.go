package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DirectionDown = "down"
	DirectionUp   = "up"
)

// Notification describes an applied price change.
type Notification struct {
	ProductID       string
	DisplayName     string
	OldPrice        decimal.Decimal
	NewPrice        decimal.Decimal
	CompetitorPrice decimal.Decimal
	Reason          string
	At              time.Time
}

// Delta is the signed price movement.
func (n Notification) Delta() decimal.Decimal {
	return n.NewPrice.Sub(n.OldPrice)
}

// Percent is the movement relative to the old price, or zero when the old price is zero.
func (n Notification) Percent() decimal.Decimal {
	if n.OldPrice.IsZero() {
		return decimal.Zero
	}
	return n.Delta().Div(n.OldPrice).Mul(decimal.NewFromInt(100))
}

// Direction reports whether the price went up or down.
func (n Notification) Direction() string {
	if n.Delta().IsNegative() {
		return DirectionDown
	}
	return DirectionUp
}

// Notifier delivers price change notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("telegram status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Str("product_id", note.ProductID).
		Str("direction", note.Direction()).
		Msg("price change alert sent")
	return nil
}

// LogNotifier writes notifications to the log. It stands in when no chat
// channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Str("product_id", note.ProductID).
		Str("old_price", note.OldPrice.StringFixed(2)).
		Str("new_price", note.NewPrice.StringFixed(2)).
		Str("change_pct", note.Percent().StringFixed(1)).
		Str("reason", note.Reason).
		Msg("price change")
	return nil
}

func renderMessage(note Notification) string {
	icon := "📈"
	if note.Direction() == DirectionDown {
		icon = "📉"
	}
	name := note.DisplayName
	if name == "" {
		name = "Product " + note.ProductID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Price changed: %s\n", icon, name)
	fmt.Fprintf(&b, "Product ID: %s\n", note.ProductID)
	fmt.Fprintf(&b, "Old: €%s → New: €%s\n", note.OldPrice.StringFixed(2), note.NewPrice.StringFixed(2))
	fmt.Fprintf(&b, "Change: %s€%s (%s%%)\n", sign(note.Delta()), note.Delta().Abs().StringFixed(2), note.Percent().StringFixed(1))
	if note.CompetitorPrice.IsPositive() {
		fmt.Fprintf(&b, "Competitor: €%s\n", note.CompetitorPrice.StringFixed(2))
	}
	if note.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", note.Reason)
	}
	at := note.At
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Fprintf(&b, "Time: %s", at.Format("2006-01-02 15:04:05"))
	return b.String()
}

func sign(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-"
	}
	return "+"
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
