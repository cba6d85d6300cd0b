// Package notify provides fire-and-forget notifications for trade events.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"breakout-trader/internal/config"
	"breakout-trader/internal/models"
)

// Notifier defines the interface for sending notifications. Implementations
// must never block a trade decision: the engine calls these fire-and-forget
// and ignores failures beyond logging.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendEntry(ctx context.Context, pos *models.Position)
	SendTargetHit(ctx context.Context, pos *models.Position)
	SendTrailingUpdate(ctx context.Context, pos *models.Position)
	SendExit(ctx context.Context, rec *models.TradeRecord, dailyR float64)
	SendHalt(ctx context.Context, reason string)
	SendError(ctx context.Context, err error, context string)
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrade NotificationType = "trade"
	NotificationHalt  NotificationType = "halt"
	NotificationError NotificationType = "error"
	NotificationInfo  NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
}

// NewMultiNotifier creates a MultiNotifier from the configuration. Channels
// passed as extra are appended after the configured ones; everything is
// skipped when notifications are disabled.
func NewMultiNotifier(cfg *config.NotificationConfig, extra ...NotificationChannel) *MultiNotifier {
	mn := &MultiNotifier{
		level: NotificationLevel(cfg.Level),
	}
	if mn.level == "" {
		mn.level = LevelAll
	}

	if !cfg.Enabled {
		return mn
	}

	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Terminal.Enabled {
		mn.channels = append(mn.channels, NewTerminalNotifier())
	}
	mn.channels = append(mn.channels, extra...)

	return mn
}

func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return notifType == NotificationTrade || notifType == NotificationHalt
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	var errs []string
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendEntry notifies that a new trade was initiated.
func (mn *MultiNotifier) SendEntry(ctx context.Context, pos *models.Position) {
	_ = mn.Send(ctx, Notification{
		Type:  NotificationTrade,
		Title: fmt.Sprintf("NEW TRADE: LONG %s", pos.Symbol),
		Message: fmt.Sprintf(
			"Entry: %.2f\nSL: %.2f\nTarget: %.2f\nQuantity: %d",
			pos.EntryPrice, pos.CurrentStop, pos.TargetPrice, pos.Quantity),
	})
}

// SendTargetHit notifies that the profit target was reached and the stop is
// now trailing.
func (mn *MultiNotifier) SendTargetHit(ctx context.Context, pos *models.Position) {
	_ = mn.Send(ctx, Notification{
		Type:  NotificationTrade,
		Title: "TARGET HIT",
		Message: fmt.Sprintf(
			"%s reached %.2f. Stop now trails candle lows from %.2f.",
			pos.Symbol, pos.TargetPrice, pos.CurrentStop),
	})
}

// SendTrailingUpdate notifies a trailing stop move.
func (mn *MultiNotifier) SendTrailingUpdate(ctx context.Context, pos *models.Position) {
	_ = mn.Send(ctx, Notification{
		Type:    NotificationTrade,
		Title:   "TRAILING STOP UPDATED",
		Message: fmt.Sprintf("%s stop raised to %.2f", pos.Symbol, pos.CurrentStop),
	})
}

// SendExit notifies a realized exit.
func (mn *MultiNotifier) SendExit(ctx context.Context, rec *models.TradeRecord, dailyR float64) {
	_ = mn.Send(ctx, Notification{
		Type:  NotificationTrade,
		Title: fmt.Sprintf("TRADE EXITED (%s)", rec.Reason),
		Message: fmt.Sprintf(
			"Exit: %.2f\nPnL: %.2f (%.2fR)\nDaily PnL: %.2fR",
			rec.ExitPrice, rec.PnL, rec.RealizedR, dailyR),
	})
}

// SendHalt notifies that trading is halted.
func (mn *MultiNotifier) SendHalt(ctx context.Context, reason string) {
	_ = mn.Send(ctx, Notification{
		Type:    NotificationHalt,
		Title:   "TRADING HALTED",
		Message: reason,
	})
}

// SendError notifies an operational error.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, context string) {
	_ = mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "ERROR: " + context,
		Message: err.Error(),
	})
}
