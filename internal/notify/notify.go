// Package notify delivers recommendations to chat channels.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IshaanNene/pricewatch/internal/config"
	"github.com/IshaanNene/pricewatch/internal/types"
)

// Channel delivers one message. Send returns the HTTP status it received,
// or 0 when no response arrived.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) (int, error)
}

// Dispatcher sends each recommendation once to every configured channel.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over channels. With no channels every
// Dispatch is skipped.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		logger:   logger.With("component", "dispatcher"),
	}
}

// NewDispatcherFromConfig wires the Slack and Telegram channels that cfg
// configures.
func NewDispatcherFromConfig(cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	var channels []Channel
	if cfg.SlackWebhook != "" {
		channels = append(channels, NewSlackChannel(cfg.SlackWebhook, cfg.Timeout))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		channels = append(channels, NewTelegramChannel(cfg.TelegramAPI, cfg.TelegramToken, cfg.TelegramChatID, cfg.Timeout))
	}
	return NewDispatcher(logger, channels...)
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool { return len(d.channels) > 0 }

// Dispatch makes a single delivery attempt per channel. Failures are logged
// and returned as *types.DispatchError values joined together; they are
// never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *types.Recommendation) ([]types.DispatchResult, error) {
	if len(d.channels) == 0 {
		d.logger.Debug("no notification channel configured", "product", rec.Product)
		return []types.DispatchResult{{Skipped: true}}, nil
	}

	results := make([]types.DispatchResult, 0, len(d.channels))
	var errs []error
	for _, ch := range d.channels {
		status, err := ch.Send(ctx, rec.Text)
		res := types.DispatchResult{Channel: ch.Name(), Status: status, Delivered: err == nil}
		results = append(results, res)
		if err != nil {
			derr := &types.DispatchError{
				Kind:    types.DispatchDeliveryFailed,
				Channel: ch.Name(),
				Status:  status,
				Err:     err,
			}
			d.logger.Error("notification failed", "product", rec.Product, "channel", ch.Name(), "status", status, "error", err)
			errs = append(errs, derr)
			continue
		}
		d.logger.Info("notification sent", "product", rec.Product, "channel", ch.Name())
	}
	return results, errors.Join(errs...)
}

func clientTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
