// Package notify delivers run reports over the configured channel.
package notify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gmdaily/pkg/config"
	"gmdaily/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Sender delivers one message
type Sender interface {
	Send(ctx context.Context, title, message string) error
}

// Func adapts a function to Sender
type Func func(ctx context.Context, title, message string) error

// Send implements Sender
func (f Func) Send(ctx context.Context, title, message string) error {
	return f(ctx, title, message)
}

// Nop drops every message
type Nop struct{}

// Send implements Sender
func (Nop) Send(context.Context, string, string) error { return nil }

// New builds the sender selected by cfg. Disabled notifications yield Nop.
func New(cfg *config.NotificationConfig, log logger.Logger) (Sender, error) {
	if cfg == nil || !cfg.Enabled {
		return Nop{}, nil
	}

	switch strings.ToLower(cfg.Type) {
	case "", "console":
		return NewConsole(os.Stdout), nil
	case "telegram":
		if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram notifications need bot_token and chat_id")
		}
		return NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID), nil
	case "wechat":
		if cfg.Wechat.Webhook == "" {
			return nil, fmt.Errorf("wechat notifications need a webhook")
		}
		return NewWechat(cfg.Wechat.Webhook), nil
	case "email":
		return NewEmail(cfg.Email)
	case "desktop":
		return NewDesktop(log), nil
	default:
		return nil, fmt.Errorf("unknown notification type %q", cfg.Type)
	}
}

// Deliver sends and logs the outcome. Notification failures never fail a run.
func Deliver(ctx context.Context, s Sender, log logger.Logger, title, message string) {
	if err := s.Send(ctx, title, message); err != nil {
		log.WithError(err).Warn("notification failed")
		return
	}
	log.Debug("notification sent")
}
