package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// Telegram posts messages through the Bot API
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegram creates a bot sender
func NewTelegram(token, chatID string) *Telegram {
	return newTelegram(telegramAPI, token, chatID)
}

func newTelegram(api, token, chatID string) *Telegram {
	client := resty.New().
		SetBaseURL(strings.TrimRight(api, "/")).
		SetTimeout(defaultTimeout)
	return &Telegram{client: client, token: token, chatID: chatID}
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements Sender
func (t *Telegram) Send(ctx context.Context, title, message string) error {
	var reply telegramReply
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": t.chatID,
			"text":    title + "\n\n" + message,
		}).
		SetResult(&reply).
		SetError(&reply).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if resp.IsError() || !reply.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode(), reply.Description)
	}
	return nil
}
