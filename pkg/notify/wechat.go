package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Wechat posts text messages to a WeCom group robot webhook
type Wechat struct {
	client  *resty.Client
	webhook string
}

// NewWechat creates a webhook sender
func NewWechat(webhook string) *Wechat {
	return &Wechat{client: resty.New().SetTimeout(defaultTimeout), webhook: webhook}
}

type wechatText struct {
	Content string `json:"content"`
}

type wechatMessage struct {
	MsgType string     `json:"msgtype"`
	Text    wechatText `json:"text"`
}

type wechatReply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Send implements Sender
func (w *Wechat) Send(ctx context.Context, title, message string) error {
	var reply wechatReply
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(wechatMessage{MsgType: "text", Text: wechatText{Content: title + "\n\n" + message}}).
		SetResult(&reply).
		Post(w.webhook)
	if err != nil {
		return fmt.Errorf("wechat: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("wechat: status %d", resp.StatusCode())
	}
	if reply.ErrCode != 0 {
		return fmt.Errorf("wechat: %d %s", reply.ErrCode, reply.ErrMsg)
	}
	return nil
}
