// Package captcha adapts image-to-text recognisers for the login captcha.
// Nothing here is trusted: the forum's reply to the login submission is the
// only judge of whether a guess was right.
package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Recognizer turns captcha image bytes into a best-guess answer
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Func adapts a function to Recognizer
type Func func(ctx context.Context, image []byte) (string, error)

func (f Func) Recognize(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// ErrUnavailable is returned by Disabled
var ErrUnavailable = errors.New("no captcha recognizer configured")

// Disabled always fails. Login still submits an empty answer so the
// server can reject it with a reason.
type Disabled struct{}

func (Disabled) Recognize(context.Context, []byte) (string, error) {
	return "", ErrUnavailable
}

// HTTPRecognizer posts the image to an OCR service. The service receives
// {"image": "<base64>"} and may answer either with JSON carrying one of
// result/text/data, or with the bare text.
type HTTPRecognizer struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPRecognizer creates a recognizer for endpoint. token, when set, is
// sent as a bearer token.
func NewHTTPRecognizer(endpoint, token string, timeout time.Duration) *HTTPRecognizer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPRecognizer{client: client, endpoint: endpoint}
}

// Recognize implements Recognizer
func (h *HTTPRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty captcha image")
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"image": base64.StdEncoding.EncodeToString(image)}).
		Post(h.endpoint)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ocr service returned status %d", resp.StatusCode())
	}
	return parseAnswer(resp.Body())
}

func parseAnswer(body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return normalise(trimmed), nil
	}

	var payload struct {
		Result string `json:"result"`
		Text   string `json:"text"`
		Data   string `json:"data"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode ocr reply: %w", err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("ocr service: %s", payload.Error)
	}
	for _, v := range []string{payload.Result, payload.Text, payload.Data} {
		if v != "" {
			return normalise(v), nil
		}
	}
	return "", nil
}

// normalise strips whitespace; forum captchas never contain spaces
func normalise(s string) string {
	return strings.Join(strings.Fields(s), "")
}
