// Package telegram is the outbound Bot API client. It is the only piece that
// talks to the messaging channel: reminder sends, digest sends and the webhook
// reply calls (answerCallbackQuery / editMessageText) all go through it.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/calmora/remindq/internal/domain/notify"
	"github.com/calmora/remindq/internal/obs/retry"
)

const defaultAPIBase = "https://api.telegram.org"

var _ notify.Notifier = (*Client)(nil)

type Client struct {
	token   string
	apiBase string
	hc      *http.Client
	pol     retry.Policy
}

type Option func(*Client)

// WithAPIBase overrides the Bot API origin. Tests point this at a local
// httptest server.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = base }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func New(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		apiBase: defaultAPIBase,
		hc:      &http.Client{Timeout: 10 * time.Second},
		pol: retry.Policy{
			Name:     "telegram_post",
			Attempts: 3,
			Backoff:  retry.ExpoJitter{Base: 200 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2},
			// Only transport failures are worth retrying here; an API
			// rejection is surfaced in the Result and handled by the
			// dispatcher's own attempt counter.
			Retryable: func(err error) bool {
				var apiErr *apiError
				return err != nil && !errors.As(err, &apiErr)
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text"`
	ShowAlert       bool   `json:"show_alert"`
}

type editMessageRequest struct {
	ChatID      int64       `json:"chat_id"`
	MessageID   int64       `json:"message_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode"`
	ReplyMarkup replyMarkup `json:"reply_markup"`
}

// Empty keyboard: Telegram interprets it as "remove the inline buttons".
type replyMarkup struct {
	InlineKeyboard [][]struct{} `json:"inline_keyboard"`
}

// apiError marks a non-2xx Bot API response so the retry policy can tell it
// apart from transport failures.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram API error: status %d: %s", e.status, e.body)
}

// Send delivers one message and reports the raw API response either way.
func (c *Client) Send(ctx context.Context, chatID, text string) (notify.Result, error) {
	body, err := c.post(ctx, "sendMessage", sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return notify.Result{OK: false, Response: apiErr.body}, nil
		}
		return notify.Result{}, err
	}
	return notify.Result{OK: true, Response: string(body)}, nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := c.post(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	_, err := c.post(ctx, "editMessageText", editMessageRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: replyMarkup{InlineKeyboard: [][]struct{}{}},
	})
	return err
}

func (c *Client) post(ctx context.Context, method string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)

	var respBody []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("build %s request: %w", method, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", method, err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response: %w", method, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &apiError{status: resp.StatusCode, body: string(b)}
		}
		respBody = b
		return nil
	}

	if err := retry.Do(ctx, call, c.pol); err != nil {
		return nil, err
	}
	return respBody, nil
}
