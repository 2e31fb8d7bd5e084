package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/piggyclaim/piggyclaim/core/apqueue"
	"github.com/piggyclaim/piggyclaim/core/retry"
	"github.com/piggyclaim/piggyclaim/metrics"
)

const (
	JobTypeTelegram = "telegram_message"

	DefaultTelegramAPI = "https://api.telegram.org"
)

// Message is the payload of a queued telegram job.
type Message struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Telegram delivers messages with the bot api. It is the JobProcessor of
// telegram jobs.
type Telegram struct {
	client  *resty.Client
	token   string
	chatID  string
	retry   retry.Policy
	metrics metrics.MetricsGenerator
}

func NewTelegram(apiBase, token, chatID string, policy retry.Policy, m metrics.MetricsGenerator) *Telegram {
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(apiBase, "/")).
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json")

	return &Telegram{
		client:  client,
		token:   token,
		chatID:  chatID,
		retry:   policy.Named("telegram send"),
		metrics: metrics.Ensure(m),
	}
}

// Owns reports whether a queued job is still addressed to this bot's chat.
// Jobs queued for a previous user id are orphans once the config changes.
func (t *Telegram) Owns(job *apqueue.Job) bool {
	if job.Type != JobTypeTelegram {
		return false
	}
	var msg Message
	if err := json.Unmarshal(job.Data, &msg); err != nil {
		return false
	}
	return msg.ChatID == "" || msg.ChatID == t.chatID
}

// Send posts text once. Client errors other than rate limiting are permanent.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	var out apiResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{
			ChatID:                chatID,
			Text:                  text,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		// the url carries the token, keep it out of logs
		return fmt.Errorf("telegram request failed: %s", strings.ReplaceAll(err.Error(), t.token, "***"))
	}

	if resp.IsError() || !out.OK {
		err := fmt.Errorf("telegram rejected message: status %d: %s", resp.StatusCode(), out.Description)
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}

	return nil
}

func (t *Telegram) Perform(ctx context.Context, job *apqueue.Job) error {
	var msg Message
	if err := json.Unmarshal(job.Data, &msg); err != nil {
		t.metrics.IncNotification("dropped")
		return fmt.Errorf("bad telegram job %d: %w", job.ID, err)
	}
	if msg.ChatID == "" {
		msg.ChatID = t.chatID
	}

	_, err := retry.Do(ctx, t.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.Send(ctx, msg.ChatID, msg.Text)
	})
	if err != nil {
		t.metrics.IncNotification("failed")
		return err
	}

	t.metrics.IncNotification("delivered")
	return nil
}
