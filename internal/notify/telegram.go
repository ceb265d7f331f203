package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL        = "https://api.telegram.org"
	defaultRequestTimeout = 30 * time.Second

	// CallbackApprove and CallbackReject prefix the callback payloads the
	// approval keyboard sends back through the bot API.
	CallbackApprove = "approve"
	CallbackReject  = "reject"
)

// Telegram talks to the bot API for admin notifications, approval requests
// and channel broadcasts.
type Telegram struct {
	botToken    string
	adminChatID string
	channelID   string
	baseURL     string
	client      *http.Client
	logger      zerolog.Logger
}

func NewTelegram(botToken, adminChatID, channelID string, logger zerolog.Logger) *Telegram {
	return &Telegram{
		botToken:    botToken,
		adminChatID: adminChatID,
		channelID:   channelID,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: defaultRequestTimeout},
		logger:      logger,
	}
}

// Notify posts a plain status message to the admin chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	return t.sendMessage(ctx, t.adminChatID, text, "")
}

// RequestApproval posts a moderation card for one item to the admin chat
// with inline approve and reject buttons keyed by the item UUID.
func (t *Telegram) RequestApproval(ctx context.Context, itemUUID, text string) error {
	keyboard := map[string]any{
		"inline_keyboard": [][]map[string]string{{
			{"text": "Approve", "callback_data": CallbackApprove + ":" + itemUUID},
			{"text": "Reject", "callback_data": CallbackReject + ":" + itemUUID},
		}},
	}
	markup, err := json.Marshal(keyboard)
	if err != nil {
		return fmt.Errorf("marshal keyboard: %w", err)
	}
	return t.sendMessage(ctx, t.adminChatID, text, string(markup))
}

// Broadcast delivers text to the channel, attaching the media file when one
// is given. A failing photo upload falls back to a text-only message after
// alerting the admin chat.
func (t *Telegram) Broadcast(ctx context.Context, text, mediaPath string) error {
	if strings.TrimSpace(mediaPath) != "" {
		err := t.sendPhoto(ctx, t.channelID, text, mediaPath)
		if err == nil {
			return nil
		}
		t.logger.Warn().Err(err).Str("media", mediaPath).Msg("photo broadcast failed, falling back to text")
		if notifyErr := t.Notify(ctx, fmt.Sprintf("Broadcast media failed, sent text only: %v", err)); notifyErr != nil {
			t.logger.Warn().Err(notifyErr).Msg("admin notification failed")
		}
	}
	return t.sendMessage(ctx, t.channelID, text, "")
}

func (t *Telegram) sendMessage(ctx context.Context, chatID, text, replyMarkup string) error {
	if t.botToken == "" || chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	if replyMarkup != "" {
		form.Set("reply_markup", replyMarkup)
	}

	endpoint := t.methodURL("sendMessage")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return t.do(req, "sendMessage")
}

func (t *Telegram) sendPhoto(ctx context.Context, chatID, caption, mediaPath string) error {
	if t.botToken == "" || chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	file, err := os.Open(mediaPath)
	if err != nil {
		return fmt.Errorf("open media file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return fmt.Errorf("write caption field: %w", err)
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(mediaPath))
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy media file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	endpoint := t.methodURL("sendPhoto")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return t.do(req, "sendPhoto")
}

func (t *Telegram) do(req *http.Request, method string) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram %s error: %s: %s", method, resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func (t *Telegram) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(t.baseURL, "/"), t.botToken, method)
}
