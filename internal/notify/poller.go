package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/relay/internal/db"
)

const (
	// longPollSeconds is the getUpdates timeout the bot API holds a
	// request open for.
	longPollSeconds = 30

	pollRetryDelay = 5 * time.Second
)

// Moderator applies an approve or reject decision to a pending item.
// *db.Pool satisfies it.
type Moderator interface {
	TransitionItemStatus(ctx context.Context, itemUUID, fromStatus, toStatus string) (db.ItemSummary, error)
}

// Poller long-polls the bot API for callback queries coming from approval
// keyboards and applies the decisions.
type Poller struct {
	telegram *Telegram
	store    Moderator
	logger   zerolog.Logger
	offset   int64
}

func NewPoller(telegram *Telegram, store Moderator, logger zerolog.Logger) *Poller {
	return &Poller{
		telegram: telegram,
		store:    store,
		logger:   logger,
	}
}

type update struct {
	UpdateID      int64 `json:"update_id"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Run polls until ctx is cancelled. Transport errors back off and retry;
// they never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Msg("moderation poller started")
	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info().Msg("moderation poller stopping")
			return err
		}

		updates, err := p.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn().Err(err).Msg("poll updates failed")
			select {
			case <-ctx.Done():
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			if u.CallbackQuery == nil {
				continue
			}
			p.handleCallback(ctx, u.CallbackQuery.ID, u.CallbackQuery.Data)
		}
	}
}

func (p *Poller) fetchUpdates(ctx context.Context) ([]update, error) {
	form := url.Values{}
	form.Set("timeout", strconv.Itoa(longPollSeconds))
	form.Set("offset", strconv.FormatInt(p.offset, 10))
	form.Set("allowed_updates", `["callback_query"]`)

	endpoint := p.telegram.methodURL("getUpdates")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.telegram.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram getUpdates error: %s", resp.Status)
	}

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram getUpdates not ok")
	}
	return parsed.Result, nil
}

// handleCallback maps "approve:<uuid>" and "reject:<uuid>" payloads onto
// status transitions and acknowledges the button press either way.
func (p *Poller) handleCallback(ctx context.Context, callbackID, data string) {
	action, itemUUID, ok := strings.Cut(strings.TrimSpace(data), ":")
	if !ok || itemUUID == "" {
		p.answer(ctx, callbackID, "Unrecognized action")
		return
	}

	var toStatus string
	switch action {
	case CallbackApprove:
		toStatus = db.StatusApproved
	case CallbackReject:
		toStatus = db.StatusRejected
	default:
		p.answer(ctx, callbackID, "Unrecognized action")
		return
	}

	item, err := p.store.TransitionItemStatus(ctx, itemUUID, db.StatusPending, toStatus)
	switch {
	case errors.Is(err, db.ErrItemNotFound):
		p.answer(ctx, callbackID, "Item not found")
	case errors.Is(err, db.ErrConflictingStatus):
		p.answer(ctx, callbackID, "Already decided")
	case err != nil:
		p.logger.Error().Err(err).Str("item_uuid", itemUUID).Msg("moderation transition failed")
		p.answer(ctx, callbackID, "Decision failed, try again")
	default:
		p.logger.Info().
			Str("item_uuid", item.ItemUUID).
			Str("status", item.Status).
			Msg("moderation decision applied")
		p.answer(ctx, callbackID, "Marked "+item.Status)
	}
}

func (p *Poller) answer(ctx context.Context, callbackID, text string) {
	form := url.Values{}
	form.Set("callback_query_id", callbackID)
	form.Set("text", text)

	endpoint := p.telegram.methodURL("answerCallbackQuery")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		p.logger.Warn().Err(err).Msg("answer callback build failed")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := p.telegram.do(req, "answerCallbackQuery"); err != nil {
		p.logger.Warn().Err(err).Msg("answer callback failed")
	}
}
