package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/correction"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
	"github.com/LazarevaL/agro-llm-hack/internal/extract"
)

// Sender is the subset of *tgbotapi.BotAPI the handler uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Submitter sends query text to the extraction workers.
type Submitter interface {
	Submit(ctx context.Context, text string) (entity.ExtractionResult, error)
}

// Extractor turns a downloaded attachment into text.
type Extractor interface {
	Supports(path string) bool
	Extract(ctx context.Context, path string) (extract.Result, error)
}

// Handler drives the chat side: submissions, the correction dialogue and the
// final accept/reject verdict. Updates of one chat are handled one at a time.
type Handler struct {
	bot       Sender
	gateway   Submitter
	extractor Extractor
	store     correction.Store
	access    Access
	cfg       common.TelegramConfig
	http      *http.Client
	logger    *slog.Logger

	mu       sync.Mutex
	locks    map[int64]*chatLock
	sessions map[int64]*correction.Session
	reports  map[reportKey]correction.Report
}

// chatLock serializes one chat's updates. It is dropped once nobody holds
// or waits for it.
type chatLock struct {
	mu      sync.Mutex
	holders int
}

// reportKey identifies a presented report by the message carrying its table.
type reportKey struct {
	chatID    int64
	messageID int
}

type Option func(*Handler)

// WithHTTPClient sets the client used to download attachments.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) { h.http = c }
}

func NewHandler(cfg common.TelegramConfig, bot Sender, gateway Submitter, extractor Extractor, store correction.Store, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		bot:       bot,
		gateway:   gateway,
		extractor: extractor,
		store:     store,
		access:    ParseAccess(cfg.AllowedUserIDs, cfg.AdminUserIDs),
		cfg:       cfg,
		http:      &http.Client{Timeout: 2 * time.Minute},
		logger:    logger,
		locks:     map[int64]*chatLock{},
		sessions:  map[int64]*correction.Session{},
		reports:   map[reportKey]correction.Report{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run dispatches updates until ctx is cancelled or the channel closes, then
// waits for in-flight updates.
func (h *Handler) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.HandleUpdate(ctx, upd)
			}()
		}
	}
}

func (h *Handler) lockChat(chatID int64) func() {
	h.mu.Lock()
	l := h.locks[chatID]
	if l == nil {
		l = &chatLock{}
		h.locks[chatID] = l
	}
	l.holders++
	h.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.mu.Lock()
		defer h.mu.Unlock()
		if l.holders--; l.holders == 0 {
			delete(h.locks, chatID)
		}
	}
}

func (h *Handler) session(chatID int64) *correction.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[chatID]
}

func (h *Handler) setSession(chatID int64, s *correction.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s == nil {
		delete(h.sessions, chatID)
		return
	}
	h.sessions[chatID] = s
}

func (h *Handler) setReport(chatID int64, msgID int, r correction.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports[reportKey{chatID, msgID}] = r
}

// takeReport removes and returns the report shown in message msgID.
func (h *Handler) takeReport(chatID int64, msgID int) (correction.Report, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := reportKey{chatID, msgID}
	r, ok := h.reports[key]
	delete(h.reports, key)
	return r, ok
}

func (h *Handler) reply(chatID int64, replyTo int, text, parseMode string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.ParseMode = parseMode
	sent, err := h.bot.Send(msg)
	if err != nil && parseMode != "" && isBadRequest(err) {
		msg.ParseMode = ""
		sent, err = h.bot.Send(msg)
	}
	if err != nil {
		h.logger.Error("telegram.send.failed", "chat_id", chatID, "error", err)
	}
	return sent, err
}

// edit replaces the text of a bot message. It honours flood-control waits once
// and falls back to plain text when the markup is rejected.
func (h *Handler) edit(ctx context.Context, chatID int64, msgID int, text, parseMode string, markup *tgbotapi.InlineKeyboardMarkup) error {
	cfg := tgbotapi.NewEditMessageText(chatID, msgID, text)
	cfg.ParseMode = parseMode
	cfg.ReplyMarkup = markup
	_, err := h.bot.Send(cfg)
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.RetryAfter > 0:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
			}
			_, err = h.bot.Send(cfg)
		case isNotModified(apiErr):
			return nil
		case apiErr.Code == http.StatusBadRequest && parseMode != "":
			cfg.ParseMode = ""
			_, err = h.bot.Send(cfg)
		}
	}
	if err != nil {
		h.logger.Error("telegram.edit.failed", "chat_id", chatID, "message_id", msgID, "error", err)
	}
	return err
}

func isBadRequest(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest
}
