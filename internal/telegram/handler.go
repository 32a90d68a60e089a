package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/correction"
	"github.com/LazarevaL/agro-llm-hack/internal/extract"
)

// HandleUpdate processes a single update. A panic while handling it is
// logged and does not stop the bot.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("telegram.update.panic", "update_id", upd.UpdateID, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	switch {
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		h.handleMessage(ctx, upd.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil || m.ViaBot != nil || m.From.IsBot {
		return
	}
	chatID := m.Chat.ID
	unlock := h.lockChat(chatID)
	defer unlock()

	ctx = common.WithChatID(ctx, chatID)
	log := h.logger.With("chat_id", chatID, "user_id", m.From.ID)

	if !h.access.Allowed(m.From.ID) {
		log.Warn("telegram.access.denied")
		_, _ = h.reply(chatID, m.MessageID, msgDisallowed, "")
		return
	}

	text := m.Text
	if m.IsCommand() {
		switch m.Command() {
		case "start", "help":
			_, _ = h.reply(chatID, m.MessageID, msgHelp, "")
			return
		case "cancel":
			h.cancel(chatID, m.MessageID)
			return
		case "chat":
			text = m.CommandArguments()
		default:
			return
		}
	} else if !m.Chat.IsPrivate() {
		// groups only talk to the bot through /chat
		return
	}
	if text == "" {
		text = m.Caption
	}

	if s := h.session(chatID); s != nil {
		if hasAttachment(m) {
			pending, _ := s.Current()
			_, _ = h.reply(chatID, m.MessageID, fmt.Sprintf(msgPendingFormat, pending.Field), "")
			return
		}
		h.answer(ctx, log, m, s, text)
		return
	}
	h.submit(ctx, log, m, text)
}

func (h *Handler) cancel(chatID int64, replyTo int) {
	if h.session(chatID) == nil {
		_, _ = h.reply(chatID, replyTo, msgNothingToCancel, "")
		return
	}
	h.setSession(chatID, nil)
	_, _ = h.reply(chatID, replyTo, msgCancelled, "")
}

func (h *Handler) answer(ctx context.Context, log *slog.Logger, m *tgbotapi.Message, s *correction.Session, text string) {
	chatID := m.Chat.ID
	step, err := s.Answer(text)
	switch {
	case errors.Is(err, correction.ErrEmptyAnswer):
		_, _ = h.reply(chatID, m.MessageID, correction.EmptyAnswerReply, "")
		return
	case err != nil:
		log.Error("telegram.correction.failed", "error", err)
		h.setSession(chatID, nil)
		return
	}
	if !step.Done() {
		_, _ = h.reply(chatID, m.MessageID, step.Prompt, tgbotapi.ModeMarkdown)
		return
	}
	h.setSession(chatID, nil)
	log.Info("telegram.correction.done", "records", len(step.Report.Records))
	msg, err := h.reply(chatID, m.MessageID, msgBuildingReport, "")
	if err != nil {
		return
	}
	h.present(ctx, chatID, msg.MessageID, *step.Report)
}

func (h *Handler) submit(ctx context.Context, log *slog.Logger, m *tgbotapi.Message, text string) {
	chatID := m.Chat.ID
	progressID := 0
	query := text
	if hasAttachment(m) {
		fileID, name, size := attachment(m)
		if int64(size) >= h.maxBytes() {
			_, _ = h.reply(chatID, m.MessageID, msgFileTooLarge, "")
			return
		}
		msg, err := h.reply(chatID, m.MessageID, msgFileProcessing, "")
		if err != nil {
			return
		}
		progressID = msg.MessageID
		content, err := h.readAttachment(ctx, fileID, name)
		if err != nil {
			log.Warn("telegram.attachment.failed", "file", name, "error", err)
			_ = h.edit(ctx, chatID, progressID, msgFileUnreadable, "", nil)
			return
		}
		query = extract.QueryText(content, text)
		_ = h.edit(ctx, chatID, progressID, msgBuildingReport, "", nil)
	}
	if strings.TrimSpace(query) == "" {
		return
	}
	if progressID == 0 {
		msg, err := h.reply(chatID, m.MessageID, msgBuildingReport, "")
		if err != nil {
			return
		}
		progressID = msg.MessageID
	}
	_, _ = h.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	start := time.Now()
	res, err := h.gateway.Submit(ctx, query)
	if err != nil {
		log.Error("telegram.submit.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		_ = h.edit(ctx, chatID, progressID, constants.ErrorText, "", nil)
		return
	}
	if res.Unprocessable || len(res.Records) == 0 {
		log.Info("telegram.submit.unprocessable", "elapsed_ms", time.Since(start).Milliseconds())
		_ = h.edit(ctx, chatID, progressID, constants.ErrorText, "", nil)
		return
	}
	log.Info("telegram.submit.ok", "records", len(res.Records), "elapsed_ms", time.Since(start).Milliseconds())

	author := authorName(m.From)
	if correction.NeedsCorrection(res.Records) {
		s, prompt := correction.NewSession(res.Records, query, author)
		h.setSession(chatID, s)
		_, _ = h.reply(chatID, m.MessageID, prompt, tgbotapi.ModeMarkdown)
		return
	}
	h.present(ctx, chatID, progressID, correction.NewReport(res.Records, query, author))
}

// present shows the finished table with the verdict keyboard and copies it to
// the group chat.
func (h *Handler) present(ctx context.Context, chatID int64, msgID int, report correction.Report) {
	kb := verdictKeyboard()
	if err := h.edit(ctx, chatID, msgID, report.HTML(), tgbotapi.ModeHTML, &kb); err != nil {
		return
	}
	h.setReport(chatID, msgID, report)
	if h.cfg.GroupChatID != 0 && h.cfg.GroupChatID != chatID {
		_, _ = h.reply(h.cfg.GroupChatID, 0, report.GroupMessage(), tgbotapi.ModeHTML)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		h.logger.Warn("telegram.callback.ack_failed", "error", err)
	}
	if cb.Message == nil || cb.Message.Chat == nil || cb.From == nil {
		return
	}
	if cb.Data != correction.CallbackAccept && cb.Data != correction.CallbackReject {
		return
	}
	chatID := cb.Message.Chat.ID
	unlock := h.lockChat(chatID)
	defer unlock()
	if !h.access.Allowed(cb.From.ID) {
		return
	}
	replyTo := cb.Message.MessageID
	report, ok := h.takeReport(chatID, replyTo)
	if !ok {
		h.logger.Debug("telegram.callback.stale", "chat_id", chatID, "message_id", replyTo, "data", cb.Data)
		return
	}
	if cb.Data == correction.CallbackAccept {
		if err := report.Commit(common.WithChatID(ctx, chatID), h.store); err != nil {
			h.logger.Error("telegram.report.commit_failed", "chat_id", chatID, "error", err)
			_, _ = h.reply(chatID, replyTo, msgCommitFailed, "")
		} else {
			h.logger.Info("telegram.report.committed", "chat_id", chatID, "records", len(report.Records))
			_, _ = h.reply(chatID, replyTo, correction.AcceptedReply, "")
		}
	} else {
		_, _ = h.reply(chatID, replyTo, correction.RejectedReply, "")
	}
	if _, err := h.bot.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, replyTo, emptyKeyboard())); err != nil {
		h.logger.Warn("telegram.keyboard.clear_failed", "chat_id", chatID, "error", err)
	}
}

func (h *Handler) maxBytes() int64 {
	if h.cfg.MaxAttachmentBytes > 0 {
		return h.cfg.MaxAttachmentBytes
	}
	return constants.MaxAttachmentBytes
}

func authorName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}

func isNotModified(err *tgbotapi.Error) bool {
	return strings.Contains(err.Message, "message is not modified")
}
