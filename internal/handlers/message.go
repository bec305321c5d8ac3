package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/openrouter-tgbot-go/internal/i18n"
	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/openrouter-tgbot-go/pkg/logger"
	"github.com/openrouter-tgbot-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

var (
	errUnsupportedFile = errors.New("unsupported attachment type")
	errDownloadFailed  = errors.New("attachment download failed")
)

// maxAttachmentSize caps attachments inlined into the completion request at
// 10 MB. Base64 grows the payload by a third, so anything bigger pushes the
// request body past what the completion endpoint accepts. The Bot API's own
// getFile ceiling is 20 MB.
const maxAttachmentSize = 10 << 20

func (h *Handler) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.From.IsBot {
		return nil
	}
	h.metrics.RecordMessageReceived(message.Chat.Type)

	if command, args := commandFromMessage(message); command != "" {
		return h.handleCommand(ctx, message, command, args)
	}

	// Attachments need a /ask or /search caption to be processed.
	if hasAttachment(message) {
		if message.Chat.IsPrivate() {
			lang := h.userLanguage(message)
			return h.reply(message, h.localizer.Get(lang, i18n.MsgAttachInstruction, nil))
		}
		return nil
	}

	// Plain text in private chats gets a usage hint; group chatter is
	// not ours to answer.
	if message.Chat.IsPrivate() && strings.TrimSpace(message.Text) != "" {
		lang := h.userLanguage(message)
		return h.reply(message, h.localizer.Get(lang, i18n.MsgAskUsage, nil))
	}
	return nil
}

func hasAttachment(message *tgbotapi.Message) bool {
	return len(message.Photo) > 0 || message.Document != nil
}

// handleAsk runs the completion pipeline shared by /ask and /search.
func (h *Handler) handleAsk(ctx context.Context, message *tgbotapi.Message, lang, query string, search bool) error {
	userID := message.From.ID

	if !h.limiter.Allow(userID) {
		return h.reply(message, h.localizer.Get(lang, i18n.MsgRateLimitExceeded, nil))
	}

	if search && h.tierOf(userID) != models.TierPlus {
		return h.reply(message, h.localizer.Get(lang, i18n.MsgSearchPlusOnly, nil))
	}

	parts, err := h.buildContentParts(ctx, message, query)
	if err != nil {
		switch {
		case errors.Is(err, errUnsupportedFile):
			return h.reply(message, h.localizer.Get(lang, i18n.MsgUnsupportedFile, nil))
		case errors.Is(err, errDownloadFailed):
			h.logger.WithError(err).WithField("user_id", userID).Error("Attachment download failed")
			return h.reply(message, h.localizer.Get(lang, i18n.MsgDownloadFailed, nil))
		default:
			return err
		}
	}
	if len(parts) == 0 {
		usage := i18n.MsgAskUsage
		if search {
			usage = i18n.MsgSearchUsage
		}
		return h.reply(message, h.localizer.Get(lang, usage, nil))
	}

	if !h.store.CanSendMessage(userID) {
		profile := h.store.Profile(userID)
		h.metrics.RecordQuotaDenied(string(profile.Tier))
		return h.reply(message, h.localizer.Get(lang, i18n.MsgLimitReached, map[string]interface{}{
			"DailyLimit":   profile.DailyLimit,
			"MonthlyLimit": profile.MonthlyLimit,
		}))
	}

	if _, err := h.bot.Request(tgbotapi.NewChatAction(message.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		h.logger.WithError(err).Debug("Failed to send typing action")
	}

	modelID := h.store.Model(userID)
	h.store.AppendMessage(userID, models.Message{Role: models.RoleUser, Content: parts})

	request := h.buildRequest(userID)
	answer, status := h.complete(ctx, request, modelID, query, parts, search, lang)

	h.store.AppendMessage(userID, models.TextMessage(models.RoleAssistant, answer))
	h.flush(ctx)

	logger.WithCompletion(h.logger, message.Chat.ID, userID, modelID).WithFields(logrus.Fields{
		"search": search,
		"status": status,
	}).Info("Completion served")

	return h.sendAnswer(message, answer)
}

// buildRequest assembles the wire conversation: optional system prompt
// followed by the recent context window, which already ends with the just
// appended user message. The store applies its policy window.
func (h *Handler) buildRequest(userID int64) []models.Message {
	window := h.store.RecentContext(userID, 0)
	request := make([]models.Message, 0, len(window)+1)
	if prompt := h.store.SystemPrompt(userID); prompt != "" {
		request = append(request, models.TextMessage(models.RoleSystem, prompt))
	}
	return append(request, window...)
}

// complete calls the completion collaborator, consulting the answer cache
// for plain text questions. A failed call degrades to a localized apology so
// the conversation record always gains an assistant turn.
func (h *Handler) complete(ctx context.Context, request []models.Message, modelID, query string, parts []models.ContentPart, search bool, lang string) (answer, status string) {
	textOnly := !search && len(parts) == 1 && parts[0].Type == "text"
	if textOnly {
		if cached, ok := h.cache.Get(query, modelID); ok {
			return cached, "cached"
		}
	}

	start := time.Now()
	var err error
	if search {
		answer, err = h.ai.CompletionWithSearch(ctx, request)
		modelID = h.config.OpenRouter.SearchModel
	} else {
		answer, err = h.ai.Completion(ctx, request, modelID)
	}

	if err != nil {
		h.logger.WithError(err).WithField("model", modelID).Error("Completion request failed")
		h.metrics.RecordCompletion(modelID, "error", time.Since(start))
		return h.localizer.Get(lang, i18n.MsgError, nil), "error"
	}

	h.metrics.RecordCompletion(modelID, "success", time.Since(start))
	if textOnly {
		h.cache.Set(query, modelID, answer)
	}
	return answer, "success"
}

// sendAnswer renders the model output as Telegram HTML, retrying as plain
// text when the rendered markup is rejected.
func (h *Handler) sendAnswer(message *tgbotapi.Message, answer string) error {
	msg := tgbotapi.NewMessage(message.Chat.ID, "🤖 "+markdown.ToTelegramHTML(answer))
	msg.ReplyToMessageID = message.MessageID
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := h.bot.Send(msg); err == nil {
		return nil
	}
	plain := tgbotapi.NewMessage(message.Chat.ID, "🤖 "+answer)
	plain.ReplyToMessageID = message.MessageID
	_, err := h.bot.Send(plain)
	return err
}

// buildContentParts turns the command arguments plus any attachment into
// model content parts.
func (h *Handler) buildContentParts(ctx context.Context, message *tgbotapi.Message, query string) ([]models.ContentPart, error) {
	var parts []models.ContentPart
	if query != "" {
		parts = append(parts, models.NewTextPart(query))
	}

	switch {
	case len(message.Photo) > 0:
		// Telegram orders photo sizes ascending, take the largest.
		photo := message.Photo[len(message.Photo)-1]
		data, err := h.downloadFile(ctx, photo.FileID)
		if err != nil {
			return nil, err
		}
		parts = append(parts, models.NewImagePart(data, "image/jpeg"))

	case message.Document != nil:
		doc := message.Document
		mime := doc.MimeType
		switch {
		case strings.HasPrefix(mime, "image/"):
			data, err := h.downloadFile(ctx, doc.FileID)
			if err != nil {
				return nil, err
			}
			parts = append(parts, models.NewImagePart(data, mime))
		case mime == "application/pdf":
			data, err := h.downloadFile(ctx, doc.FileID)
			if err != nil {
				return nil, err
			}
			parts = append(parts, models.NewFilePart(doc.FileName, data, mime))
		default:
			return nil, fmt.Errorf("%w: %s", errUnsupportedFile, mime)
		}
	}
	return parts, nil
}

// downloadFile fetches an attachment through the Bot API file endpoint.
func (h *Handler) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := h.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDownloadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDownloadFailed, err)
	}
	resp, err := h.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errDownloadFailed, resp.StatusCode)
	}
	return readInlineable(resp.Body)
}

// readInlineable reads a payload that will be base64-inlined, rejecting
// anything over maxAttachmentSize instead of truncating it.
func readInlineable(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDownloadFailed, err)
	}
	if len(data) > maxAttachmentSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", errUnsupportedFile, maxAttachmentSize)
	}
	return data, nil
}
