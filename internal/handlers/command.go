package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/openrouter-tgbot-go/internal/i18n"
	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// commandFromMessage extracts the leading bot command from the message text
// or, for media messages, from the caption. Returns empty command when the
// message carries none.
func commandFromMessage(message *tgbotapi.Message) (command, args string) {
	if message.IsCommand() {
		return message.Command(), strings.TrimSpace(message.CommandArguments())
	}
	caption := strings.TrimSpace(message.Caption)
	if !strings.HasPrefix(caption, "/") {
		return "", ""
	}
	parts := strings.SplitN(caption, " ", 2)
	command = strings.TrimPrefix(parts[0], "/")
	if at := strings.Index(command, "@"); at != -1 {
		command = command[:at]
	}
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args
}

func (h *Handler) handleCommand(ctx context.Context, message *tgbotapi.Message, command, args string) error {
	userID := message.From.ID
	lang := h.userLanguage(message)

	h.metrics.RecordCommandExecuted(command)
	h.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"command": command,
	}).Info("Processing command")

	switch command {
	case "start":
		h.store.GetOrCreate(userID)
		h.flush(ctx)
		return h.reply(message, h.localizer.Get(lang, i18n.MsgWelcome, nil))
	case "profile":
		return h.handleProfile(message, lang)
	case "model":
		return h.handleModelMenu(message, lang)
	case "setprompt":
		return h.handleSetPrompt(ctx, message, lang, args)
	case "getprompt":
		return h.handleGetPrompt(message, lang)
	case "resetprompt":
		h.store.ClearSystemPrompt(userID)
		h.flush(ctx)
		return h.reply(message, h.localizer.Get(lang, i18n.MsgPromptReset, nil))
	case "resetcontext":
		h.store.ClearContext(userID)
		h.flush(ctx)
		return h.reply(message, h.localizer.Get(lang, i18n.MsgContextReset, nil))
	case "upgrade":
		return h.handleUpgrade(message, lang)
	case "ask":
		return h.handleAsk(ctx, message, lang, args, false)
	case "search":
		return h.handleAsk(ctx, message, lang, args, true)
	default:
		// Only nag about unknown commands in private chats.
		if message.Chat.IsPrivate() {
			return h.reply(message, h.localizer.Get(lang, i18n.MsgUnknownCommand, nil))
		}
		return nil
	}
}

func (h *Handler) handleProfile(message *tgbotapi.Message, lang string) error {
	profile := h.store.Profile(message.From.ID)

	text := h.localizer.Get(lang, i18n.MsgProfile, map[string]interface{}{
		"UserID":           profile.UserID,
		"Tier":             string(profile.Tier),
		"Model":            profile.Model,
		"DailyRemaining":   clampRemaining(profile.DailyRemaining),
		"DailyLimit":       profile.DailyLimit,
		"MonthlyRemaining": clampRemaining(profile.MonthlyRemaining),
		"MonthlyLimit":     profile.MonthlyLimit,
	})
	if profile.SubscriptionEndDate != nil {
		text += "\n" + h.localizer.Get(lang, i18n.MsgProfileSubscription, map[string]interface{}{
			"Date": profile.SubscriptionEndDate.UTC().Format("02.01.2006"),
		})
	}
	return h.reply(message, text)
}

// clampRemaining floors displayed remaining quota at zero. The store keeps
// the raw value so limit decreases stay visible internally.
func clampRemaining(remaining int) int {
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (h *Handler) handleSetPrompt(ctx context.Context, message *tgbotapi.Message, lang, args string) error {
	if args == "" {
		return h.reply(message, h.localizer.Get(lang, i18n.MsgPromptUsage, nil))
	}
	h.store.SetSystemPrompt(message.From.ID, args)
	h.flush(ctx)
	return h.reply(message, h.localizer.Get(lang, i18n.MsgPromptSet, nil))
}

func (h *Handler) handleGetPrompt(message *tgbotapi.Message, lang string) error {
	prompt := h.store.SystemPrompt(message.From.ID)
	if prompt == "" {
		return h.reply(message, h.localizer.Get(lang, i18n.MsgPromptNone, nil))
	}
	return h.reply(message, h.localizer.Get(lang, i18n.MsgPromptCurrent, map[string]interface{}{
		"Prompt": prompt,
	}))
}

func (h *Handler) handleModelMenu(message *tgbotapi.Message, lang string) error {
	userID := message.From.ID
	msg := tgbotapi.NewMessage(message.Chat.ID, h.localizer.Get(lang, i18n.MsgModelSelect, nil))
	msg.ReplyToMessageID = message.MessageID
	msg.ReplyMarkup = h.modelKeyboard(userID)
	_, err := h.bot.Send(msg)
	return err
}

// modelKeyboard builds one button per model available to the user's tier,
// marking the active model.
func (h *Handler) modelKeyboard(userID int64) tgbotapi.InlineKeyboardMarkup {
	current := h.store.Model(userID)
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, id := range h.store.AllowedModels(userID) {
		label := id
		if id == current {
			label = "✅ " + id
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "model_"+id),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	data := query.Data
	if !strings.HasPrefix(data, "model_") {
		_, err := h.bot.Request(tgbotapi.NewCallback(query.ID, ""))
		return err
	}

	userID := query.From.ID
	lang := h.config.I18n.DefaultLanguage
	for _, l := range h.config.I18n.Languages {
		if l == query.From.LanguageCode {
			lang = l
			break
		}
	}

	modelID := strings.TrimPrefix(data, "model_")
	if !h.store.SetModel(userID, modelID) {
		alert := tgbotapi.NewCallbackWithAlert(query.ID, h.localizer.Get(lang, i18n.MsgModelNotAllowed, nil))
		_, err := h.bot.Request(alert)
		return err
	}
	h.flush(ctx)

	if _, err := h.bot.Request(tgbotapi.NewCallback(query.ID, h.localizer.Get(lang, i18n.MsgModelChanged, map[string]interface{}{
		"Model": modelID,
	}))); err != nil {
		h.logger.WithError(err).Warn("Failed to answer callback query")
	}

	if query.Message != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(
			query.Message.Chat.ID,
			query.Message.MessageID,
			h.localizer.Get(lang, i18n.MsgModelChanged, map[string]interface{}{"Model": modelID}),
			h.modelKeyboard(userID),
		)
		if _, err := h.bot.Send(edit); err != nil {
			h.logger.WithError(err).Warn("Failed to edit model menu")
		}
	}
	return nil
}

// tierOf reports the user's current tier, for metrics labels.
func (h *Handler) tierOf(userID int64) models.Tier {
	return h.store.Profile(userID).Tier
}
