// Package handlers drives the user store from inbound Telegram events and
// talks to the completion collaborator. It owns no state of its own.
package handlers

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/openrouter-tgbot-go/internal/i18n"
	"github.com/openrouter-tgbot-go/internal/middleware"
	"github.com/openrouter-tgbot-go/internal/services/ai"
	"github.com/openrouter-tgbot-go/internal/services/cache"
	"github.com/openrouter-tgbot-go/internal/services/persistence"
	"github.com/openrouter-tgbot-go/internal/store"
	"github.com/sirupsen/logrus"
)

// Handler processes Telegram updates: commands, model-selection callbacks,
// media messages and payment events.
type Handler struct {
	bot        *tgbotapi.BotAPI
	config     *config.Config
	store      *store.Store
	ai         ai.Service
	snapshots  *persistence.Manager
	cache      cache.Service
	limiter    middleware.RateLimiter
	localizer  *i18n.Localizer
	metrics    *middleware.Metrics
	clock      store.Clock
	logger     *logrus.Logger
	downloader *http.Client
}

// New creates a handler wired to all collaborators.
func New(
	bot *tgbotapi.BotAPI,
	cfg *config.Config,
	userStore *store.Store,
	aiService ai.Service,
	snapshots *persistence.Manager,
	cacheService cache.Service,
	limiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	clock store.Clock,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		bot:        bot,
		config:     cfg,
		store:      userStore,
		ai:         aiService,
		snapshots:  snapshots,
		cache:      cacheService,
		limiter:    limiter,
		localizer:  localizer,
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
		downloader: &http.Client{Timeout: 60 * time.Second},
	}
}

// HandleUpdate routes one inbound update.
func (h *Handler) HandleUpdate(ctx context.Context, update *tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return h.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.PreCheckoutQuery != nil:
		return h.handlePreCheckout(update.PreCheckoutQuery)
	case update.Message == nil:
		return nil
	case update.Message.SuccessfulPayment != nil:
		return h.handleSuccessfulPayment(ctx, update.Message)
	default:
		return h.handleMessage(ctx, update.Message)
	}
}

// userLanguage picks the client's language when we have a translation for
// it, otherwise the configured default.
func (h *Handler) userLanguage(message *tgbotapi.Message) string {
	if message.From != nil {
		for _, lang := range h.config.I18n.Languages {
			if lang == message.From.LanguageCode {
				return lang
			}
		}
	}
	return h.config.I18n.DefaultLanguage
}

// reply sends a plain text reply to the message.
func (h *Handler) reply(message *tgbotapi.Message, text string) error {
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyToMessageID = message.MessageID
	_, err := h.bot.Send(msg)
	return err
}

// flush snapshots the store; failures are logged, never fatal.
func (h *Handler) flush(ctx context.Context) {
	if err := h.snapshots.Save(ctx, h.store.Snapshot()); err != nil {
		h.logger.WithError(err).Error("Failed to save snapshot")
		h.metrics.RecordSnapshotOperation("save", "error")
		return
	}
	h.metrics.RecordSnapshotOperation("save", "success")
}
