package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/openrouter-tgbot-go/internal/i18n"
	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/openrouter-tgbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

// upgradePayloadPrefix tags our invoices so stray payments are ignored.
const upgradePayloadPrefix = "upgrade_plus_"

// starsCurrency is Telegram's XTR currency code for Stars payments.
const starsCurrency = "XTR"

func (h *Handler) handleUpgrade(message *tgbotapi.Message, lang string) error {
	userID := message.From.ID
	if h.tierOf(userID) == models.TierPlus {
		return h.reply(message, h.localizer.Get(lang, i18n.MsgAlreadyPlus, nil))
	}

	invoice := tgbotapi.NewInvoice(
		message.Chat.ID,
		h.localizer.Get(lang, i18n.MsgInvoiceTitle, nil),
		h.localizer.Get(lang, i18n.MsgInvoiceDescription, map[string]interface{}{
			"Days": h.config.Payments.SubscriptionDays,
		}),
		fmt.Sprintf("%s%d", upgradePayloadPrefix, userID),
		h.config.Payments.ProviderToken,
		"",
		starsCurrency,
		[]tgbotapi.LabeledPrice{{
			Label:  h.localizer.Get(lang, i18n.MsgInvoiceLabel, nil),
			Amount: h.config.Payments.PriceStars,
		}},
	)
	invoice.SuggestedTipAmounts = []int{}
	if _, err := h.bot.Send(invoice); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to send invoice")
		return h.reply(message, h.localizer.Get(lang, i18n.MsgPaymentError, nil))
	}
	return nil
}

// handlePreCheckout approves every checkout for our payload. Telegram gives
// 10 seconds to answer, so no external calls here.
func (h *Handler) handlePreCheckout(query *tgbotapi.PreCheckoutQuery) error {
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 strings.HasPrefix(query.InvoicePayload, upgradePayloadPrefix),
	}
	if !answer.OK {
		answer.ErrorMessage = "Unknown invoice"
	}
	_, err := h.bot.Request(answer)
	return err
}

func (h *Handler) handleSuccessfulPayment(ctx context.Context, message *tgbotapi.Message) error {
	payment := message.SuccessfulPayment
	if !strings.HasPrefix(payment.InvoicePayload, upgradePayloadPrefix) {
		h.logger.WithField("payload", payment.InvoicePayload).Warn("Ignoring payment with unknown payload")
		return nil
	}

	userID := message.From.ID
	now := h.clock.Now().UTC()
	endDate := now.AddDate(0, 0, h.config.Payments.SubscriptionDays)
	h.store.Upgrade(userID, endDate)
	h.metrics.RecordUpgrade()
	h.flush(ctx)

	record := models.PaymentRecord{
		UserID:   userID,
		ChargeID: payment.TelegramPaymentChargeID,
		Amount:   payment.TotalAmount,
		Currency: payment.Currency,
		PaidAt:   now,
	}
	if err := h.snapshots.RecordPayment(ctx, record); err != nil {
		// The upgrade already happened; losing the audit row must not
		// fail the user's payment flow.
		h.logger.WithError(err).WithField("charge_id", record.ChargeID).Error("Failed to record payment")
	}

	logger.WithUser(h.logger, message.Chat.ID, userID).WithFields(logrus.Fields{
		"charge_id": record.ChargeID,
		"amount":    payment.TotalAmount,
		"currency":  payment.Currency,
		"end_date":  endDate.Format(time.RFC3339),
	}).Info("Subscription upgraded")

	lang := h.userLanguage(message)
	return h.reply(message, h.localizer.Get(lang, i18n.MsgPaymentSuccess, map[string]interface{}{
		"Date": endDate.Format("02.01.2006"),
	}))
}
