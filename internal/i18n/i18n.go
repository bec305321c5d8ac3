package i18n

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/openrouter-tgbot-go/internal/config"
	"golang.org/x/text/language"
)

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, lang := range cfg.Languages {
		path := filepath.Join(cfg.Directory, lang+".json")
		if _, err := bundle.LoadMessageFile(path); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", path, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgWelcome             = "welcome"
	MsgProfile             = "profile"
	MsgProfileSubscription = "profile_subscription"
	MsgAskUsage            = "ask_usage"
	MsgSearchUsage         = "search_usage"
	MsgSearchPlusOnly      = "search_plus_only"
	MsgLimitReached        = "limit_reached"
	MsgModelSelect         = "model_select"
	MsgModelChanged        = "model_changed"
	MsgModelNotAllowed     = "model_not_allowed"
	MsgPromptSet           = "prompt_set"
	MsgPromptReset         = "prompt_reset"
	MsgPromptCurrent       = "prompt_current"
	MsgPromptNone          = "prompt_none"
	MsgPromptUsage         = "prompt_usage"
	MsgContextReset        = "context_reset"
	MsgAlreadyPlus         = "already_plus"
	MsgInvoiceTitle        = "invoice_title"
	MsgInvoiceDescription  = "invoice_description"
	MsgInvoiceLabel        = "invoice_label"
	MsgPaymentSuccess      = "payment_success"
	MsgPaymentError        = "payment_error"
	MsgAttachInstruction   = "attach_instruction"
	MsgUnsupportedFile     = "unsupported_file"
	MsgDownloadFailed      = "download_failed"
	MsgRateLimitExceeded   = "rate_limit_exceeded"
	MsgError               = "error"
	MsgUnknownCommand      = "unknown_command"
)
