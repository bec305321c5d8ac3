package models

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Tier is a subscription level gating quotas and available models.
type Tier string

const (
	TierLite Tier = "lite"
	TierPlus Tier = "plus"
)

// Message roles accepted by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentPart is one element of a multi-part message body. Exactly one of
// Text, ImageURL or File is set, discriminated by Type. The JSON shape matches
// the OpenRouter chat-completions wire format.
type ContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ImagePayload `json:"image_url,omitempty"`
	File     *FilePayload  `json:"file,omitempty"`
}

// ImagePayload carries an inline image as a base64 data URL.
type ImagePayload struct {
	URL string `json:"url"`
}

// FilePayload carries an inline document as a base64 data URL.
type FilePayload struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// NewTextPart builds a plain text content part.
func NewTextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// NewImagePart builds an image part from raw bytes and a mime type.
func NewImagePart(data []byte, mimeType string) ContentPart {
	return ContentPart{
		Type:     "image_url",
		ImageURL: &ImagePayload{URL: dataURL(data, mimeType)},
	}
}

// NewFilePart builds a file part from a filename, raw bytes and a mime type.
func NewFilePart(filename string, data []byte, mimeType string) ContentPart {
	return ContentPart{
		Type: "file",
		File: &FilePayload{
			Filename: filename,
			FileData: dataURL(data, mimeType),
		},
	}
}

func dataURL(data []byte, mimeType string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// Message is one conversational turn. Part order is preserved; by convention
// the text part, when present, precedes attachment parts.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextMessage builds a single-part text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentPart{NewTextPart(text)}}
}

// MessageCounts tracks rolling usage against daily/monthly quotas.
// Counters reset lazily on first access after a UTC boundary passes.
type MessageCounts struct {
	Daily            int       `json:"daily"`
	Monthly          int       `json:"monthly"`
	LastDailyReset   time.Time `json:"last_daily_reset"`
	LastMonthlyReset time.Time `json:"last_monthly_reset"`
}

// UserRecord is the full per-user state: conversation context, prompt and
// model selection, tier and usage counters. Created lazily on first lookup,
// never deleted.
type UserRecord struct {
	Context             []Message     `json:"context"`
	SystemPrompt        string        `json:"system_prompt,omitempty"`
	Model               string        `json:"model"`
	Tier                Tier          `json:"tier"`
	SubscriptionEndDate *time.Time    `json:"subscription_end_date,omitempty"`
	Counts              MessageCounts `json:"message_counts"`
}

// PaymentRecord is the audit entry written for every successful payment.
// ChargeID is Telegram's charge identifier, the handle needed for refunds.
type PaymentRecord struct {
	UserID   int64     `json:"user_id"`
	ChargeID string    `json:"telegram_payment_charge_id"`
	Amount   int       `json:"amount"`
	Currency string    `json:"currency"`
	PaidAt   time.Time `json:"paid_at"`
}

// UserProfile is the read projection returned to the presentation layer.
// Remaining values may be negative when usage exceeded limits before a tier
// change; clamping is the caller's job.
type UserProfile struct {
	UserID              int64
	Tier                Tier
	SubscriptionEndDate *time.Time
	DailyRemaining      int
	DailyLimit          int
	MonthlyRemaining    int
	MonthlyLimit        int
	Model               string
}
