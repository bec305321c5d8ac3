package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "warn", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log, err = NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestWithUserFields(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	WithUser(log, 42, 7).Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, float64(42), line["chat_id"])
	assert.Equal(t, float64(7), line["user_id"])
}

func TestWithCompletionFields(t *testing.T) {
	entry := WithCompletion(logrus.New(), 42, 7, "openai/gpt-4.1")

	assert.Equal(t, int64(42), entry.Data["chat_id"])
	assert.Equal(t, int64(7), entry.Data["user_id"])
	assert.Equal(t, "openai/gpt-4.1", entry.Data["model"])
}
