package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return &OpenRouter{
		config: &config.OpenRouterConfig{
			APIKey:      "test-key",
			BaseURL:     server.URL,
			Timeout:     5 * time.Second,
			SearchModel: "google/gemini-2.5-flash",
		},
		httpClient:  server.Client(),
		logger:      logger,
		backoffBase: time.Millisecond,
	}
}

func completionResponse(text string) string {
	return `{"choices":[{"message":{"content":"` + text + `"}}]}`
}

func TestCompletion(t *testing.T) {
	var gotBody map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(completionResponse("the answer")))
	})

	messages := []models.Message{
		models.TextMessage(models.RoleSystem, "be brief"),
		models.TextMessage(models.RoleUser, "what?"),
	}
	reply, err := client.Completion(context.Background(), messages, "openai/gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "the answer", reply)

	assert.Equal(t, "openai/gpt-4.1", gotBody["model"])
	assert.Nil(t, gotBody["plugins"])

	sent, ok := gotBody["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, sent, 2)
	first := sent[0].(map[string]interface{})
	parts := first["content"].([]interface{})
	part := parts[0].(map[string]interface{})
	assert.Equal(t, "text", part["type"])
	assert.Equal(t, "be brief", part["text"])
}

func TestCompletionWithSearchSendsPlugin(t *testing.T) {
	var gotBody map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(completionResponse("found it")))
	})

	reply, err := client.CompletionWithSearch(context.Background(), []models.Message{
		models.TextMessage(models.RoleUser, "latest news"),
	})
	require.NoError(t, err)
	assert.Equal(t, "found it", reply)

	assert.Equal(t, "google/gemini-2.5-flash", gotBody["model"])
	plugins, ok := gotBody["plugins"].([]interface{})
	require.True(t, ok)
	require.Len(t, plugins, 1)
	plugin := plugins[0].(map[string]interface{})
	assert.Equal(t, "web", plugin["id"])
	assert.Equal(t, float64(3), plugin["max_results"])
}

func TestCompletionClientErrorNotRetried(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"bad model"}}`, http.StatusBadRequest)
	})

	_, err := client.Completion(context.Background(), nil, "nope/nope")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx should not be retried")
}

func TestCompletionAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded"},"choices":[]}`))
	})

	_, err := client.Completion(context.Background(), nil, "openai/gpt-4.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestCompletionEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Completion(context.Background(), nil, "openai/gpt-4.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response from model")
}
