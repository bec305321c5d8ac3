package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/openrouter-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Service is the completion collaborator: it takes an ordered message list
// plus a model and returns a single assistant text reply.
type Service interface {
	Completion(ctx context.Context, messages []models.Message, modelID string) (string, error)
	CompletionWithSearch(ctx context.Context, messages []models.Message) (string, error)
}

// webPlugin is the OpenRouter web-search plugin payload.
type webPlugin struct {
	ID           string `json:"id"`
	MaxResults   int    `json:"max_results"`
	SearchPrompt string `json:"search_prompt"`
}

// OpenRouter calls the OpenRouter chat-completions endpoint.
type OpenRouter struct {
	config      *config.OpenRouterConfig
	httpClient  *http.Client
	logger      *logrus.Logger
	backoffBase time.Duration
}

// NewOpenRouter creates a new OpenRouter client.
func NewOpenRouter(cfg *config.OpenRouterConfig, logger *logrus.Logger) Service {
	return &OpenRouter{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:      logger,
		backoffBase: 2 * time.Second,
	}
}

// Completion gets a reply from the given model with retry logic.
func (s *OpenRouter) Completion(ctx context.Context, messages []models.Message, modelID string) (string, error) {
	return s.completionWithRetry(ctx, messages, modelID, nil)
}

// CompletionWithSearch gets a reply from the search model with the web
// plugin enabled. Results come back as plain text with bare URLs.
func (s *OpenRouter) CompletionWithSearch(ctx context.Context, messages []models.Message) (string, error) {
	plugins := []webPlugin{{
		ID:           "web",
		MaxResults:   3,
		SearchPrompt: "Here are relevant web search results (provide information without any markdown formatting, use plain text only with bare URLs when needed):",
	}}
	return s.completionWithRetry(ctx, messages, s.config.SearchModel, plugins)
}

func (s *OpenRouter) completionWithRetry(ctx context.Context, messages []models.Message, modelID string, plugins []webPlugin) (string, error) {
	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := s.completion(ctx, messages, modelID, plugins, attempt)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if isClientError(err) {
			return "", err
		}

		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
			"model":   modelID,
		}).Warn("Completion request failed, retrying...")

		if attempt < maxRetries {
			// Exponential backoff: 2s, 4s.
			waitTime := s.backoffBase << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

type clientError struct {
	status int
	body   string
}

func (e *clientError) Error() string {
	return fmt.Sprintf("completion request failed with client error %d: %s", e.status, e.body)
}

func isClientError(err error) bool {
	_, ok := err.(*clientError)
	return ok
}

func (s *OpenRouter) completion(ctx context.Context, messages []models.Message, modelID string, plugins []webPlugin, attempt int) (string, error) {
	reqBody := map[string]interface{}{
		"model":    modelID,
		"messages": messages,
	}
	if len(plugins) > 0 {
		reqBody["plugins"] = plugins
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(s.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.config.APIKey))

	s.logger.WithFields(logrus.Fields{
		"model":   modelID,
		"url":     url,
		"attempt": attempt,
	}).Debug("Sending completion request")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"body":    string(body),
			"attempt": attempt,
		}).Error("Completion request failed")

		// 4xx won't improve on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", &clientError{status: resp.StatusCode, body: string(body)}
		}
		return "", fmt.Errorf("completion request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error.Message != "" {
		return "", fmt.Errorf("completion error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no response from model")
	}

	return result.Choices[0].Message.Content, nil
}
