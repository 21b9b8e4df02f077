package extractor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parcelaria/api/internal/config"
	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/normalizer"
)

// VisionModel is the opaque handle the extractor queries. Exactly one call is
// made per extraction attempt; retries belong to the caller.
type VisionModel interface {
	// Complete sends the prompt with the page images attached and returns the
	// raw model response text.
	Complete(ctx context.Context, prompt string, pages []normalizer.Page) (string, error)
}

// OpenAIVision implements VisionModel over any OpenAI-compatible
// chat-completions endpoint. Groq and Gemini both expose one, so the provider
// is purely a configuration concern.
type OpenAIVision struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

// NewOpenAIVision creates a vision model handle from configuration.
func NewOpenAIVision(cfg config.VisionConfig, log *logger.Logger) (*OpenAIVision, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("vision endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("vision model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIVision{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     log,
	}, nil
}

// Complete sends one multi-part user message: the instruction text followed by
// every page image as a base64 data URI. The configured timeout is the outer
// deadline on the round trip; expiry surfaces as ErrModelUnavailable.
func (v *OpenAIVision) Complete(ctx context.Context, prompt string, pages []normalizer.Page) (string, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	parts := make([]openai.ChatMessagePart, 0, len(pages)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt,
	})
	for _, page := range pages {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(page.PNG),
			},
		})
	}

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Temperature: 0,
	})
	if err != nil {
		v.log.Error("Vision model request failed", err, map[string]interface{}{
			"model": v.model,
			"pages": len(pages),
		})
		return "", classifyModelError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choice list", ErrModelUnavailable)
	}

	v.log.Debug("Vision model request completed", map[string]interface{}{
		"model":             v.model,
		"pages":             len(pages),
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	})

	return resp.Choices[0].Message.Content, nil
}

// classifyModelError maps transport and API failures onto the two
// user-actionable categories. Quota exhaustion is kept distinct because the
// user can act on it; everything else is a retryable outage.
func classifyModelError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %d", ErrQuotaExceeded, apiErr.HTTPStatusCode)
		}
		return fmt.Errorf("%w: status %d", ErrModelUnavailable, apiErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}
