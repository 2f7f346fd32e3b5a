package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hypemix/hypemix/internal/apperr"
)

// Completion tuning for motivational narration: high creativity with mild
// repetition penalties, bounded output length.
const (
	completionMaxTokens        = 1000
	completionTemperature      = 0.8
	completionPresencePenalty  = 0.1
	completionFrequencyPenalty = 0.1
)

type OpenAIService struct {
	client *openai.Client
	model  string
}

var _ TextProvider = (*OpenAIService)(nil)

func NewOpenAIService(apiKey, model string) *OpenAIService {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Complete implements the TextProvider interface.
func (s *OpenAIService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens:        completionMaxTokens,
		Temperature:      completionTemperature,
		PresencePenalty:  completionPresencePenalty,
		FrequencyPenalty: completionFrequencyPenalty,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.ClassUpstreamUnavailable, "No response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	log.Printf("[OpenAI] Completion generated (model=%s, chars=%d)", s.model, len(content))

	return content, nil
}

// classifyOpenAIError maps provider status codes onto the error taxonomy so
// upstream failures surface with an actionable category, never raw.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := fmt.Sprintf("%v", apiErr.Code)
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return apperr.Wrap(apperr.ClassUpstreamAuth, err, "Invalid or expired OpenAI API key")
		case code == "insufficient_quota" || apiErr.HTTPStatusCode == http.StatusPaymentRequired:
			return apperr.Wrap(apperr.ClassUpstreamQuota, err, "Insufficient OpenAI API quota. Please check your billing.")
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return apperr.Wrap(apperr.ClassUpstreamRateLimit, err, "OpenAI API rate limit exceeded. Please try again later.")
		case code == "context_length_exceeded":
			return apperr.Wrap(apperr.ClassValidation, err, "Prompt is too long for the selected model")
		case apiErr.HTTPStatusCode == http.StatusNotFound || code == "model_not_found":
			return apperr.Wrap(apperr.ClassValidation, err, "The requested text model was not found")
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return apperr.Wrap(apperr.ClassValidation, err, "OpenAI rejected the request")
		case apiErr.HTTPStatusCode >= 500:
			return apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "OpenAI is temporarily unavailable")
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline exceeded") {
		return apperr.Wrap(apperr.ClassTimeout, err, "OpenAI request timed out")
	}

	return apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "OpenAI request failed")
}
