package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/hypemix/hypemix/internal/apperr"
)

// ---------------------------------------------------------------------------
// Gemini Text Provider
// Alternate text-completion provider using the Google Gen AI SDK, selected
// when TEXT_PROVIDER=gemini. Same completion tuning as the OpenAI provider.
// ---------------------------------------------------------------------------

const defaultGeminiModel = "gemini-2.0-flash"

type GeminiService struct {
	apiKey string
	model  string
}

var _ TextProvider = (*GeminiService)(nil)

func NewGeminiService(apiKey, model string) *GeminiService {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiService{
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements the TextProvider interface.
func (s *GeminiService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ClassInternal, err, "Failed to create Gemini client")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature:      genai.Ptr[float32](completionTemperature),
		PresencePenalty:  genai.Ptr[float32](completionPresencePenalty),
		FrequencyPenalty: genai.Ptr[float32](completionFrequencyPenalty),
		MaxOutputTokens:  completionMaxTokens,
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(userPrompt), config)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", apperr.New(apperr.ClassUpstreamUnavailable, "No content generated from Gemini")
	}

	log.Printf("[Gemini] Completion generated (model=%s, chars=%d)", s.model, len(text))

	return text, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return apperr.Wrap(apperr.ClassUpstreamAuth, err, "Invalid or expired Gemini API key")
		case apiErr.Code == 429:
			return apperr.Wrap(apperr.ClassUpstreamRateLimit, err, "Gemini API rate limit exceeded. Please try again later.")
		case apiErr.Code == 404:
			return apperr.Wrap(apperr.ClassValidation, err, "The requested text model was not found")
		case apiErr.Code == 400:
			return apperr.Wrap(apperr.ClassValidation, err, "Gemini rejected the request")
		case apiErr.Code >= 500:
			return apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "Gemini is temporarily unavailable")
		}
	}

	if strings.Contains(err.Error(), "deadline exceeded") {
		return apperr.Wrap(apperr.ClassTimeout, err, "Gemini request timed out")
	}

	return apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "Gemini request failed")
}
