package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/hypemix/hypemix/internal/apperr"
	"github.com/hypemix/hypemix/internal/models"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Uses the ElevenLabs REST API to convert narration chunks into speech.
// Character limits and legal voice settings vary per model, so both are
// driven by a per-model capability table rather than global constants.
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
	elevenLabsOutputFormat = "mp3_44100_128" // 44.1kHz MP3, matches the splicer's output spec
	elevenLabsCallTimeout  = 60 * time.Second
)

// modelCapabilities gates the VoiceConfig fields a model accepts.
// Stability and similarity-boost are universal.
type modelCapabilities struct {
	CharLimit    int
	Style        bool
	Speed        bool
	SpeakerBoost bool
}

var elevenLabsModels = map[string]modelCapabilities{
	"eleven_multilingual_v2": {CharLimit: 10000, Style: true, Speed: false, SpeakerBoost: true},
	"eleven_flash_v2_5":      {CharLimit: 40000, Style: true, Speed: true, SpeakerBoost: true},
	"eleven_turbo_v2_5":      {CharLimit: 40000, Style: true, Speed: true, SpeakerBoost: true},
	"eleven_v3":              {CharLimit: 10000, Style: false, Speed: false, SpeakerBoost: false},
}

// defaultCharLimit applies to models missing from the table.
const defaultCharLimit = 5000

// Voice-setting defaults tuned for motivational delivery.
var motivationalVoiceDefaults = elevenLabsVoiceSettings{
	Stability:       0.3,
	SimilarityBoost: 0.85,
	Style:           ptrFloat(0.0),
	UseSpeakerBoost: ptrBool(true),
}

// validateSpeechText checks text against the model's character limit.
// Limits count characters, not bytes, so multi-byte narration is measured
// in runes.
func validateSpeechText(text, modelID string) error {
	if limit := ModelCharLimit(modelID); utf8.RuneCountInString(text) > limit {
		return apperr.New(apperr.ClassValidation,
			"Text exceeds %s character limit of %d", modelID, limit)
	}
	return nil
}

// ModelCharLimit returns the character limit for a speech model.
func ModelCharLimit(modelID string) int {
	if caps, ok := elevenLabsModels[modelID]; ok {
		return caps.CharLimit
	}
	return defaultCharLimit
}

type ElevenLabsService struct {
	apiKey string
	client *http.Client
}

func NewElevenLabsService(apiKey string) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey: apiKey,
		client: &http.Client{Timeout: elevenLabsCallTimeout},
	}
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           *float64 `json:"style,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
}

// Synthesize converts one text chunk to MP3 bytes. The chunk length is
// validated against the active model's character limit before the call;
// exceeding it is a request-validation error, not a synthesis failure.
func (s *ElevenLabsService) Synthesize(ctx context.Context, text, voiceID, modelID string, cfg *models.VoiceConfig) ([]byte, error) {
	if text == "" || voiceID == "" {
		return nil, apperr.New(apperr.ClassValidation, "Text and voice ID are required")
	}

	if modelID == "" {
		modelID = elevenLabsDefaultModel
	}

	if err := validateSpeechText(text, modelID); err != nil {
		return nil, err
	}

	settings := buildVoiceSettings(modelID, cfg)

	reqBody := elevenLabsRequest{
		Text:          text,
		ModelID:       modelID,
		VoiceSettings: &settings,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		elevenLabsBaseURL, voiceID, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	log.Printf("[ElevenLabs] Generating speech (voiceID=%s, model=%s, textLen=%d)", voiceID, modelID, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "ElevenLabs request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyElevenLabsStatus(resp.StatusCode, string(body), "Failed to generate speech")
	}

	// The response body IS the audio file
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, apperr.New(apperr.ClassUpstreamUnavailable, "ElevenLabs returned empty audio")
	}

	log.Printf("[ElevenLabs] Speech generated (%d bytes)", len(audioData))

	return audioData, nil
}

// ListVoices fetches the voices available to the configured account.
func (s *ElevenLabsService) ListVoices(ctx context.Context) ([]models.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", elevenLabsBaseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "Network error connecting to ElevenLabs API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyElevenLabsStatus(resp.StatusCode, string(body), "Failed to retrieve voices from ElevenLabs")
	}

	var result struct {
		Voices []struct {
			VoiceID     string  `json:"voice_id"`
			Name        string  `json:"name"`
			Category    string  `json:"category"`
			Description *string `json:"description"`
			PreviewURL  *string `json:"preview_url"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse voices response: %w", err)
	}

	voices := make([]models.Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		category := v.Category
		if category == "" {
			category = "uncategorized"
		}
		voices = append(voices, models.Voice{
			ID:          v.VoiceID,
			Name:        v.Name,
			Category:    category,
			Description: v.Description,
			PreviewURL:  v.PreviewURL,
		})
	}

	return voices, nil
}

// buildVoiceSettings merges caller overrides onto the motivational defaults,
// then filters to the fields the model supports. Unsupported fields are
// silently dropped rather than rejected.
func buildVoiceSettings(modelID string, cfg *models.VoiceConfig) elevenLabsVoiceSettings {
	settings := motivationalVoiceDefaults

	if cfg != nil {
		if cfg.Stability != nil {
			settings.Stability = *cfg.Stability
		}
		if cfg.SimilarityBoost != nil {
			settings.SimilarityBoost = *cfg.SimilarityBoost
		}
		if cfg.Style != nil {
			settings.Style = cfg.Style
		}
		if cfg.Speed != nil {
			settings.Speed = cfg.Speed
		}
		if cfg.UseSpeakerBoost != nil {
			settings.UseSpeakerBoost = cfg.UseSpeakerBoost
		}
	}

	caps, ok := elevenLabsModels[modelID]
	if !ok {
		caps = modelCapabilities{} // unknown model: only universal fields
	}

	if !caps.Style {
		settings.Style = nil
	}
	if !caps.Speed {
		settings.Speed = nil
	}
	if !caps.SpeakerBoost {
		settings.UseSpeakerBoost = nil
	}

	return settings
}

func classifyElevenLabsStatus(status int, body, fallback string) error {
	switch status {
	case http.StatusUnauthorized:
		return apperr.New(apperr.ClassUpstreamAuth, "Invalid ElevenLabs API key")
	case http.StatusTooManyRequests:
		return apperr.New(apperr.ClassUpstreamRateLimit, "Rate limit exceeded. Please try again later")
	case http.StatusPaymentRequired:
		return apperr.New(apperr.ClassUpstreamQuota, "Insufficient quota. Please check your ElevenLabs account")
	}
	return apperr.New(apperr.ClassUpstreamUnavailable, "%s (status %d: %s)", fallback, status, truncateStr(body, 200))
}

func ptrFloat(f float64) *float64 { return &f }
func ptrBool(b bool) *bool        { return &b }
