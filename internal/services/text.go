package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hypemix/hypemix/internal/apperr"
	"github.com/hypemix/hypemix/internal/models"
)

// ---------------------------------------------------------------------------
// TextProvider — common interface for text-completion providers.
// OpenAI is the primary provider; Gemini is the alternate, selected by
// config. The generator uses whichever is configured without knowing the
// underlying provider.
// ---------------------------------------------------------------------------

// TextProvider is the interface any text-completion provider must implement.
type TextProvider interface {
	// Complete requests a completion for the given system and user prompts.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TextGenerator produces the narration text for a persona and segments it
// into synthesis-sized chunks.
type TextGenerator struct {
	provider   TextProvider
	wordTarget int
}

func NewTextGenerator(provider TextProvider, wordTarget int) *TextGenerator {
	if wordTarget <= 0 {
		wordTarget = 150
	}
	return &TextGenerator{provider: provider, wordTarget: wordTarget}
}

// Generate builds the persona prompts, requests a completion, and verifies
// the result fits the active speech model's character limit before
// segmentation. charLimit <= 0 disables the check.
func (g *TextGenerator) Generate(ctx context.Context, persona models.Persona, charLimit int) (string, []models.TextChunk, error) {
	if persona.Name == "" || persona.CharacterPrompt == "" || persona.PhysicalActivity == "" {
		return "", nil, apperr.New(apperr.ClassValidation,
			"Missing required user data: name, characterPrompt, and physicalActivity are required")
	}

	userPrompt := buildPersonaPrompt(persona)

	text, err := g.provider.Complete(ctx, persona.CharacterPrompt, userPrompt)
	if err != nil {
		return "", nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, apperr.New(apperr.ClassUpstreamUnavailable, "No content generated from the text provider")
	}

	// Limits are in characters, not bytes: count runes so multi-byte
	// narration is not penalized.
	if chars := utf8.RuneCountInString(text); charLimit > 0 && chars > charLimit {
		return "", nil, apperr.New(apperr.ClassValidation,
			"Generated narration is %d characters, exceeding the speech model limit of %d", chars, charLimit)
	}

	return text, SegmentText(text, g.wordTarget), nil
}

// WordTarget exposes the configured chunk size for callers that segment
// pre-generated text.
func (g *TextGenerator) WordTarget() int { return g.wordTarget }

// buildPersonaPrompt assembles the user instruction from required persona
// fields plus the optional embellishments.
func buildPersonaPrompt(p models.Persona) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create 5 short, self-contained motivational messages for %s who is engaged in %s.",
		p.Name, p.PhysicalActivity)

	if p.SongTitle != nil && *p.SongTitle != "" {
		fmt.Fprintf(&b, " They are listening to %s during their activity.", *p.SongTitle)
	}

	if p.Sponsor != nil && *p.Sponsor != "" {
		fmt.Fprintf(&b, " Mention this song is sponsored by %s like a radio personality would in one of the messages.", *p.Sponsor)
	}

	if p.CustomInstructions != nil && *p.CustomInstructions != "" {
		fmt.Fprintf(&b, " Additional instructions: %s", *p.CustomInstructions)
	}

	fmt.Fprintf(&b, `

Each message must:
- Be completely self-contained and impactful on its own (60-90 words each)
- Make sense when heard at ANY point during the activity — beginning, middle, or end
- NOT reference "earlier" or "now" or imply a sequence or progression
- Focus on a different motivational angle: e.g. mental toughness, physical form, purpose, identity, pushing limits
- Feel like a direct, in-the-moment callout to %s during %s
- Be raw, authentic, and punchy — no filler

Format your response as exactly 5 separate paragraphs with a blank line between each. No numbering, no headers.`,
		p.Name, p.PhysicalActivity)

	return b.String()
}
