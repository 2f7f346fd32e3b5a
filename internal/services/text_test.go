package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hypemix/hypemix/internal/apperr"
	"github.com/hypemix/hypemix/internal/models"
)

// stubProvider returns a canned completion and records the prompts it saw.
type stubProvider struct {
	response     string
	err          error
	systemPrompt string
	userPrompt   string
}

func (p *stubProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	p.systemPrompt = systemPrompt
	p.userPrompt = userPrompt
	return p.response, p.err
}

func testPersona() models.Persona {
	return models.Persona{
		Name:             "Alex",
		PhysicalActivity: "a marathon",
		CharacterPrompt:  "You are a drill sergeant with a heart of gold.",
	}
}

func TestGenerateRequiresPersonaFields(t *testing.T) {
	g := NewTextGenerator(&stubProvider{response: "text"}, 150)

	incomplete := []models.Persona{
		{PhysicalActivity: "running", CharacterPrompt: "coach"},
		{Name: "Alex", CharacterPrompt: "coach"},
		{Name: "Alex", PhysicalActivity: "running"},
	}

	for i, p := range incomplete {
		_, _, err := g.Generate(context.Background(), p, 0)
		if err == nil {
			t.Errorf("case %d: incomplete persona accepted", i)
			continue
		}
		if apperr.Classify(err) != apperr.ClassValidation {
			t.Errorf("case %d: expected validation, got %s", i, apperr.Classify(err))
		}
	}
}

func TestGenerateUsesCharacterPromptAsSystem(t *testing.T) {
	provider := &stubProvider{response: "Go get it. You were built for this."}
	g := NewTextGenerator(provider, 150)

	_, _, err := g.Generate(context.Background(), testPersona(), 0)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if provider.systemPrompt != testPersona().CharacterPrompt {
		t.Errorf("character prompt should drive the system role, got %q", provider.systemPrompt)
	}
	if !strings.Contains(provider.userPrompt, "Alex") || !strings.Contains(provider.userPrompt, "a marathon") {
		t.Error("user prompt missing persona details")
	}
}

func TestGenerateEnforcesCharLimit(t *testing.T) {
	provider := &stubProvider{response: strings.Repeat("go. ", 100)}
	g := NewTextGenerator(provider, 150)

	_, _, err := g.Generate(context.Background(), testPersona(), 50)
	if err == nil {
		t.Fatal("expected char limit rejection")
	}
	if apperr.Classify(err) != apperr.ClassValidation {
		t.Errorf("expected validation, got %s", apperr.Classify(err))
	}

	// Limit 0 disables the check
	if _, _, err := g.Generate(context.Background(), testPersona(), 0); err != nil {
		t.Errorf("unexpected error with limit disabled: %v", err)
	}
}

func TestGenerateCharLimitCountsRunes(t *testing.T) {
	// 6,000 two-byte runes: 12,000 bytes but 6,000 characters, inside a
	// 10,000-character limit.
	provider := &stubProvider{response: strings.Repeat("ö", 6000)}
	g := NewTextGenerator(provider, 150)

	if _, _, err := g.Generate(context.Background(), testPersona(), 10000); err != nil {
		t.Errorf("non-ASCII narration within the limit rejected: %v", err)
	}

	provider.response = strings.Repeat("ö", 10001)
	if _, _, err := g.Generate(context.Background(), testPersona(), 10000); err == nil {
		t.Error("narration over the limit accepted")
	}
}

func TestGeneratePropagatesProviderErrors(t *testing.T) {
	provider := &stubProvider{err: apperr.New(apperr.ClassUpstreamRateLimit, "slow down")}
	g := NewTextGenerator(provider, 150)

	_, _, err := g.Generate(context.Background(), testPersona(), 0)
	if apperr.Classify(err) != apperr.ClassUpstreamRateLimit {
		t.Errorf("provider classification lost: %v", err)
	}

	provider.err = errors.New("plain failure")
	_, _, err = g.Generate(context.Background(), testPersona(), 0)
	if err == nil {
		t.Error("provider error swallowed")
	}
}

func TestGenerateRejectsEmptyCompletion(t *testing.T) {
	provider := &stubProvider{response: "   \n  "}
	g := NewTextGenerator(provider, 150)

	_, _, err := g.Generate(context.Background(), testPersona(), 0)
	if apperr.Classify(err) != apperr.ClassUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable for empty completion, got %v", err)
	}
}

func TestBuildPersonaPromptOptionalFields(t *testing.T) {
	p := testPersona()
	base := buildPersonaPrompt(p)

	if strings.Contains(base, "sponsored") {
		t.Error("sponsor text should not appear without a sponsor")
	}

	song := "Eye of the Tiger"
	sponsor := "Acme Energy"
	custom := "Mention the final mile."
	p.SongTitle = &song
	p.Sponsor = &sponsor
	p.CustomInstructions = &custom

	full := buildPersonaPrompt(p)
	for _, want := range []string{song, sponsor, custom, "5 short, self-contained motivational messages"} {
		if !strings.Contains(full, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateSegmentsResult(t *testing.T) {
	provider := &stubProvider{response: "One push more. Never stop now. The finish line is yours. Claim it today."}
	g := NewTextGenerator(provider, 5)

	text, chunks, err := g.Generate(context.Background(), testPersona(), 0)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if text == "" {
		t.Error("narration text missing")
	}
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks at word target 5, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d indexed %d", i, c.Index)
		}
	}
}
