package services

import (
	"regexp"
	"strings"

	"github.com/hypemix/hypemix/internal/models"
)

// sentenceBoundary splits narration on sentence-ending punctuation runs.
var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// SegmentText splits narration into ordered chunks for speech synthesis.
// Sentences are packed greedily into a chunk until the next sentence would
// push it past wordTarget, then a new chunk starts. A single sentence longer
// than the target is kept whole — sentences are never split. Empty chunks
// are discarded. Chunk order becomes playback/insertion order downstream.
func SegmentText(text string, wordTarget int) []models.TextChunk {
	if wordTarget <= 0 {
		wordTarget = 150
	}

	var sentences []string
	for _, s := range sentenceBoundary.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	var chunks []models.TextChunk
	var current strings.Builder
	currentWords := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, models.TextChunk{Index: len(chunks), Text: current.String()})
			current.Reset()
			currentWords = 0
		}
	}

	for _, sentence := range sentences {
		words := len(strings.Fields(sentence))
		if currentWords+words > wordTarget && current.Len() > 0 {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(". ")
		}
		current.WriteString(sentence)
		currentWords += words
	}
	flush()

	return chunks
}
