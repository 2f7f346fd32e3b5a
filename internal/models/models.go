package models

import (
	"time"
)

// Enums

// SpliceMode names the strategy used to combine narration with music.
type SpliceMode string

const (
	// SpliceModeIntro plays the full narration first, then the full music
	// track. No overlap; total duration = narration + music.
	SpliceModeIntro SpliceMode = "intro"
	// SpliceModeOverlay mixes narration over the music for the music's
	// duration (music attenuated, narration boosted).
	SpliceModeOverlay SpliceMode = "overlay"
	// SpliceModeDistributed cuts the music at evenly spaced points and
	// inserts one narration clip at each, extending the total duration.
	SpliceModeDistributed SpliceMode = "distributed"
)

// ParseSpliceMode validates a wire value. "random" is accepted as a legacy
// alias for overlay.
func ParseSpliceMode(s string) (SpliceMode, bool) {
	switch SpliceMode(s) {
	case SpliceModeIntro, SpliceModeOverlay, SpliceModeDistributed:
		return SpliceMode(s), true
	}
	if s == "random" {
		return SpliceModeOverlay, true
	}
	return "", false
}

type PipelineStep string

const (
	StepAcquiring          PipelineStep = "acquiring"
	StepGeneratingText     PipelineStep = "generating_text"
	StepSynthesizingSpeech PipelineStep = "synthesizing_speech"
	StepSplicing           PipelineStep = "splicing"
	StepFinalizing         PipelineStep = "finalizing"
	StepCompleted          PipelineStep = "completed"
	StepFailed             PipelineStep = "failed"
)

// PipelineSteps is the ordered sequence of non-terminal steps, used for
// progress computation.
var PipelineSteps = []PipelineStep{
	StepAcquiring,
	StepGeneratingText,
	StepSynthesizingSpeech,
	StepSplicing,
	StepFinalizing,
}

// Core types

// AudioAsset is a named, typed audio byte stream. Exactly one of Data or URL
// is meaningful: Data for inline transfer (base64 on the wire), URL when the
// bytes live in blob storage.
type AudioAsset struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Data        []byte `json:"audioData,omitempty"`
	URL         string `json:"audioUrl,omitempty"`
}

// Inline reports whether the asset carries its bytes directly.
func (a *AudioAsset) Inline() bool { return len(a.Data) > 0 }

// Indirect reports whether the asset is a reference into blob storage.
func (a *AudioAsset) Indirect() bool { return a.URL != "" && len(a.Data) == 0 }

// Persona is the user-supplied data the narration is generated from.
// Name, PhysicalActivity and CharacterPrompt are required; the rest are
// optional embellishments.
type Persona struct {
	Name               string  `json:"name"`
	PhysicalActivity   string  `json:"physicalActivity"`
	CharacterPrompt    string  `json:"characterPrompt"`
	SongTitle          *string `json:"songTitle,omitempty"`
	Sponsor            *string `json:"sponsor,omitempty"`
	CustomInstructions *string `json:"customInstructions,omitempty"`
}

// TextChunk is one bounded-length segment of narration text. Index is the
// playback/insertion order and must survive the synthesis fan-out.
type TextChunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// VoiceConfig is a capability-gated settings bag. Which fields are legal
// depends on the selected speech model; unsupported fields are dropped, not
// rejected. Nil means "use the provider default".
type VoiceConfig struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
}

// Voice describes one available TTS voice.
type Voice struct {
	ID          string  `json:"voice_id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description *string `json:"description,omitempty"`
	PreviewURL  *string `json:"preview_url,omitempty"`
}

// SpliceJob is the input contract to the splicer: one music track, the
// ordered narration clips, and a mode. Created once per run, discarded after.
type SpliceJob struct {
	SessionID  string
	Music      AudioAsset
	Narrations []AudioAsset
	Mode       SpliceMode
	// MaxDurationSeconds > 0 trims the final track to this length.
	MaxDurationSeconds float64
}

// PipelineStatus is the orchestrator's externally visible state for one
// session. Progress is a monotonically non-decreasing percentage.
type PipelineStatus struct {
	SessionID      string       `json:"session_id"`
	Step           PipelineStep `json:"step"`
	Progress       int          `json:"progress"`
	Error          *string      `json:"error,omitempty"`
	Classification *string      `json:"classification,omitempty"`
	Result         *AudioAsset  `json:"result,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// API request/response DTOs

type ExtractAudioRequest struct {
	YouTubeURL string `json:"youtubeUrl"`
	SessionID  string `json:"sessionId"`
}

type ExtractAudioResponse struct {
	Audio           AudioAsset `json:"audio"`
	Title           string     `json:"title"`
	DurationSeconds float64    `json:"duration"`
	SessionID       string     `json:"sessionId"`
}

type UploadAudioRequest struct {
	AudioData []byte `json:"audioData"` // base64 on the wire
	Filename  string `json:"filename"`
	SessionID string `json:"sessionId"`
}

type UploadAudioResponse struct {
	Audio     AudioAsset `json:"audio"`
	Title     string     `json:"title"`
	SessionID string     `json:"sessionId"`
}

type GenerateTextRequest struct {
	Persona       Persona `json:"userData"`
	SpeechModelID string  `json:"speechModelId,omitempty"`
}

type GenerateTextResponse struct {
	NarrationText string      `json:"narrationText"`
	Chunks        []TextChunk `json:"chunks"`
}

type ListVoicesResponse struct {
	Voices []Voice `json:"voices"`
}

type SynthesizeRequest struct {
	Text      string       `json:"text"`
	VoiceID   string       `json:"voiceId"`
	ModelID   string       `json:"modelId,omitempty"`
	Settings  *VoiceConfig `json:"settings,omitempty"`
	SessionID string       `json:"sessionId"`
}

type SynthesizeResponse struct {
	Audio AudioAsset `json:"audio"`
}

type SpliceRequest struct {
	SessionID          string       `json:"sessionId"`
	Music              AudioAsset   `json:"originalAudio"`
	Narrations         []AudioAsset `json:"speechAudio"`
	SpliceMode         string       `json:"spliceMode"`
	MaxDurationSeconds float64      `json:"musicDuration,omitempty"`
}

type SpliceResponse struct {
	FinalAudio AudioAsset `json:"finalAudio"`
}

type CleanupSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type CleanupSessionResponse struct {
	SessionID      string   `json:"sessionId"`
	FilesDeleted   int      `json:"filesDeleted"`
	FoldersDeleted int      `json:"foldersDeleted"`
	Errors         []string `json:"errors,omitempty"`
}

// StartPipelineRequest kicks off a full end-to-end run. Exactly one of
// YouTubeURL or UploadedAudio must be set.
type StartPipelineRequest struct {
	YouTubeURL    string       `json:"youtubeUrl,omitempty"`
	UploadedAudio *AudioAsset  `json:"uploadedAudio,omitempty"`
	Persona       Persona      `json:"userData"`
	VoiceID       string       `json:"voiceId"`
	ModelID       string       `json:"modelId,omitempty"`
	Settings      *VoiceConfig `json:"settings,omitempty"`
	SpliceMode    string       `json:"spliceMode,omitempty"`
}

type StartPipelineResponse struct {
	SessionID string       `json:"sessionId"`
	Step      PipelineStep `json:"step"`
}

// ErrorResponse is the uniform error payload for every endpoint.
type ErrorResponse struct {
	Message        string `json:"message"`
	Classification string `json:"classification"`
}
