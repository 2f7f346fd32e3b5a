package services

import "context"

// ---------------------------------------------------------------------------
// SourceService — common contract for music acquisition strategies.
// The remote-video and upload strategies both yield a SourceAudio; the
// orchestrator never knows which one produced it.
// ---------------------------------------------------------------------------

// SourceRef identifies a music source. Exactly one field is set.
type SourceRef struct {
	VideoURL string // remote-video strategy
	Upload   []byte // upload strategy: raw MP3 bytes
	Filename string // display name for uploads
}

// SourceAudio is the acquirer output: the full audio bytes plus metadata.
// DurationSeconds is 0 for uploads — it is measured later by ffprobe, not at
// acquisition time.
type SourceAudio struct {
	Data            []byte
	Title           string
	DurationSeconds float64
}

// SourceService is the interface both acquisition strategies implement.
type SourceService interface {
	Acquire(ctx context.Context, ref SourceRef) (*SourceAudio, error)
}
