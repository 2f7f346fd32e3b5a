package services

import (
	"context"
	"log"
	"strings"

	"github.com/hypemix/hypemix/internal/apperr"
)

// ---------------------------------------------------------------------------
// Upload Source Acquirer
// Accepts a user-supplied MP3 and yields the same SourceAudio contract as the
// remote-video strategy. Duration is measured later by ffprobe.
// ---------------------------------------------------------------------------

const (
	minUploadBytes = 1024
	maxUploadBytes = 50 * 1024 * 1024
)

type UploadService struct{}

var _ SourceService = (*UploadService)(nil)

func NewUploadService() *UploadService {
	return &UploadService{}
}

// Acquire validates the uploaded bytes as MP3 and returns them unchanged.
func (s *UploadService) Acquire(ctx context.Context, ref SourceRef) (*SourceAudio, error) {
	data := ref.Upload

	if len(data) == 0 {
		return nil, apperr.New(apperr.ClassValidation, "Audio data is required")
	}

	if len(data) < minUploadBytes {
		return nil, apperr.New(apperr.ClassValidation,
			"Uploaded audio file is too small (%d bytes). Please upload a valid MP3 file.", len(data))
	}

	if len(data) > maxUploadBytes {
		return nil, apperr.New(apperr.ClassPayloadTooLarge,
			"File too large. Maximum size is %dMB", maxUploadBytes/(1024*1024))
	}

	if !IsValidMP3(data) {
		return nil, apperr.New(apperr.ClassValidation, "Invalid MP3 file. Please upload a valid MP3 audio file.")
	}

	title := sanitizeFilename(ref.Filename)
	if title == "" {
		title = "uploaded-audio.mp3"
	}

	log.Printf("[Upload] Accepted custom audio %q (%.2fMB)", title, float64(len(data))/(1024*1024))

	return &SourceAudio{
		Data:  data,
		Title: title,
	}, nil
}

// IsValidMP3 checks for an ID3v2 tag or an MPEG frame sync at the start of
// the byte stream.
func IsValidMP3(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	if data[0] == 'I' && data[1] == 'D' && data[2] == '3' {
		return true
	}
	return data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}
