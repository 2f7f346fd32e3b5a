package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hypemix/hypemix/internal/apperr"
)

func TestValidateURL(t *testing.T) {
	svc := NewYouTubeService("yt-dlp", 600, 45)

	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"http://youtube.com/watch?v=dQw4w9WgXcQ",
		"youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/v/dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
		"  https://youtu.be/dQw4w9WgXcQ  ", // surrounding whitespace is trimmed
	}
	for _, u := range valid {
		if !svc.ValidateURL(u) {
			t.Errorf("expected valid: %q", u)
		}
	}

	invalid := []string{
		"",
		"https://vimeo.com/123456789",
		"https://www.youtube.com/watch?v=short", // id under 11 chars
		"https://youtu.be/",
		"not a url at all",
		"https://www.youtube.com/playlist?list=PLx",
	}
	for _, u := range invalid {
		if svc.ValidateURL(u) {
			t.Errorf("expected invalid: %q", u)
		}
	}
}

// stubRunner scripts yt-dlp invocations: each call consumes one result.
type stubRunner struct {
	calls   int
	results []stubResult
}

type stubResult struct {
	stdout string
	stderr string
	err    error
}

func (r *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	if r.calls >= len(r.results) {
		return nil, nil, errors.New("unexpected extra invocation")
	}
	res := r.results[r.calls]
	r.calls++
	return []byte(res.stdout), []byte(res.stderr), res.err
}

func TestGetInfoRetriesTransientFailures(t *testing.T) {
	svc := NewYouTubeService("yt-dlp", 600, 45)
	runner := &stubRunner{results: []stubResult{
		{stderr: "ERROR: connection reset", err: errors.New("exit status 1")},
		{stderr: "ERROR: timed out", err: errors.New("exit status 1")},
		{stdout: `{"title":"Test Track","duration":180,"formats":[]}`},
	}}
	svc.runner = runner

	info, err := svc.getInfo(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if runner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", runner.calls)
	}
	if info.Title != "Test Track" || info.Duration != 180 {
		t.Errorf("unexpected metadata: %+v", info)
	}
}

func TestGetInfoBlockedAccessIsNotRetried(t *testing.T) {
	svc := NewYouTubeService("yt-dlp", 600, 45)
	runner := &stubRunner{results: []stubResult{
		{stderr: "ERROR: Sign in to confirm you're not a bot", err: errors.New("exit status 1")},
	}}
	svc.runner = runner

	_, err := svc.getInfo(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.Classify(err) != apperr.ClassSourceBlocked {
		t.Errorf("expected source_blocked, got %s", apperr.Classify(err))
	}
	if runner.calls != 1 {
		t.Errorf("blocked access should not be retried, got %d attempts", runner.calls)
	}
}

func TestGetInfoUnavailableVideoIsNotRetried(t *testing.T) {
	svc := NewYouTubeService("yt-dlp", 600, 45)
	runner := &stubRunner{results: []stubResult{
		{stderr: "ERROR: Private video", err: errors.New("exit status 1")},
	}}
	svc.runner = runner

	_, err := svc.getInfo(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if apperr.Classify(err) != apperr.ClassUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable, got %s", apperr.Classify(err))
	}
	if runner.calls != 1 {
		t.Errorf("unavailable video should not be retried, got %d attempts", runner.calls)
	}
}

// hangingRunner blocks until the lookup deadline fires on every invocation.
type hangingRunner struct {
	calls int
}

func (r *hangingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls++
	<-ctx.Done()
	return nil, nil, ctx.Err()
}

func TestGetInfoExhaustedTimeoutsStayTimeouts(t *testing.T) {
	svc := NewYouTubeService("yt-dlp", 600, 45)
	svc.lookupWait = 10 * time.Millisecond
	runner := &hangingRunner{}
	svc.runner = runner

	_, err := svc.getInfo(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if runner.calls != metadataRetries {
		t.Errorf("expected %d attempts, got %d", metadataRetries, runner.calls)
	}
	if got := apperr.Classify(err); got != apperr.ClassTimeout {
		t.Errorf("timeout reclassified as %s after retries", got)
	}
}

func TestAcquireRejectsOverlongVideo(t *testing.T) {
	svc := NewYouTubeService("yt-dlp", 600, 45)
	svc.runner = &stubRunner{results: []stubResult{
		{stdout: `{"title":"Full Concert","duration":601,"formats":[]}`},
	}}

	_, err := svc.Acquire(context.Background(), SourceRef{VideoURL: "https://youtu.be/dQw4w9WgXcQ"})
	if err == nil {
		t.Fatal("expected rejection for 601s video")
	}
	if apperr.Classify(err) != apperr.ClassSourceTooLong {
		t.Errorf("expected source_too_long, got %s", apperr.Classify(err))
	}
}

func TestAcquireRejectsBadURLWithoutInvokingYtDlp(t *testing.T) {
	svc := NewYouTubeService("yt-dlp", 600, 45)
	runner := &stubRunner{}
	svc.runner = runner

	_, err := svc.Acquire(context.Background(), SourceRef{VideoURL: "https://vimeo.com/1234"})
	if apperr.Classify(err) != apperr.ClassValidation {
		t.Errorf("expected validation error, got %v", err)
	}
	if runner.calls != 0 {
		t.Error("yt-dlp should not run for an invalid URL")
	}
}

func TestBestAudioStream(t *testing.T) {
	info := &videoInfo{}
	info.Formats = []struct {
		URL    string  `json:"url"`
		ACodec string  `json:"acodec"`
		VCodec string  `json:"vcodec"`
		ABR    float64 `json:"abr"`
	}{
		{URL: "video-only", ACodec: "none", VCodec: "avc1", ABR: 0},
		{URL: "low-audio", ACodec: "opus", VCodec: "none", ABR: 64},
		{URL: "high-audio", ACodec: "opus", VCodec: "none", ABR: 160},
		{URL: "muxed", ACodec: "aac", VCodec: "avc1", ABR: 128},
	}

	if got := bestAudioStream(info); got != "high-audio" {
		t.Errorf("expected highest-bitrate audio-only stream, got %q", got)
	}

	// No audio-only formats: fall back to any format with audio
	info.Formats = info.Formats[:1]
	info.Formats = append(info.Formats, struct {
		URL    string  `json:"url"`
		ACodec string  `json:"acodec"`
		VCodec string  `json:"vcodec"`
		ABR    float64 `json:"abr"`
	}{URL: "muxed", ACodec: "aac", VCodec: "avc1", ABR: 128})

	if got := bestAudioStream(info); got != "muxed" {
		t.Errorf("expected muxed fallback, got %q", got)
	}
}
