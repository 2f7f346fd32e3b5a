package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hypemix/hypemix/internal/apperr"
)

// ---------------------------------------------------------------------------
// YouTube Source Acquirer
// Resolves video metadata through yt-dlp (invoked as an external binary) and
// downloads the highest-bitrate audio-only stream while enforcing duration
// and size caps.
// ---------------------------------------------------------------------------

const (
	metadataTimeout  = 30 * time.Second
	downloadTimeout  = 60 * time.Second
	metadataRetries  = 3
	metadataBaseWait = 2 * time.Second
)

// youtubeURLPattern accepts watch/embed/v paths and youtu.be short links with
// an 11-character video id.
var youtubeURLPattern = regexp.MustCompile(
	`^(https?://)?(www\.)?(youtube\.com/(watch\?v=|embed/|v/)|youtu\.be/)([a-zA-Z0-9_-]{11})(\S*)?$`)

type YouTubeService struct {
	ytdlpPath   string
	maxDuration int   // seconds
	maxBytes    int64 // hard cap on the downloaded stream
	lookupWait  time.Duration
	client      *http.Client
	runner      CommandRunner
}

var _ SourceService = (*YouTubeService)(nil)

func NewYouTubeService(ytdlpPath string, maxDurationSec, maxPayloadMB int) *YouTubeService {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp" // system-installed fallback
	}
	return &YouTubeService{
		ytdlpPath:   ytdlpPath,
		maxDuration: maxDurationSec,
		maxBytes:    int64(maxPayloadMB) * 1024 * 1024,
		lookupWait:  metadataTimeout,
		client:      &http.Client{Timeout: downloadTimeout},
		runner:      execRunner{},
	}
}

// videoInfo is the subset of yt-dlp's --dump-json output we need.
type videoInfo struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Formats  []struct {
		URL    string  `json:"url"`
		ACodec string  `json:"acodec"`
		VCodec string  `json:"vcodec"`
		ABR    float64 `json:"abr"`
	} `json:"formats"`
	URL string `json:"url"`
}

// ValidateURL checks the reference against the strict URL shape.
func (s *YouTubeService) ValidateURL(url string) bool {
	return youtubeURLPattern.MatchString(strings.TrimSpace(url))
}

// Acquire resolves metadata, enforces the duration cap, and downloads the
// best audio-only stream. Exceeding the duration cap is a hard rejection
// before any download attempt.
func (s *YouTubeService) Acquire(ctx context.Context, ref SourceRef) (*SourceAudio, error) {
	url := strings.TrimSpace(ref.VideoURL)
	if !s.ValidateURL(url) {
		return nil, apperr.New(apperr.ClassValidation, "Please provide a valid YouTube URL")
	}

	info, err := s.getInfo(ctx, url)
	if err != nil {
		return nil, err
	}

	if info.Duration > float64(s.maxDuration) {
		return nil, apperr.New(apperr.ClassSourceTooLong,
			"Video is too long. Please use videos shorter than %d minutes.", s.maxDuration/60)
	}

	streamURL := bestAudioStream(info)
	if streamURL == "" {
		return nil, apperr.New(apperr.ClassUpstreamUnavailable, "No audio stream available for this video")
	}

	data, err := s.downloadStream(ctx, streamURL)
	if err != nil {
		return nil, err
	}

	log.Printf("[YouTube] Acquired %q (%.0fs, %d bytes)", info.Title, info.Duration, len(data))

	return &SourceAudio{
		Data:            data,
		Title:           info.Title,
		DurationSeconds: info.Duration,
	}, nil
}

// getInfo runs yt-dlp for metadata, retrying transient failures up to 3 times
// with increasing backoff. Blocked-access and fatal conditions are classified
// and never retried.
func (s *YouTubeService) getInfo(ctx context.Context, url string) (*videoInfo, error) {
	args := []string{
		"--dump-json",
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		"--format", "bestaudio/best",
		url,
	}

	var lastErr error
	for attempt := 1; attempt <= metadataRetries; attempt++ {
		if attempt > 1 {
			wait := metadataBaseWait * time.Duration(attempt-1)
			log.Printf("[YouTube] Metadata retry %d/%d (waiting %v)...", attempt, metadataRetries, wait)
			select {
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.ClassTimeout, ctx.Err(), "Metadata lookup cancelled")
			case <-time.After(wait):
			}
		}

		lookupCtx, cancel := context.WithTimeout(ctx, s.lookupWait)
		stdout, stderr, err := s.runner.Run(lookupCtx, s.ytdlpPath, args...)
		cancel()

		if err == nil {
			var info videoInfo
			if jsonErr := json.Unmarshal(bytes.TrimSpace(stdout), &info); jsonErr != nil {
				return nil, apperr.Wrap(apperr.ClassInternal, jsonErr, "Failed to parse video metadata")
			}
			return &info, nil
		}

		combined := strings.ToLower(string(stderr) + " " + err.Error())

		// Bot checks and rate limits must surface as a retry-later condition,
		// not a generic failure. Retrying immediately only digs the hole deeper.
		if strings.Contains(combined, "sign in to confirm") ||
			strings.Contains(combined, "confirm you're not a bot") ||
			strings.Contains(combined, "http error 429") {
			return nil, apperr.New(apperr.ClassSourceBlocked,
				"The video source is blocking automated access. Please try again later.")
		}

		// Fatal conditions: the video will not become available by retrying.
		if strings.Contains(combined, "private video") ||
			strings.Contains(combined, "video unavailable") ||
			strings.Contains(combined, "removed by the uploader") {
			return nil, apperr.New(apperr.ClassUpstreamUnavailable, "This video is private or unavailable")
		}

		if lookupCtx.Err() == context.DeadlineExceeded {
			lastErr = apperr.Wrap(apperr.ClassTimeout, err, "Video metadata lookup timed out")
		} else {
			lastErr = fmt.Errorf("yt-dlp failed: %w (%s)", err, truncateStr(string(stderr), 200))
		}
		log.Printf("[YouTube] Metadata attempt %d failed: %v", attempt, lastErr)
	}

	// A final timeout stays a timeout; only generic failures become
	// upstream-unavailable.
	class := apperr.ClassUpstreamUnavailable
	if apperr.Classify(lastErr) == apperr.ClassTimeout {
		class = apperr.ClassTimeout
	}
	return nil, apperr.Wrap(class, lastErr,
		"Failed to resolve video metadata after %d attempts", metadataRetries)
}

// bestAudioStream picks the highest-bitrate audio-only format, falling back
// to any format that carries audio.
func bestAudioStream(info *videoInfo) string {
	bestURL := ""
	bestABR := -1.0
	for _, f := range info.Formats {
		if f.ACodec == "" || f.ACodec == "none" || f.URL == "" {
			continue
		}
		audioOnly := f.VCodec == "" || f.VCodec == "none"
		if audioOnly && f.ABR > bestABR {
			bestABR = f.ABR
			bestURL = f.URL
		}
	}
	if bestURL != "" {
		return bestURL
	}
	for _, f := range info.Formats {
		if f.ACodec != "" && f.ACodec != "none" && f.URL != "" {
			return f.URL
		}
	}
	return info.URL
}

// downloadStream fetches the audio payload, accumulating in memory and
// aborting as soon as the accumulated size exceeds the hard cap.
func (s *YouTubeService) downloadStream(ctx context.Context, streamURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Referer", "https://www.youtube.com/")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "Failed to download audio stream")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.ClassUpstreamUnavailable,
			"Audio stream download failed with status %d", resp.StatusCode)
	}

	if resp.ContentLength > s.maxBytes {
		return nil, s.tooLargeError(resp.ContentLength)
	}

	var buf bytes.Buffer
	// Read one byte past the cap so an at-cap stream still succeeds.
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "Audio stream download was interrupted")
	}
	if n > s.maxBytes {
		return nil, s.tooLargeError(n)
	}

	return buf.Bytes(), nil
}

func (s *YouTubeService) tooLargeError(size int64) error {
	return apperr.New(apperr.ClassPayloadTooLarge,
		"Audio file too large (over %dMB). Please use shorter videos.", s.maxBytes/(1024*1024))
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
