package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hypemix/hypemix/internal/apperr"
	"github.com/hypemix/hypemix/internal/models"
	"github.com/hypemix/hypemix/internal/session"
)

// ---------------------------------------------------------------------------
// FFmpegService — splices narration clips into a music track.
// Three modes: intro (narration first, then music), overlay (narration mixed
// over the music for the music's duration), distributed (music cut at evenly
// spaced points with one narration clip inserted at each cut).
// All modes emit 44.1kHz 128kbps MP3.
// ---------------------------------------------------------------------------

// Mixing constants shared by all modes.
const (
	// narrationFadeSeconds is the fade-in/out applied to every narration clip
	// so cuts into the music don't click.
	narrationFadeSeconds = 0.3
	// narrationBoostVolume lifts speech above the music bed.
	narrationBoostVolume = 1.5
	// musicDuckVolume is the music level under concurrent narration (overlay).
	musicDuckVolume = 0.3
	// musicBedVolume is the music level for segments between narration clips
	// (distributed/intro), slightly attenuated so boosted narration doesn't
	// feel louder than the track around it.
	musicBedVolume = 0.8

	// probeTimeout bounds a standalone ffprobe invocation; the splice path
	// carries its own deadline.
	probeTimeout = 10 * time.Second
)

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	tempRoot    string
	timeout     time.Duration
}

func NewFFmpegService(ffmpegPath, ffprobePath, tempRoot string, timeoutSec int) *FFmpegService {
	if err := os.MkdirAll(tempRoot, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}
	if timeoutSec <= 0 {
		timeoutSec = 55
	}
	return &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempRoot:    tempRoot,
		timeout:     time.Duration(timeoutSec) * time.Second,
	}
}

// InsertionPoints returns the evenly spaced cut offsets for n narration clips
// in a track of the given duration: point i is i*duration/(n+1), so clips land
// at the interior division points, never at the very start or end.
func InsertionPoints(durationSeconds float64, n int) []float64 {
	if n <= 0 || durationSeconds <= 0 {
		return nil
	}
	points := make([]float64, n)
	for i := 1; i <= n; i++ {
		points[i-1] = float64(i) * durationSeconds / float64(n+1)
	}
	return points
}

// Splice combines the job's music and narration clips according to its mode
// and returns the finished MP3. All inputs must already be inline; the caller
// resolves blob references first. The whole run is bounded by the service
// timeout, after which ffmpeg is killed and the job fails as a timeout.
func (s *FFmpegService) Splice(ctx context.Context, job *models.SpliceJob) ([]byte, error) {
	if len(job.Narrations) == 0 {
		return nil, apperr.New(apperr.ClassValidation, "no speech chunks provided")
	}
	if !job.Music.Inline() {
		return nil, apperr.New(apperr.ClassValidation, "music audio data is required")
	}
	for i, n := range job.Narrations {
		if !n.Inline() {
			return nil, apperr.New(apperr.ClassValidation, "speech chunk %d has no audio data", i)
		}
	}

	sess, err := session.Parse(job.SessionID)
	if err != nil {
		return nil, err
	}

	workDir := sess.TempDir(s.tempRoot)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	musicPath := filepath.Join(workDir, "music.mp3")
	if err := os.WriteFile(musicPath, job.Music.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write music file: %w", err)
	}

	narrationPaths := make([]string, len(job.Narrations))
	for i, n := range job.Narrations {
		p := filepath.Join(workDir, fmt.Sprintf("narration_%03d.mp3", i))
		if err := os.WriteFile(p, n.Data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write narration file %d: %w", i, err)
		}
		narrationPaths[i] = p
	}

	musicDuration, err := s.GetAudioDuration(ctx, musicPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassDecodeFailure, err, "Could not read music track duration")
	}
	if job.MaxDurationSeconds > 0 && musicDuration > job.MaxDurationSeconds {
		musicDuration = job.MaxDurationSeconds
	}

	narrationDurations := make([]float64, len(narrationPaths))
	for i, p := range narrationPaths {
		d, err := s.GetAudioDuration(ctx, p)
		if err != nil {
			return nil, apperr.Wrap(apperr.ClassDecodeFailure, err, "Could not read speech clip %d duration", i)
		}
		narrationDurations[i] = d
	}

	var filter string
	switch job.Mode {
	case models.SpliceModeIntro:
		filter = buildIntroFilter(len(narrationPaths), narrationDurations, musicDuration)
	case models.SpliceModeOverlay:
		filter = buildOverlayFilter(len(narrationPaths), narrationDurations, musicDuration)
	case models.SpliceModeDistributed:
		filter = buildDistributedFilter(len(narrationPaths), narrationDurations, musicDuration)
	default:
		return nil, apperr.New(apperr.ClassValidation, "unknown splice mode: %s", job.Mode)
	}

	outputPath := filepath.Join(workDir, "final.mp3")

	args := []string{"-i", musicPath}
	for _, p := range narrationPaths {
		args = append(args, "-i", p)
	}
	args = append(args,
		"-filter_complex", filter,
		"-map", "[out]",
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		"-ar", "44100",
		"-y",
		outputPath,
	)

	log.Printf("[FFmpeg] Splicing (session=%s, mode=%s, narrations=%d, musicDuration=%.1fs)",
		job.SessionID, job.Mode, len(narrationPaths), musicDuration)

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.New(apperr.ClassTimeout, "Audio splicing timed out after %s", s.timeout)
		}
		return nil, apperr.Wrap(apperr.ClassInternal, err, "ffmpeg splice failed: %s", truncateStr(stderr.String(), 300))
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read spliced output: %w", err)
	}

	log.Printf("[FFmpeg] Splice complete (session=%s, %d bytes)", job.SessionID, len(output))

	return output, nil
}

// narrationChain builds the filter chain for one narration input: fade in,
// fade out over the clip's last 300ms, and boost above the music bed.
func narrationChain(input int, duration float64, label string) string {
	fadeOutStart := duration - narrationFadeSeconds
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}
	return fmt.Sprintf("[%d:a]afade=t=in:d=%.2f,afade=t=out:st=%.3f:d=%.2f,volume=%.2f%s",
		input, narrationFadeSeconds, fadeOutStart, narrationFadeSeconds, narrationBoostVolume, label)
}

// buildIntroFilter plays every narration clip in order, then the music.
// Input 0 is the music; inputs 1..n are the narration clips.
func buildIntroFilter(n int, narrationDurations []float64, musicDuration float64) string {
	var b strings.Builder
	var labels []string

	for i := 0; i < n; i++ {
		label := fmt.Sprintf("[n%d]", i)
		b.WriteString(narrationChain(i+1, narrationDurations[i], label))
		b.WriteString(";")
		labels = append(labels, label)
	}

	b.WriteString(fmt.Sprintf("[0:a]atrim=end=%.3f,asetpts=PTS-STARTPTS,volume=%.2f[m];",
		musicDuration, musicBedVolume))
	labels = append(labels, "[m]")

	b.WriteString(strings.Join(labels, ""))
	b.WriteString(fmt.Sprintf("concat=n=%d:v=0:a=1[out]", len(labels)))

	return b.String()
}

// buildOverlayFilter mixes the concatenated narration over the ducked music
// for the music's duration. amix averages its inputs, so the result is
// renormalized back up afterwards.
func buildOverlayFilter(n int, narrationDurations []float64, musicDuration float64) string {
	var b strings.Builder
	var labels []string

	for i := 0; i < n; i++ {
		label := fmt.Sprintf("[n%d]", i)
		b.WriteString(narrationChain(i+1, narrationDurations[i], label))
		b.WriteString(";")
		labels = append(labels, label)
	}

	b.WriteString(strings.Join(labels, ""))
	b.WriteString(fmt.Sprintf("concat=n=%d:v=0:a=1[speech];", n))

	b.WriteString(fmt.Sprintf("[0:a]atrim=end=%.3f,asetpts=PTS-STARTPTS,volume=%.2f[m];",
		musicDuration, musicDuckVolume))

	b.WriteString("[m][speech]amix=inputs=2:duration=first:dropout_transition=0,volume=2.0[out]")

	return b.String()
}

// buildDistributedFilter cuts the music at the evenly spaced insertion points
// and interleaves one narration clip at each cut. Zero-length music segments
// (a cut at the exact start or end of the track) are omitted rather than
// emitted as empty streams.
func buildDistributedFilter(n int, narrationDurations []float64, musicDuration float64) string {
	points := InsertionPoints(musicDuration, n)
	if points == nil {
		points = make([]float64, n)
	}

	var b strings.Builder
	var labels []string
	segIdx := 0

	musicSegment := func(start, end float64) {
		if end-start <= 0 {
			return
		}
		label := fmt.Sprintf("[m%d]", segIdx)
		segIdx++
		b.WriteString(fmt.Sprintf("[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS,volume=%.2f%s;",
			start, end, musicBedVolume, label))
		labels = append(labels, label)
	}

	prev := 0.0
	for i := 0; i < n; i++ {
		musicSegment(prev, points[i])

		label := fmt.Sprintf("[n%d]", i)
		b.WriteString(narrationChain(i+1, narrationDurations[i], label))
		b.WriteString(";")
		labels = append(labels, label)

		prev = points[i]
	}
	musicSegment(prev, musicDuration)

	b.WriteString(strings.Join(labels, ""))
	b.WriteString(fmt.Sprintf("concat=n=%d:v=0:a=1[out]", len(labels)))

	return b.String()
}

// GetAudioDuration returns an audio file's duration in seconds via ffprobe.
func (s *FFmpegService) GetAudioDuration(ctx context.Context, audioPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}

// ValidateAudio checks that data is a decodable MP3 with positive duration.
// Used on the final spliced output before it is handed back to the client.
func (s *FFmpegService) ValidateAudio(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return apperr.New(apperr.ClassDecodeFailure, "empty audio")
	}
	if !IsValidMP3(data) {
		return apperr.New(apperr.ClassDecodeFailure, "output is not valid MP3 audio")
	}

	probe, err := os.CreateTemp(s.tempRoot, "validate-*.mp3")
	if err != nil {
		return fmt.Errorf("failed to create probe file: %w", err)
	}
	defer os.Remove(probe.Name())

	if _, err := probe.Write(data); err != nil {
		probe.Close()
		return fmt.Errorf("failed to write probe file: %w", err)
	}
	probe.Close()

	// The caller's context may be unbounded here; the probe gets its own
	// deadline so a hung ffprobe is killed.
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	duration, err := s.GetAudioDuration(probeCtx, probe.Name())
	if err != nil {
		return apperr.Wrap(apperr.ClassDecodeFailure, err, "output audio could not be decoded")
	}
	if duration <= 0 {
		return apperr.New(apperr.ClassDecodeFailure, "output audio has zero duration")
	}

	return nil
}
