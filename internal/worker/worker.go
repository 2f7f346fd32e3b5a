package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hypemix/hypemix/internal/apperr"
	"github.com/hypemix/hypemix/internal/models"
	"github.com/hypemix/hypemix/internal/queue"
	"github.com/hypemix/hypemix/internal/services"
	"github.com/hypemix/hypemix/internal/session"
	"github.com/hypemix/hypemix/internal/storage"
	"github.com/hypemix/hypemix/internal/transfer"
)

const (
	// cleanupRetries bounds the per-object delete attempts during session
	// cleanup; cleanup is best-effort and never fails a completed run.
	cleanupRetries   = 3
	cleanupBaseDelay = 500 * time.Millisecond
)

// Worker runs queued pipelines end to end: acquire music, generate narration,
// synthesize speech, splice, finalize. Progress and terminal state go to the
// status store after every transition.
type Worker struct {
	queue     *queue.Queue
	store     *storage.Store
	selector  *transfer.Selector
	youtube   *services.YouTubeService
	upload    *services.UploadService
	generator *services.TextGenerator
	tts       *services.ElevenLabsService
	ffmpeg    *services.FFmpegService

	synthesisWidth int
}

func New(
	q *queue.Queue,
	store *storage.Store,
	selector *transfer.Selector,
	youtubeSvc *services.YouTubeService,
	uploadSvc *services.UploadService,
	generator *services.TextGenerator,
	ttsSvc *services.ElevenLabsService,
	ffmpegSvc *services.FFmpegService,
	synthesisWidth int,
) *Worker {
	if synthesisWidth <= 0 {
		synthesisWidth = 4
	}
	return &Worker{
		queue:          q,
		store:          store,
		selector:       selector,
		youtube:        youtubeSvc,
		upload:         uploadSvc,
		generator:      generator,
		tts:            ttsSvc,
		ffmpeg:         ffmpegSvc,
		synthesisWidth: synthesisWidth,
	}
}

// Start begins processing pipeline jobs until the context is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, 5*time.Second)
			if err != nil {
				log.Printf("Error dequeuing pipeline job: %v", err)
				continue
			}
			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing pipeline %s (session: %s)", job.ID, job.SessionID)

			if err := w.runPipeline(ctx, job); err != nil {
				log.Printf("Pipeline %s failed: %v", job.ID, err)
				w.markFailed(ctx, job.SessionID, err)
			} else {
				log.Printf("Pipeline %s completed successfully", job.ID)
			}
		}
	}
}

// progress tracks the monotone completion percentage across the five steps.
// Within a step, a fraction in [0,1) can be reported; the published value
// never decreases even if a caller reports out of order.
type progress struct {
	worker    *Worker
	sessionID string
	published int
}

// stepPercent converts a step plus an intra-step fraction into an overall
// percentage: each of the five steps owns an equal slice of the bar.
func stepPercent(step models.PipelineStep, fraction float64) int {
	stepIdx := 0
	for i, s := range models.PipelineSteps {
		if s == step {
			stepIdx = i
			break
		}
	}

	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	return int((float64(stepIdx) + fraction) / float64(len(models.PipelineSteps)) * 100)
}

func (p *progress) report(ctx context.Context, step models.PipelineStep, fraction float64) {
	pct := stepPercent(step, fraction)
	if pct < p.published {
		pct = p.published
	}
	p.published = pct

	status := &models.PipelineStatus{
		SessionID: p.sessionID,
		Step:      step,
		Progress:  pct,
	}
	if err := p.worker.queue.SetStatus(ctx, status); err != nil {
		log.Printf("[Worker] Failed to publish status for %s: %v", p.sessionID, err)
	}
}

func (w *Worker) runPipeline(ctx context.Context, job *queue.Job) error {
	sess, err := session.Parse(job.SessionID)
	if err != nil {
		return err
	}
	if sess.Expired(time.Now()) {
		return apperr.New(apperr.ClassValidation, "Session has expired")
	}

	req := job.Request
	prog := &progress{worker: w, sessionID: sess.ID}

	// Step 1: acquire the music source
	prog.report(ctx, models.StepAcquiring, 0)

	var source services.SourceService
	var ref services.SourceRef
	if req.YouTubeURL != "" {
		source = w.youtube
		ref = services.SourceRef{VideoURL: req.YouTubeURL}
	} else if req.UploadedAudio != nil {
		data, err := w.selector.Resolve(ctx, *req.UploadedAudio)
		if err != nil {
			return err
		}
		source = w.upload
		ref = services.SourceRef{Upload: data, Filename: req.UploadedAudio.Name}
	} else {
		return apperr.New(apperr.ClassValidation, "Either youtubeUrl or uploadedAudio is required")
	}

	music, err := source.Acquire(ctx, ref)
	if err != nil {
		return err
	}

	// Step 2: generate narration text
	prog.report(ctx, models.StepGeneratingText, 0)

	charLimit := services.ModelCharLimit(req.ModelID)
	_, chunks, err := w.generator.Generate(ctx, req.Persona, charLimit)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return apperr.New(apperr.ClassUpstreamUnavailable, "Text generation produced no usable chunks")
	}

	// Step 3: synthesize speech, fanning out over chunks with bounded width.
	// Results land in an indexed slice so playback order survives regardless
	// of completion order.
	prog.report(ctx, models.StepSynthesizingSpeech, 0)

	narrations := make([]models.AudioAsset, len(chunks))
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.synthesisWidth)

	done := make(chan int, len(chunks))
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			audio, err := w.tts.Synthesize(gctx, chunk.Text, req.VoiceID, req.ModelID, req.Settings)
			if err != nil {
				return fmt.Errorf("speech chunk %d: %w", chunk.Index, err)
			}
			narrations[chunk.Index] = models.AudioAsset{
				Name:        fmt.Sprintf("narration_%03d.mp3", chunk.Index),
				ContentType: "audio/mpeg",
				Size:        int64(len(audio)),
				Data:        audio,
			}
			done <- chunk.Index
			return nil
		})
	}

	// Drain completions for intra-step progress while the group runs.
	drained := make(chan struct{})
	go func() {
		for range done {
			completed++
			prog.report(ctx, models.StepSynthesizingSpeech, float64(completed)/float64(len(chunks)))
		}
		close(drained)
	}()

	err = g.Wait()
	close(done)
	<-drained
	if err != nil {
		return err
	}

	// Step 4: splice
	prog.report(ctx, models.StepSplicing, 0)

	mode := models.SpliceModeDistributed
	if req.SpliceMode != "" {
		parsed, ok := models.ParseSpliceMode(req.SpliceMode)
		if !ok {
			return apperr.New(apperr.ClassValidation, "Invalid splice mode: %s", req.SpliceMode)
		}
		mode = parsed
	}

	final, err := w.ffmpeg.Splice(ctx, &models.SpliceJob{
		SessionID: sess.ID,
		Music: models.AudioAsset{
			Name:        "music.mp3",
			ContentType: "audio/mpeg",
			Size:        int64(len(music.Data)),
			Data:        music.Data,
		},
		Narrations: narrations,
		Mode:       mode,
	})
	if err != nil {
		return err
	}

	// Step 5: finalize — validate the output, pick its transport, publish
	prog.report(ctx, models.StepFinalizing, 0)

	if err := w.ffmpeg.ValidateAudio(ctx, final); err != nil {
		return err
	}

	asset := models.AudioAsset{
		Name:        "final.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(final)),
		Data:        final,
	}
	packed, err := w.selector.Pack(ctx, asset, sess.Namespace(session.KindFinalAudio)+"final.mp3")
	if err != nil {
		return err
	}

	status := &models.PipelineStatus{
		SessionID: sess.ID,
		Step:      models.StepCompleted,
		Progress:  100,
		Result:    &packed,
	}
	if err := w.queue.SetStatus(ctx, status); err != nil {
		return fmt.Errorf("failed to publish final status: %w", err)
	}

	// Intermediate blobs are no longer needed once the result is published.
	// Best effort: a failed cleanup never fails the run.
	w.cleanupIntermediate(ctx, sess)

	return nil
}

// markFailed publishes a terminal failure with its classification. The last
// successfully published progress value is preserved.
func (w *Worker) markFailed(ctx context.Context, sessionID string, runErr error) {
	msg := apperr.UserMessage(runErr)
	class := string(apperr.Classify(runErr))

	prev, _ := w.queue.GetStatus(ctx, sessionID)
	pct := 0
	if prev != nil {
		pct = prev.Progress
	}

	status := &models.PipelineStatus{
		SessionID:      sessionID,
		Step:           models.StepFailed,
		Progress:       pct,
		Error:          &msg,
		Classification: &class,
	}
	if err := w.queue.SetStatus(ctx, status); err != nil {
		log.Printf("[Worker] Failed to publish failure status for %s: %v", sessionID, err)
	}
}

// cleanupIntermediate removes everything under the session's non-final
// namespaces. The final audio namespace is kept until the client calls
// cleanup explicitly.
func (w *Worker) cleanupIntermediate(ctx context.Context, sess session.Session) {
	prefixes := []string{
		sess.Namespace(session.KindMusicAudio),
		sess.Namespace(session.KindCustomAudio),
		sess.Namespace(session.KindTTSAudio),
	}
	files, _, errs := w.CleanupPrefixes(ctx, prefixes)
	if len(errs) > 0 {
		log.Printf("[Worker] Intermediate cleanup for %s left %d objects: %s",
			sess.ID, len(errs), strings.Join(errs, "; "))
	} else if files > 0 {
		log.Printf("[Worker] Cleaned up %d intermediate objects for %s", files, sess.ID)
	}
}

// CleanupPrefixes deletes every object under each prefix, retrying each
// delete with exponential backoff. Deleting an already-absent object counts
// as success, so the whole operation is safe to repeat. Returns the deleted
// object count, the number of prefixes that held anything, and per-object
// error strings for deletes that exhausted their retries.
func (w *Worker) CleanupPrefixes(ctx context.Context, prefixes []string) (files, folders int, errs []string) {
	for _, prefix := range prefixes {
		blobs, err := w.store.List(ctx, prefix)
		if err != nil {
			errs = append(errs, fmt.Sprintf("list %s: %v", prefix, err))
			continue
		}
		if len(blobs) == 0 {
			continue
		}
		folders++

		for _, blob := range blobs {
			if err := w.deleteWithRetry(ctx, blob.URL); err != nil {
				errs = append(errs, fmt.Sprintf("delete %s: %v", blob.Pathname, err))
				continue
			}
			files++
		}
	}
	return files, folders, errs
}

func (w *Worker) deleteWithRetry(ctx context.Context, blobURL string) error {
	var lastErr error
	for attempt := 0; attempt < cleanupRetries; attempt++ {
		if attempt > 0 {
			delay := cleanupBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if lastErr = w.store.Delete(ctx, blobURL); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
