package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hypemix/hypemix/internal/apperr"
	"github.com/hypemix/hypemix/internal/models"
	"github.com/hypemix/hypemix/internal/queue"
	"github.com/hypemix/hypemix/internal/services"
	"github.com/hypemix/hypemix/internal/session"
	"github.com/hypemix/hypemix/internal/transfer"
	"github.com/hypemix/hypemix/internal/worker"
)

type Handler struct {
	queue     *queue.Queue
	selector  *transfer.Selector
	youtube   *services.YouTubeService
	upload    *services.UploadService
	generator *services.TextGenerator
	tts       *services.ElevenLabsService
	ffmpeg    *services.FFmpegService
	worker    *worker.Worker

	maxBodyBytes int64
}

func NewHandler(
	q *queue.Queue,
	selector *transfer.Selector,
	youtubeSvc *services.YouTubeService,
	uploadSvc *services.UploadService,
	generator *services.TextGenerator,
	ttsSvc *services.ElevenLabsService,
	ffmpegSvc *services.FFmpegService,
	wrk *worker.Worker,
	maxPayloadMB int,
) *Handler {
	// Base64 inflates inline audio by ~4/3; leave headroom over the payload cap.
	maxBody := int64(maxPayloadMB) * 1024 * 1024 * 3 / 2
	return &Handler{
		queue:        q,
		selector:     selector,
		youtube:      youtubeSvc,
		upload:       uploadSvc,
		generator:    generator,
		tts:          ttsSvc,
		ffmpeg:       ffmpegSvc,
		worker:       wrk,
		maxBodyBytes: maxBody,
	}
}

// resolveSession validates an incoming session id, creating a fresh session
// when none was supplied. Expired sessions are refused.
func resolveSession(id string) (session.Session, error) {
	if id == "" {
		return session.New(), nil
	}
	sess, err := session.Parse(id)
	if err != nil {
		return session.Session{}, err
	}
	if sess.Expired(time.Now()) {
		return session.Session{}, apperr.New(apperr.ClassValidation, "Session has expired")
	}
	return sess, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, apperr.New(apperr.ClassValidation, "Invalid request body"))
		return false
	}
	return true
}

// ExtractAudio handles POST /v1/audio/extract
func (h *Handler) ExtractAudio(w http.ResponseWriter, r *http.Request) {
	var req models.ExtractAudioRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.YouTubeURL == "" {
		respondError(w, apperr.New(apperr.ClassValidation, "YouTube URL is required"))
		return
	}

	sess, err := resolveSession(req.SessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	audio, err := h.youtube.Acquire(r.Context(), services.SourceRef{VideoURL: req.YouTubeURL})
	if err != nil {
		respondError(w, err)
		return
	}

	asset := models.AudioAsset{
		Name:        audio.Title + ".mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(audio.Data)),
		Data:        audio.Data,
	}
	packed, err := h.selector.Pack(r.Context(), asset, sess.Namespace(session.KindMusicAudio)+"music.mp3")
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.ExtractAudioResponse{
		Audio:           packed,
		Title:           audio.Title,
		DurationSeconds: audio.DurationSeconds,
		SessionID:       sess.ID,
	})
}

// UploadAudio handles POST /v1/audio/upload
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	var req models.UploadAudioRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := resolveSession(req.SessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	audio, err := h.upload.Acquire(r.Context(), services.SourceRef{
		Upload:   req.AudioData,
		Filename: req.Filename,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	asset := models.AudioAsset{
		Name:        audio.Title,
		ContentType: "audio/mpeg",
		Size:        int64(len(audio.Data)),
		Data:        audio.Data,
	}
	packed, err := h.selector.Pack(r.Context(), asset, sess.Namespace(session.KindCustomAudio)+audio.Title)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.UploadAudioResponse{
		Audio:     packed,
		Title:     audio.Title,
		SessionID: sess.ID,
	})
}

// GenerateText handles POST /v1/text/generate
func (h *Handler) GenerateText(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateTextRequest
	if !h.decode(w, r, &req) {
		return
	}

	charLimit := services.ModelCharLimit(req.SpeechModelID)
	text, chunks, err := h.generator.Generate(r.Context(), req.Persona, charLimit)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.GenerateTextResponse{
		NarrationText: text,
		Chunks:        chunks,
	})
}

// ListVoices handles GET /v1/voices
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.tts.ListVoices(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.ListVoicesResponse{Voices: voices})
}

// SynthesizeSpeech handles POST /v1/speech/generate
func (h *Handler) SynthesizeSpeech(w http.ResponseWriter, r *http.Request) {
	var req models.SynthesizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := resolveSession(req.SessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	audio, err := h.tts.Synthesize(r.Context(), req.Text, req.VoiceID, req.ModelID, req.Settings)
	if err != nil {
		respondError(w, err)
		return
	}

	asset := models.AudioAsset{
		Name:        "narration.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(audio)),
		Data:        audio,
	}
	packed, err := h.selector.Pack(r.Context(), asset, sess.Namespace(session.KindTTSAudio)+"narration.mp3")
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.SynthesizeResponse{Audio: packed})
}

// Splice handles POST /v1/audio/splice
func (h *Handler) Splice(w http.ResponseWriter, r *http.Request) {
	var req models.SpliceRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := resolveSession(req.SessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	mode := models.SpliceModeDistributed
	if req.SpliceMode != "" {
		parsed, ok := models.ParseSpliceMode(req.SpliceMode)
		if !ok {
			respondError(w, apperr.New(apperr.ClassValidation, "Invalid splice mode: %s", req.SpliceMode))
			return
		}
		mode = parsed
	}

	musicData, err := h.selector.Resolve(r.Context(), req.Music)
	if err != nil {
		respondError(w, err)
		return
	}

	narrations := make([]models.AudioAsset, len(req.Narrations))
	for i, n := range req.Narrations {
		data, err := h.selector.Resolve(r.Context(), n)
		if err != nil {
			respondError(w, err)
			return
		}
		narrations[i] = models.AudioAsset{
			Name:        n.Name,
			ContentType: "audio/mpeg",
			Size:        int64(len(data)),
			Data:        data,
		}
	}

	final, err := h.ffmpeg.Splice(r.Context(), &models.SpliceJob{
		SessionID:          sess.ID,
		Music:              models.AudioAsset{ContentType: "audio/mpeg", Size: int64(len(musicData)), Data: musicData},
		Narrations:         narrations,
		Mode:               mode,
		MaxDurationSeconds: req.MaxDurationSeconds,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.ffmpeg.ValidateAudio(r.Context(), final); err != nil {
		respondError(w, err)
		return
	}

	asset := models.AudioAsset{
		Name:        "final.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(final)),
		Data:        final,
	}
	packed, err := h.selector.Pack(r.Context(), asset, sess.Namespace(session.KindFinalAudio)+"final.mp3")
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.SpliceResponse{FinalAudio: packed})
}

// CleanupSession handles POST /v1/sessions/cleanup
func (h *Handler) CleanupSession(w http.ResponseWriter, r *http.Request) {
	var req models.CleanupSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := session.Parse(req.SessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	files, folders, errs := h.worker.CleanupPrefixes(r.Context(), sess.Namespaces())

	respondJSON(w, http.StatusOK, models.CleanupSessionResponse{
		SessionID:      sess.ID,
		FilesDeleted:   files,
		FoldersDeleted: folders,
		Errors:         errs,
	})
}

// StartPipeline handles POST /v1/pipelines
func (h *Handler) StartPipeline(w http.ResponseWriter, r *http.Request) {
	var req models.StartPipelineRequest
	if !h.decode(w, r, &req) {
		return
	}

	if (req.YouTubeURL == "") == (req.UploadedAudio == nil) {
		respondError(w, apperr.New(apperr.ClassValidation,
			"Exactly one of youtubeUrl or uploadedAudio is required"))
		return
	}
	if req.VoiceID == "" {
		respondError(w, apperr.New(apperr.ClassValidation, "Voice ID is required"))
		return
	}
	if req.SpliceMode != "" {
		if _, ok := models.ParseSpliceMode(req.SpliceMode); !ok {
			respondError(w, apperr.New(apperr.ClassValidation, "Invalid splice mode: %s", req.SpliceMode))
			return
		}
	}

	// Oversized uploads are rejected before anything is queued.
	if req.UploadedAudio != nil && req.UploadedAudio.Inline() {
		if _, err := h.selector.ChooseTransport(int64(len(req.UploadedAudio.Data))); err != nil {
			respondError(w, err)
			return
		}
	}

	sess := session.New()

	status := &models.PipelineStatus{
		SessionID: sess.ID,
		Step:      models.StepAcquiring,
		Progress:  0,
	}
	if err := h.queue.SetStatus(r.Context(), status); err != nil {
		respondError(w, apperr.Wrap(apperr.ClassInternal, err, "Failed to initialize pipeline status"))
		return
	}

	if err := h.queue.EnqueuePipeline(r.Context(), sess.ID, req); err != nil {
		respondError(w, apperr.Wrap(apperr.ClassInternal, err, "Failed to enqueue pipeline"))
		return
	}

	respondJSON(w, http.StatusAccepted, models.StartPipelineResponse{
		SessionID: sess.ID,
		Step:      models.StepAcquiring,
	})
}

// GetPipeline handles GET /v1/pipelines/{sessionID}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	sess, err := session.Parse(id)
	if err != nil {
		respondError(w, err)
		return
	}

	status, err := h.queue.GetStatus(r.Context(), sess.ID)
	if err != nil {
		respondError(w, apperr.Wrap(apperr.ClassInternal, err, "Failed to fetch pipeline status"))
		return
	}
	if status == nil {
		respondJSON(w, http.StatusNotFound, models.ErrorResponse{
			Message:        "No pipeline found for this session",
			Classification: string(apperr.ClassValidation),
		})
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError maps a classified error to its HTTP status and emits the
// uniform error payload.
func respondError(w http.ResponseWriter, err error) {
	class := apperr.Classify(err)
	respondJSON(w, apperr.HTTPStatus(class), models.ErrorResponse{
		Message:        apperr.UserMessage(err),
		Classification: string(class),
	})
}
