package handlers

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"device-ingest/internal/database"
	"device-ingest/internal/middleware"
	"device-ingest/internal/models"
	"device-ingest/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

const transcriptionsDir = "transcriptions"

var audioTypes = map[string]bool{
	"audio/opus":     true,
	"audio/ogg":      true,
	"audio/mpeg":     true,
	"audio/wav":      true,
	"audio/mp4":      true,
	"audio/aac":      true,
	"audio/flac":     true,
	"audio/x-ms-wma": true,
	"audio/amr":      true,
	"audio/3gpp":     true,
}

var errNotAudio = &services.Error{Kind: services.KindInvalidRecord, Message: "only audio files are allowed"}

// Transcriptions is the transcription service as seen by HTTP handlers.
type Transcriptions interface {
	Create(ctx context.Context, identity string, in services.TranscriptionInput) (*models.Transcription, error)
	List(ctx context.Context, identity string, q services.TranscriptionQuery) (services.TranscriptionPage, error)
	Get(ctx context.Context, identity string, id uint64) (*models.Transcription, error)
	Delete(ctx context.Context, identity string, id uint64) error
	Summary(ctx context.Context, identity string) (*database.TranscriptionSummary, error)
}

type TranscriptionHandler struct {
	svc   Transcriptions
	store uploadStore
	now   func() time.Time
	log   *slog.Logger
}

func NewTranscriptionHandler(svc Transcriptions, uploadDir string, maxBytes int64, log *slog.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{
		svc:   svc,
		store: uploadStore{root: uploadDir, maxBytes: maxBytes},
		now:   time.Now,
		log:   log.With("component", "transcription_handler"),
	}
}

// Upload stores an audio clip and its transcription for the calling device
// @Summary Upload a transcription
// @Tags transcriptions
// @Accept multipart/form-data
// @Produce json
// @Security DeviceAuth
// @Param audio formData file true "Audio clip"
// @Param sourceApp formData string false "App the audio came from"
// @Param originalText formData string false "Text before transcription"
// @Param transcription formData string false "Transcribed text"
// @Param englishTranslation formData string false "English translation"
// @Param detectedLanguage formData string false "Language code"
// @Param metadata formData string false "Free-form JSON metadata"
// @Success 200 {object} TranscriptionUploadResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/transcriptions/upload [post]
func (h *TranscriptionHandler) Upload(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}

	file, err := h.store.formFile(c, "audio")
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}
	mediaType, _, err := mime.ParseMediaType(file.Header.Get("Content-Type"))
	if err != nil || !audioTypes[strings.ToLower(mediaType)] {
		middleware.RespondError(c, errNotAudio, h.log)
		return
	}

	ext := filepath.Ext(safeName(file.Filename))
	filename := fmt.Sprintf("%d_%s_transcription%s", h.now().UnixMilli(), ac.DeviceID, ext)
	_, relPath, err := h.store.save(c, file, ac.DeviceID, transcriptionsDir, filename)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	t, err := h.svc.Create(c.Request.Context(), ac.DeviceID, services.TranscriptionInput{
		FilePath:           relPath,
		SourceApp:          c.PostForm("sourceApp"),
		OriginalText:       c.PostForm("originalText"),
		Text:               c.PostForm("transcription"),
		EnglishTranslation: c.PostForm("englishTranslation"),
		DetectedLanguage:   c.PostForm("detectedLanguage"),
		Metadata:           c.PostForm("metadata"),
	})
	if err != nil {
		if rmErr := h.store.remove(relPath); rmErr != nil {
			h.log.Warn("failed to remove orphaned audio", "path", relPath, "error", rmErr)
		}
		middleware.RespondError(c, err, h.log)
		return
	}

	c.JSON(http.StatusOK, TranscriptionUploadResponse{
		Success:         true,
		Message:         "transcription uploaded",
		TranscriptionID: t.ID,
		FilePath:        relPath,
	})
}

// List returns a page of the calling device's transcriptions
// @Summary List transcriptions
// @Tags transcriptions
// @Produce json
// @Security DeviceAuth
// @Param page query int false "Page, from 1"
// @Param limit query int false "Page size"
// @Param language query string false "Detected language"
// @Param sourceApp query string false "Source app"
// @Success 200 {object} TranscriptionListResponse
// @Router /api/transcriptions/list [get]
func (h *TranscriptionHandler) List(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}

	q := services.TranscriptionQuery{
		Language:  c.Query("language"),
		SourceApp: c.Query("sourceApp"),
	}
	q.Page, _ = strconv.Atoi(c.Query("page"))
	q.Limit, _ = strconv.Atoi(c.Query("limit"))

	page, err := h.svc.List(c.Request.Context(), ac.DeviceID, q)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, TranscriptionListResponse{
		Success:        true,
		Transcriptions: page.Transcriptions,
		Pagination:     page.Pagination,
	})
}

// Get returns one transcription
// @Summary Get a transcription
// @Tags transcriptions
// @Produce json
// @Security DeviceAuth
// @Param id path int true "Transcription id"
// @Success 200 {object} TranscriptionResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/transcriptions/{id} [get]
func (h *TranscriptionHandler) Get(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		middleware.RespondError(c, services.ErrTranscriptionNotFound, h.log)
		return
	}

	t, err := h.svc.Get(c.Request.Context(), ac.DeviceID, id)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, TranscriptionResponse{Success: true, Transcription: t})
}

// Delete removes one transcription and its audio
// @Summary Delete a transcription
// @Tags transcriptions
// @Produce json
// @Security DeviceAuth
// @Param id path int true "Transcription id"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/transcriptions/{id} [delete]
func (h *TranscriptionHandler) Delete(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		middleware.RespondError(c, services.ErrTranscriptionNotFound, h.log)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), ac.DeviceID, id); err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "transcription deleted"})
}

// Summary counts the calling device's transcriptions by language and app
// @Summary Transcription statistics
// @Tags transcriptions
// @Produce json
// @Security DeviceAuth
// @Success 200 {object} TranscriptionSummaryResponse
// @Router /api/transcriptions/stats/summary [get]
func (h *TranscriptionHandler) Summary(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}

	summary, err := h.svc.Summary(c.Request.Context(), ac.DeviceID)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, TranscriptionSummaryResponse{Success: true, Stats: summary})
}
