package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"device-ingest/internal/cache"
	"device-ingest/internal/database"
	"device-ingest/internal/models"

	"golang.org/x/exp/slog"
)

const (
	DefaultTranscriptionLimit = 20
	defaultSourceApp          = "unknown"
	defaultLanguage           = "en"
	transcriptionsCategory    = "transcriptions"
)

type TranscriptionStore interface {
	CreateTranscription(ctx context.Context, t *models.Transcription) error
	ListTranscriptions(ctx context.Context, f database.TranscriptionFilter) ([]models.Transcription, int64, error)
	FindTranscription(ctx context.Context, deviceID string, id uint64) (*models.Transcription, error)
	DeleteTranscription(ctx context.Context, deviceID string, id uint64) error
	SummarizeTranscriptions(ctx context.Context, deviceID string) (*database.TranscriptionSummary, error)
}

// TranscriptionInput is what a device sends alongside the audio file.
// FilePath is relative to the upload directory.
type TranscriptionInput struct {
	FilePath           string
	SourceApp          string
	OriginalText       string
	Text               string
	EnglishTranslation string
	DetectedLanguage   string
	Metadata           string
}

type TranscriptionQuery struct {
	Page      int
	Limit     int
	Language  string
	SourceApp string
}

type TranscriptionPage struct {
	Transcriptions []models.Transcription `json:"transcriptions"`
	Pagination     Pagination             `json:"pagination"`
}

type TranscriptionService struct {
	store     TranscriptionStore
	uploads   UploadRecorder
	publisher UpdatePublisher
	uploadDir string
	now       func() time.Time
	log       *slog.Logger
}

func NewTranscriptionService(store TranscriptionStore, uploads UploadRecorder, publisher UpdatePublisher, uploadDir string, log *slog.Logger) *TranscriptionService {
	return &TranscriptionService{
		store:     store,
		uploads:   uploads,
		publisher: publisher,
		uploadDir: uploadDir,
		now:       time.Now,
		log:       log.With("component", "transcription_service"),
	}
}

// Create stores the transcription row for an audio file already on disk.
func (s *TranscriptionService) Create(ctx context.Context, identity string, in TranscriptionInput) (*models.Transcription, error) {
	if in.FilePath == "" {
		return nil, invalidRecord("audio file is required")
	}
	if in.SourceApp == "" {
		in.SourceApp = defaultSourceApp
	}
	if in.DetectedLanguage == "" {
		in.DetectedLanguage = defaultLanguage
	}

	t := &models.Transcription{
		DeviceID:           identity,
		FilePath:           in.FilePath,
		SourceApp:          in.SourceApp,
		OriginalText:       in.OriginalText,
		Text:               in.Text,
		EnglishTranslation: in.EnglishTranslation,
		DetectedLanguage:   in.DetectedLanguage,
		Metadata:           in.Metadata,
		Timestamp:          s.now().UTC(),
		Uploaded:           true,
	}
	if err := s.store.CreateTranscription(ctx, t); err != nil {
		return nil, fmt.Errorf("saving transcription: %w", err)
	}

	s.uploads.RecordUpload(identity)
	s.publisher.PublishUpdate(cache.Update{
		Action:   cache.ActionRecordsUploaded,
		DeviceID: identity,
		Category: transcriptionsCategory,
		Count:    1,
	})
	s.log.Info("transcription uploaded", "device_id", identity, "transcription_id", t.ID, "language", t.DetectedLanguage)
	return t, nil
}

// List returns the device's transcriptions, newest first.
func (s *TranscriptionService) List(ctx context.Context, identity string, q TranscriptionQuery) (TranscriptionPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultTranscriptionLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}

	rows, total, err := s.store.ListTranscriptions(ctx, database.TranscriptionFilter{
		DeviceID:  identity,
		Language:  q.Language,
		SourceApp: q.SourceApp,
		Offset:    (q.Page - 1) * q.Limit,
		Limit:     q.Limit,
	})
	if err != nil {
		return TranscriptionPage{}, fmt.Errorf("listing transcriptions: %w", err)
	}
	if rows == nil {
		rows = []models.Transcription{}
	}

	return TranscriptionPage{
		Transcriptions: rows,
		Pagination: Pagination{
			Page:  q.Page,
			Limit: q.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(q.Limit))),
		},
	}, nil
}

// Get returns one of the device's transcriptions. Other devices' rows are
// reported as not found.
func (s *TranscriptionService) Get(ctx context.Context, identity string, id uint64) (*models.Transcription, error) {
	t, err := s.store.FindTranscription(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the row and its audio file.
func (s *TranscriptionService) Delete(ctx context.Context, identity string, id uint64) error {
	t, err := s.store.FindTranscription(ctx, identity, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTranscription(ctx, identity, id); err != nil {
		return err
	}

	if t.FilePath != "" {
		err := os.Remove(filepath.Join(s.uploadDir, t.FilePath))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("failed to remove transcription audio", "device_id", identity, "transcription_id", id, "error", err)
		}
	}
	s.log.Info("transcription deleted", "device_id", identity, "transcription_id", id)
	return nil
}

func (s *TranscriptionService) Summary(ctx context.Context, identity string) (*database.TranscriptionSummary, error) {
	summary, err := s.store.SummarizeTranscriptions(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("summarizing transcriptions: %w", err)
	}
	if summary.LanguageStats == nil {
		summary.LanguageStats = []database.CountBucket{}
	}
	if summary.AppStats == nil {
		summary.AppStats = []database.CountBucket{}
	}
	if summary.RecentActivity == nil {
		summary.RecentActivity = []models.Transcription{}
	}
	return summary, nil
}
