package database

import (
	"context"
	"errors"

	"device-ingest/internal/models"

	"gorm.io/gorm"
)

var ErrTranscriptionNotFound = errors.New("transcription not found")

// TranscriptionFilter selects one device's transcriptions. Empty fields
// match everything.
type TranscriptionFilter struct {
	DeviceID  string
	Language  string
	SourceApp string
	Offset    int
	Limit     int
}

// CountBucket is one row of a GROUP BY count.
type CountBucket struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// TranscriptionSummary aggregates a device's transcriptions.
type TranscriptionSummary struct {
	TotalCount     int64                  `json:"totalCount"`
	LanguageStats  []CountBucket          `json:"languageStats"`
	AppStats       []CountBucket          `json:"appStats"`
	RecentActivity []models.Transcription `json:"recentActivity"`
}

const recentTranscriptions = 5

func (m *DBManager) CreateTranscription(ctx context.Context, t *models.Transcription) error {
	return m.WriteDB.WithContext(ctx).Create(t).Error
}

// ListTranscriptions returns the requested page, newest first, and the total
// number of matching rows.
func (m *DBManager) ListTranscriptions(ctx context.Context, f TranscriptionFilter) ([]models.Transcription, int64, error) {
	base := m.GetReadDB().WithContext(ctx).Model(&models.Transcription{}).Where("device_id = ?", f.DeviceID)
	if f.Language != "" {
		base = base.Where("detected_language = ?", f.Language)
	}
	if f.SourceApp != "" {
		base = base.Where("source_app = ?", f.SourceApp)
	}
	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Transcription
	err := base.Order("timestamp DESC").Offset(f.Offset).Limit(f.Limit).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// FindTranscription loads one transcription owned by deviceID.
func (m *DBManager) FindTranscription(ctx context.Context, deviceID string, id uint64) (*models.Transcription, error) {
	var t models.Transcription
	err := m.GetReadDB().WithContext(ctx).Where("id = ? AND device_id = ?", id, deviceID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTranscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTranscription removes one transcription owned by deviceID.
func (m *DBManager) DeleteTranscription(ctx context.Context, deviceID string, id uint64) error {
	res := m.WriteDB.WithContext(ctx).Where("id = ? AND device_id = ?", id, deviceID).Delete(&models.Transcription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTranscriptionNotFound
	}
	return nil
}

// SummarizeTranscriptions counts a device's transcriptions by language and
// by source app, largest first, and returns the most recent ones.
func (m *DBManager) SummarizeTranscriptions(ctx context.Context, deviceID string) (*TranscriptionSummary, error) {
	db := m.GetReadDB().WithContext(ctx)
	byDevice := db.Model(&models.Transcription{}).Where("device_id = ?", deviceID).Session(&gorm.Session{})

	summary := &TranscriptionSummary{}
	if err := byDevice.Count(&summary.TotalCount).Error; err != nil {
		return nil, err
	}

	err := byDevice.
		Select("detected_language AS value, COUNT(*) AS count").
		Group("detected_language").
		Order("count DESC").
		Scan(&summary.LanguageStats).Error
	if err != nil {
		return nil, err
	}

	err = byDevice.
		Select("source_app AS value, COUNT(*) AS count").
		Group("source_app").
		Order("count DESC").
		Scan(&summary.AppStats).Error
	if err != nil {
		return nil, err
	}

	err = byDevice.Order("timestamp DESC").Limit(recentTranscriptions).Find(&summary.RecentActivity).Error
	if err != nil {
		return nil, err
	}
	return summary, nil
}
