package handlers

import (
	"time"

	"device-ingest/internal/database"
	"device-ingest/internal/device"
	"device-ingest/internal/models"
	"device-ingest/internal/services"
)

type RegisterRequest struct {
	DeviceID   string          `json:"deviceId" binding:"required"`
	APIKey     string          `json:"apiKey" binding:"required"`
	DeviceInfo device.Metadata `json:"deviceInfo"`
}

type RegisterResponse struct {
	Success  bool   `json:"success"`
	UUID     string `json:"uuid"`
	DeviceID string `json:"deviceId"`
}

type StatsResponse struct {
	Success bool         `json:"success"`
	Stats   device.Stats `json:"stats"`
}

type DevicesResponse struct {
	Success bool           `json:"success"`
	Devices []device.Stats `json:"devices"`
}

type DeviceResponse struct {
	Success bool         `json:"success"`
	UUID    string       `json:"uuid,omitempty"`
	Stats   device.Stats `json:"device"`
}

type UploadRequest struct {
	Data []map[string]any `json:"data" binding:"required"`
}

type UploadResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

type ListResponse struct {
	Success    bool                `json:"success"`
	Data       []map[string]any    `json:"data"`
	Pagination services.Pagination `json:"pagination"`
}

type FileResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

type TokenResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ErrorResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Code    services.Kind `json:"code"`
}

type TranscriptionUploadResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	TranscriptionID uint64 `json:"transcriptionId"`
	FilePath        string `json:"filePath"`
}

type TranscriptionListResponse struct {
	Success        bool                   `json:"success"`
	Transcriptions []models.Transcription `json:"transcriptions"`
	Pagination     services.Pagination    `json:"pagination"`
}

type TranscriptionResponse struct {
	Success       bool                  `json:"success"`
	Transcription *models.Transcription `json:"transcription"`
}

type TranscriptionSummaryResponse struct {
	Success bool                           `json:"success"`
	Stats   *database.TranscriptionSummary `json:"stats"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
