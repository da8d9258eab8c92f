package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"device-ingest/internal/cache"
	"device-ingest/internal/database"
	"device-ingest/internal/device"
	"device-ingest/internal/middleware"
	"device-ingest/internal/models"
	"device-ingest/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

type DeviceRegistry interface {
	Register(identity, credential string, meta device.Metadata) (device.Record, error)
	Stats(identity string) (device.Stats, error)
	ListAll() []device.Stats
}

// DeviceDirectory persists the descriptive row of explicitly registered devices.
type DeviceDirectory interface {
	SaveDevice(ctx context.Context, d *models.Device) error
	FindDevice(ctx context.Context, deviceID string) (*models.Device, error)
}

type Cache interface {
	Get(key string, target interface{}) (bool, error)
	Set(key string, value interface{}, ttl time.Duration) error
}

type DeviceHandler struct {
	registry  DeviceRegistry
	directory DeviceDirectory
	cache     Cache
	cacheTTL  time.Duration
	publisher services.UpdatePublisher
	log       *slog.Logger
}

func NewDeviceHandler(registry DeviceRegistry, directory DeviceDirectory, c Cache, cacheTTL time.Duration, publisher services.UpdatePublisher, log *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		registry:  registry,
		directory: directory,
		cache:     c,
		cacheTTL:  cacheTTL,
		publisher: publisher,
		log:       log.With("component", "device_handler"),
	}
}

// Register handles explicit device registration
// @Summary Register a device
// @Tags devices
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Device registration data"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/register [post]
func (h *DeviceHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, &services.Error{Kind: services.KindInvalidRecord, Message: "deviceId and apiKey are required"}, h.log)
		return
	}

	if !device.ValidIdentity(req.DeviceID) {
		middleware.RespondError(c, &services.Error{Kind: services.KindInvalidRecord, Message: "deviceId must be 32 lowercase hex characters"}, h.log)
		return
	}

	rec, err := h.registry.Register(req.DeviceID, req.APIKey, req.DeviceInfo)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	row := &models.Device{
		DeviceID:         rec.Identity,
		UUID:             uuid.NewString(),
		RegistrationDate: rec.RegisteredAt,
		LastSeen:         rec.LastSeen,
		Model:            rec.Metadata.Model,
		Manufacturer:     rec.Metadata.Manufacturer,
		AndroidVersion:   rec.Metadata.AndroidVersion,
		AppVersion:       rec.Metadata.AppVersion,
	}
	// The registry stays authoritative when the directory write fails.
	if err := h.directory.SaveDevice(c.Request.Context(), row); err != nil {
		h.log.Error("failed to save device directory row", "device_id", rec.Identity, "error", err)
	}

	h.publisher.PublishUpdate(cache.Update{Action: cache.ActionDeviceRegistered, DeviceID: rec.Identity})

	c.JSON(http.StatusCreated, RegisterResponse{
		Success:  true,
		UUID:     row.UUID,
		DeviceID: rec.Identity,
	})
}

// Stats returns the calling device's own statistics
// @Summary Get device statistics
// @Tags devices
// @Produce json
// @Security DeviceAuth
// @Success 200 {object} StatsResponse
// @Router /api/device/stats [get]
func (h *DeviceHandler) Stats(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}
	stats, err := h.registry.Stats(ac.DeviceID)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{Success: true, Stats: stats})
}

// ListDevices returns every known device, most recently seen first
// @Summary List devices
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DevicesResponse
// @Router /api/admin/devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices := h.registry.ListAll()
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSeen.After(devices[j].LastSeen)
	})
	c.JSON(http.StatusOK, DevicesResponse{Success: true, Devices: devices})
}

// GetDevice returns one device with its directory row, if it has one
// @Summary Get device
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Success 200 {object} DeviceResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/admin/devices/{id} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	id := c.Param("id")
	if !device.ValidIdentity(id) {
		middleware.RespondError(c, services.ErrInvalidIdentityFormat, h.log)
		return
	}

	stats, err := h.registry.Stats(id)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	resp := DeviceResponse{Success: true, Stats: stats}
	info, err := h.directoryRow(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}
	if info != nil {
		resp.UUID = info.UUID
	}
	c.JSON(http.StatusOK, resp)
}

// directoryRow reads through the cache. Auto-registered devices have no row.
func (h *DeviceHandler) directoryRow(ctx context.Context, id string) (*models.Device, error) {
	key := cache.KeyDeviceInfo(id)

	var cached models.Device
	if found, err := h.cache.Get(key, &cached); found && err == nil {
		return &cached, nil
	}

	row, err := h.directory.FindDevice(ctx, id)
	if errors.Is(err, database.ErrDeviceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := h.cache.Set(key, row, h.cacheTTL); err != nil {
		h.log.Warn("failed to cache device info", "device_id", id, "error", err)
	}
	return row, nil
}
