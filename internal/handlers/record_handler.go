package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"device-ingest/internal/middleware"
	"device-ingest/internal/partition"
	"device-ingest/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

// RecordStore is the record service as seen by HTTP handlers.
type RecordStore interface {
	Upload(ctx context.Context, identity string, c partition.Category, items []map[string]any) (int, error)
	List(ctx context.Context, identity string, c partition.Category, q services.Query) (services.Page, error)
}

type RecordHandler struct {
	records RecordStore
	log     *slog.Logger
}

func NewRecordHandler(records RecordStore, log *slog.Logger) *RecordHandler {
	return &RecordHandler{records: records, log: log.With("component", "record_handler")}
}

// Upload stores a batch of records for the calling device
// @Summary Upload records
// @Tags data
// @Accept json
// @Produce json
// @Security DeviceAuth
// @Param category path string true "Record category"
// @Param request body UploadRequest true "Records"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/data/{category} [post]
func (h *RecordHandler) Upload(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}

	category, err := partition.ParseCategory(c.Param("category"))
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, &services.Error{Kind: services.KindInvalidRecord, Message: "body must be {\"data\": [...]}"}, h.log)
		return
	}

	n, err := h.records.Upload(c.Request.Context(), ac.DeviceID, category, req.Data)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Success: true,
		Count:   n,
		Message: fmt.Sprintf("%d %s records uploaded", n, category),
	})
}

// List returns a page of the calling device's records
// @Summary List records
// @Tags data
// @Produce json
// @Security DeviceAuth
// @Param category path string true "Record category"
// @Param page query int false "Page, from 1"
// @Param limit query int false "Page size"
// @Param uploaded query bool false "Filter on the uploaded flag"
// @Success 200 {object} ListResponse
// @Router /api/data/{category} [get]
func (h *RecordHandler) List(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}

	category, err := partition.ParseCategory(c.Param("category"))
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	page, err := h.records.List(c.Request.Context(), ac.DeviceID, category, parseQuery(c))
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Success: true, Data: page.Data, Pagination: page.Pagination})
}

// parseQuery ignores malformed values; the service applies defaults.
func parseQuery(c *gin.Context) services.Query {
	var q services.Query
	q.Page, _ = strconv.Atoi(c.Query("page"))
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	if v, err := strconv.ParseBool(c.Query("uploaded")); err == nil {
		q.Uploaded = &v
	}
	return q
}
