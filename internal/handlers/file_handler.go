package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"device-ingest/internal/middleware"
	"device-ingest/internal/partition"
	"device-ingest/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

var fileTypeDirs = map[string]string{
	"image":    "images",
	"document": "documents",
	"video":    "videos",
	"audio":    "audio",
	"archive":  "archives",
}

// storageDir maps a declared file type onto its directory; unknown types are
// stored with documents.
func storageDir(fileType string) string {
	if dir, ok := fileTypeDirs[fileType]; ok {
		return dir
	}
	return "documents"
}

// safeName strips any directory part so a client cannot write outside its
// own upload directory.
func safeName(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return "upload"
	}
	return name
}

// uploadStore lays files out as {root}/{deviceID}/{dir}/{filename}.
type uploadStore struct {
	root     string
	maxBytes int64
}

// formFile reads one multipart file field, capping the request body.
func (s uploadStore) formFile(c *gin.Context, field string) (*multipart.FileHeader, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBytes)
	file, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &services.Error{Kind: services.KindInvalidRecord, Message: "file exceeds upload limit"}
		}
		return nil, &services.Error{Kind: services.KindInvalidRecord, Message: "file is required"}
	}
	return file, nil
}

// save writes file and returns its directory and path relative to root.
func (s uploadStore) save(c *gin.Context, file *multipart.FileHeader, deviceID, dir, filename string) (relDir, relPath string, err error) {
	relDir = filepath.Join(deviceID, dir)
	if err := os.MkdirAll(filepath.Join(s.root, relDir), 0o755); err != nil {
		return "", "", fmt.Errorf("creating upload dir: %w", err)
	}
	relPath = filepath.Join(relDir, filename)
	if err := c.SaveUploadedFile(file, filepath.Join(s.root, relPath)); err != nil {
		return "", "", fmt.Errorf("saving upload: %w", err)
	}
	return relDir, relPath, nil
}

func (s uploadStore) remove(relPath string) error {
	err := os.Remove(filepath.Join(s.root, relPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type FileHandler struct {
	records RecordStore
	store   uploadStore
	now     func() time.Time
	log     *slog.Logger
}

func NewFileHandler(records RecordStore, uploadDir string, maxBytes int64, log *slog.Logger) *FileHandler {
	return &FileHandler{
		records: records,
		store:   uploadStore{root: uploadDir, maxBytes: maxBytes},
		now:     time.Now,
		log:     log.With("component", "file_handler"),
	}
}

// Upload stores one file for the calling device and logs a fileEvents record
// @Summary Upload a file
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Security DeviceAuth
// @Param file formData file true "File"
// @Param fileType formData string true "image, document, video, audio or archive"
// @Param originalName formData string false "Original file name"
// @Success 200 {object} FileResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	ac, ok := authContext(c, h.log)
	if !ok {
		return
	}

	file, err := h.store.formFile(c, "file")
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}
	fileType := c.PostForm("fileType")
	if fileType == "" {
		middleware.RespondError(c, &services.Error{Kind: services.KindInvalidRecord, Message: "fileType is required"}, h.log)
		return
	}

	name := c.PostForm("originalName")
	if name == "" {
		name = file.Filename
	}

	now := h.now()
	filename := fmt.Sprintf("%d_%s", now.UnixMilli(), safeName(name))
	relDir, relPath, err := h.store.save(c, file, ac.DeviceID, storageDir(fileType), filename)
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	_, err = h.records.Upload(c.Request.Context(), ac.DeviceID, partition.FileEvents, []map[string]any{{
		"filename":      filename,
		"eventType":     "UPLOADED",
		"directoryPath": relDir,
		"timestamp":     now.UnixMilli(),
	}})
	if err != nil {
		middleware.RespondError(c, err, h.log)
		return
	}

	h.log.Info("file uploaded", "device_id", ac.DeviceID, "filename", filename, "size", file.Size)
	c.JSON(http.StatusOK, FileResponse{
		Success:  true,
		Filename: filename,
		Path:     relPath,
		Size:     file.Size,
	})
}
