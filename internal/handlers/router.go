package handlers

import (
	"device-ingest/internal/middleware"
	"device-ingest/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

// Router bundles what NewRouter mounts. WebSocket may be nil; when set, /ws
// requires an admin token like the other operator routes.
type Router struct {
	Auth           *services.AuthService
	Admin          *services.AdminService
	Devices        *DeviceHandler
	Records        *RecordHandler
	Files          *FileHandler
	Transcriptions *TranscriptionHandler
	AdminAPI       *AdminHandler
	Health         *HealthHandler
	WebSocket      *WebSocketHandler
}

func NewRouter(r Router, log *slog.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.ValidationMiddleware())

	router.GET("/health", r.Health.Health)

	api := router.Group("/api")
	api.GET("/health", r.Health.Health)
	api.POST("/register", r.Devices.Register)

	device := api.Group("")
	device.Use(middleware.DeviceAuthMiddleware(r.Auth, log))
	device.POST("/data/:category", r.Records.Upload)
	device.GET("/data/:category", r.Records.List)
	device.POST("/files", r.Files.Upload)
	device.POST("/transcriptions/upload", r.Transcriptions.Upload)
	device.GET("/transcriptions/list", r.Transcriptions.List)
	device.GET("/transcriptions/stats/summary", r.Transcriptions.Summary)
	device.GET("/transcriptions/:id", r.Transcriptions.Get)
	device.DELETE("/transcriptions/:id", r.Transcriptions.Delete)
	device.GET("/device/stats", r.Devices.Stats)

	api.POST("/admin/token", r.AdminAPI.IssueToken)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(r.Admin, log))
	admin.GET("/devices", r.Devices.ListDevices)
	admin.GET("/devices/:id", r.Devices.GetDevice)

	if r.WebSocket != nil {
		router.GET("/ws", middleware.AdminAuthMiddleware(r.Admin, log), r.WebSocket.HandleConnections)
	}

	return router
}

// authContext fetches what DeviceAuthMiddleware stored. A route mounted
// without the middleware gets a 401 instead of a nil dereference.
func authContext(c *gin.Context, log *slog.Logger) (*services.AuthContext, bool) {
	ac, ok := middleware.GetAuthContext(c)
	if !ok || ac == nil {
		log.Error("device route reached without auth context", "path", c.FullPath())
		middleware.RespondError(c, services.ErrUnauthorized, log)
		return nil, false
	}
	return ac, true
}
