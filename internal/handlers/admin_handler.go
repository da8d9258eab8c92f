package handlers

import (
	"net/http"

	"device-ingest/internal/middleware"
	"device-ingest/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

type AdminHandler struct {
	admin *services.AdminService
	log   *slog.Logger
}

func NewAdminHandler(admin *services.AdminService, log *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log.With("component", "admin_handler")}
}

// IssueToken exchanges the operator API key for an admin JWT
// @Summary Issue admin token
// @Tags admin
// @Produce json
// @Param X-API-Key header string true "Operator API key"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/admin/token [post]
func (h *AdminHandler) IssueToken(c *gin.Context) {
	token, expiresAt, err := h.admin.IssueToken(c.GetHeader("X-API-Key"))
	if err != nil {
		h.log.Warn("admin token refused", "client_ip", c.ClientIP())
		middleware.RespondError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Success: true, Token: token, ExpiresAt: expiresAt})
}
