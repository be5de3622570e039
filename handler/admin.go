package handler

import (
	"net/http"
	"time"

	"github.com/acbikash13/NepalPermit/config"
	"github.com/acbikash13/NepalPermit/middleware"
	"github.com/acbikash13/NepalPermit/pkg/logger"
	"github.com/acbikash13/NepalPermit/service"
	"github.com/gin-gonic/gin"
)

// Sessions issues and checks admin sessions.
type Sessions interface {
	middleware.SessionVerifier
	Login(username, password string) (string, time.Time, error)
	Lifetime() time.Duration
}

// AdminHandler serves the admin login and permit review endpoints.
type AdminHandler struct {
	sessions     Sessions
	permits      PermitReader
	cookieSecure bool
}

func NewAdminHandler(sessions Sessions, permits PermitReader, server *config.ServerConfig) *AdminHandler {
	return &AdminHandler{sessions: sessions, permits: permits, cookieSecure: server.CookieSecure}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Success   bool   `json:"success"`
	Username  string `json:"username"`
	ExpiresAt string `json:"expiresAt"`
}

// Login handles POST /admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "Invalid request")
		return
	}

	token, expiresAt, err := h.sessions.Login(req.Username, req.Password)
	if err != nil {
		logger.Warn(c.Request.Context(), "admin login failed", "username", req.Username)
		respondError(c, err, "Authentication failed")
		return
	}

	middleware.SetSessionCookie(c, token, h.sessions.Lifetime(), h.cookieSecure)
	logger.Info(c.Request.Context(), "admin logged in", "username", req.Username)

	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Username:  req.Username,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout handles POST /admin/logout
func (h *AdminHandler) Logout(c *gin.Context) {
	middleware.ClearSessionCookie(c, h.cookieSecure)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CheckAuth handles GET /admin/check-auth
func (h *AdminHandler) CheckAuth(c *gin.Context) {
	username, err := middleware.Authenticate(c, h.sessions, h.cookieSecure)
	if err != nil {
		respondError(c, err, "Authentication check failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      username,
	})
}

// List handles GET /admin/permits
func (h *AdminHandler) List(c *gin.Context) {
	permits, err := h.permits.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch permits")
		return
	}

	c.JSON(http.StatusOK, permits)
}

// Get handles GET /admin/permits/:key
func (h *AdminHandler) Get(c *gin.Context) {
	permit, err := h.permits.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, "Failed to fetch permit details")
		return
	}

	c.JSON(http.StatusOK, permit)
}

// PDF handles GET /admin/permits/:key/pdf
func (h *AdminHandler) PDF(c *gin.Context) {
	servePDF(c, h.permits)
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.permits.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch statistics")
		return
	}

	c.JSON(http.StatusOK, stats)
}

var _ Sessions = (*service.SessionManager)(nil)
