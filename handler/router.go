package handler

import (
	"net/http"
	"time"

	"github.com/acbikash13/NepalPermit/middleware"
	"github.com/gin-gonic/gin"
)

// RouterConfig holds everything the HTTP surface is built from.
type RouterConfig struct {
	Permits        *PermitHandler
	Admin          *AdminHandler
	Sessions       middleware.SessionVerifier
	CookieSecure   bool
	AllowedOrigins []string
	SubmitLimiter  *middleware.RateLimiter
	LoginLimiter   *middleware.RateLimiter
	// Idempotency is optional; nil disables Idempotency-Key handling.
	Idempotency gin.HandlerFunc
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.NoStore())

	router.GET("/health", Health)

	submit := []gin.HandlerFunc{middleware.RateLimitWith(cfg.SubmitLimiter)}
	if cfg.Idempotency != nil {
		submit = append(submit, cfg.Idempotency)
	}
	submit = append(submit, cfg.Permits.Submit)

	permits := router.Group("/permits")
	{
		permits.POST("", submit...)
		permits.GET("/:key", cfg.Permits.Get)
		permits.GET("/:key/pdf", cfg.Permits.PDF)
	}

	admin := router.Group("/admin")
	{
		admin.POST("/login", middleware.RateLimitWith(cfg.LoginLimiter), cfg.Admin.Login)
		admin.POST("/logout", cfg.Admin.Logout)
		admin.GET("/check-auth", cfg.Admin.CheckAuth)
	}

	protected := admin.Group("")
	protected.Use(middleware.SessionAuth(cfg.Sessions, cfg.CookieSecure))
	{
		protected.GET("/permits", cfg.Admin.List)
		protected.GET("/permits/:key", cfg.Admin.Get)
		protected.GET("/permits/:key/pdf", cfg.Admin.PDF)
		protected.GET("/stats", cfg.Admin.Stats)
	}

	return router
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
