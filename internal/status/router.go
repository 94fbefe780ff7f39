package status

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
	"github.com/eternisai/groupspend-sync/internal/logger"
)

// RouterConfig configures the status router.
type RouterConfig struct {
	AllowedOrigins []string
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// NewRouter registers every route and wraps the engine with CORS.
func NewRouter(h *Handler, log *logger.Logger, cfg RouterConfig) http.Handler {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	sess := router.Group("/session")
	{
		sess.GET("", h.GetSession)
		sess.POST("/login", h.Login)
		sess.POST("/register", h.Register)
		sess.DELETE("", h.Logout)
	}

	router.PUT("/profile", h.UpdateProfile)
	router.PUT("/profile/password", h.ChangePassword)
	router.GET("/unread", h.Unread)
	router.POST("/acknowledge/:kind", h.Acknowledge)

	invites := router.Group("/invites")
	{
		invites.GET("", h.ListInvites)
		invites.POST("/:token/accept", h.AcceptInvite)
	}

	notes := router.Group("/notifications")
	{
		notes.GET("", h.ListNotifications)
		notes.POST("/read-all", h.MarkAllRead)
		notes.POST("/:id/read", h.MarkRead)
	}

	alerts := router.Group("/alerts")
	{
		alerts.GET("", h.ListAlerts)
		alerts.DELETE("/:id", h.DismissAlert)
	}

	router.NoRoute(func(c *gin.Context) {
		apperrors.AbortWithNotFound(c, "route not found", map[string]interface{}{
			"path": c.Request.URL.Path,
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(router)
}

// RequestLogger tags each request with an id and logs it on completion.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("status_http")

	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		log.WithContext(c.Request.Context()).Debug("request handled",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}
