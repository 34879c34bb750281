package router

import (
	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/handlers"
	"github.com/gnosischain/universal-deposit/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers groups the handler set wired into the router.
type Handlers struct {
	Address *handlers.AddressHandler
	Order   *handlers.OrderHandler
	Health  *handlers.HealthHandler
}

// New builds the gin engine. Health and metrics stay outside the
// authenticated group; everything under /api/v1 requires a client key when
// keys are configured.
func New(cfg *config.Config, h Handlers, log *logrus.Logger) *gin.Engine {
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.APIKeyAuth(cfg.API.ClientKeys, log))
	{
		v1.POST("/register-address", h.Address.RegisterAddress)
		v1.GET("/address", h.Address.ResolveAddress)
		v1.GET("/orders/:id", h.Order.GetOrder)
		v1.GET("/orders", h.Order.ListOrders)
	}

	return r
}

// requestLogger logs each request at debug with the fields operators filter on.
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"ip":     c.ClientIP(),
		}).Debug("http request")
	}
}
