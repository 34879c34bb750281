package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gnosischain/universal-deposit/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CachePinger is the cache surface the health endpoint reads.
type CachePinger interface {
	Ping(ctx context.Context) error
	HeartbeatFresh(ctx context.Context, service string) bool
}

// BrokerPinger reports broker connectivity.
type BrokerPinger interface {
	Ping() error
}

// ChainProber probes RPC liveness for one chain.
type ChainProber interface {
	BlockNumber(ctx context.Context, chainID int64) (uint64, error)
}

// watchedServices are the background services whose heartbeats the health
// endpoint reports. The names match the heartbeat keys the services write.
var watchedServices = []string{"balance-watcher", "deploy-worker", "settle-worker"}

// HealthHandler aggregates component health for load balancers and operators.
type HealthHandler struct {
	cfg    *config.Config
	db     *gorm.DB
	cache  CachePinger
	broker BrokerPinger
	chains ChainProber
	logger *logrus.Logger
}

// NewHealthHandler creates a HealthHandler instance.
func NewHealthHandler(cfg *config.Config, db *gorm.DB, cache CachePinger, broker BrokerPinger, chains ChainProber, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, cache: cache, broker: broker, chains: chains, logger: logger}
}

// Health handles GET /health. Degraded components flip the status and the
// response code to 503 so orchestrators stop routing, but the body always
// lists every component for diagnosis.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error: " + err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "error: " + err.Error()
		healthy = false
	}
	components["database"] = dbStatus

	redisStatus := "ok"
	if err := h.cache.Ping(ctx); err != nil {
		redisStatus = "error: " + err.Error()
		healthy = false
	}
	components["redis"] = redisStatus

	brokerStatus := "ok"
	if err := h.broker.Ping(); err != nil {
		brokerStatus = "error: " + err.Error()
		healthy = false
	}
	components["broker"] = brokerStatus

	chainStatus := gin.H{}
	for name, network := range h.cfg.Networks {
		if !network.Enabled {
			continue
		}
		if block, err := h.chains.BlockNumber(ctx, network.ChainID); err != nil {
			// Chain RPC issues are retryable by the workers; degraded RPCs do
			// not flip the overall status.
			chainStatus[name] = "error: " + err.Error()
		} else {
			chainStatus[name] = block
		}
	}
	components["chains"] = chainStatus

	heartbeats := gin.H{}
	for _, service := range watchedServices {
		if h.cache.HeartbeatFresh(ctx, service) {
			heartbeats[service] = "alive"
		} else {
			// Stale is informational only: this process may simply not be
			// running that service.
			heartbeats[service] = "stale"
		}
	}
	components["heartbeats"] = heartbeats

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.logger.WithField("components", components).Warn("health check degraded")
	}

	c.JSON(code, gin.H{
		"status":     status,
		"service":    "universal-deposit",
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
