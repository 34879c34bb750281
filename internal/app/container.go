package app

import (
	"context"
	"fmt"

	"github.com/gnosischain/universal-deposit/internal/cache"
	"github.com/gnosischain/universal-deposit/internal/chain"
	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/db"
	"github.com/gnosischain/universal-deposit/internal/handlers"
	"github.com/gnosischain/universal-deposit/internal/queue"
	"github.com/gnosischain/universal-deposit/internal/repository"
	"github.com/gnosischain/universal-deposit/internal/router"
	"github.com/gnosischain/universal-deposit/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container wires every component of the process together. One container can
// run the full pipeline or any subset selected by the service toggles.
type Container struct {
	Config *config.Config
	Log    *logrus.Logger

	DB     *gorm.DB
	Cache  *cache.Cache
	Queue  *queue.Client
	Chains *chain.Registry

	Orders    repository.OrderRepository
	Publisher *queue.Publisher

	Watcher      *services.BalanceWatcher
	DeployWorker *services.DeployWorker
	SettleWorker *services.SettleWorker
	Recovery     *services.RecoveryService

	Router *gin.Engine
}

// New connects the infrastructure and builds all services. Infrastructure
// failures are fatal here: a process that cannot reach its database, cache or
// broker has nothing useful to do.
func New(cfg *config.Config, log *logrus.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	c.DB = database

	addressCache, err := cache.New(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.Cache = addressCache

	broker, err := queue.Connect(&cfg.RabbitMQ, log)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	c.Queue = broker

	c.Chains = chain.NewRegistry(cfg, log)
	c.Orders = repository.NewOrderRepository(database)
	c.Publisher = queue.NewPublisher(broker, log)

	watcher, err := services.NewBalanceWatcher(addressCache, c.Orders, c.Publisher, c.Chains, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("balance watcher: %w", err)
	}
	c.Watcher = watcher
	c.DeployWorker = services.NewDeployWorker(broker, c.Orders, c.Publisher, c.Chains, addressCache, cfg, log)
	c.SettleWorker = services.NewSettleWorker(broker, c.Orders, c.Publisher, c.Chains, addressCache, cfg, log)
	c.Recovery = services.NewRecoveryService(c.Orders, c.Publisher, log)

	c.Router = router.New(cfg, router.Handlers{
		Address: handlers.NewAddressHandler(cfg, addressCache, c.Chains, log),
		Order:   handlers.NewOrderHandler(c.Orders, log),
		Health:  handlers.NewHealthHandler(cfg, database, addressCache, broker, c.Chains, log),
	}, log)

	return c, nil
}

// enabledServices resolves the toggles. When none is enabled the process runs
// everything, so the zero-value config is the all-in-one deployment.
func (c *Container) enabledServices() config.ServicesConfig {
	s := c.Config.Services
	if !s.API && !s.Watcher && !s.DeployWorker && !s.SettleWorker {
		return config.ServicesConfig{API: true, Watcher: true, DeployWorker: true, SettleWorker: true}
	}
	return s
}

// APIEnabled reports whether this process serves the HTTP API.
func (c *Container) APIEnabled() bool {
	return c.enabledServices().API
}

// StartServices starts the selected background services. Consumers come up
// before the recovery sweep so republished jobs are picked up immediately.
func (c *Container) StartServices(ctx context.Context) error {
	enabled := c.enabledServices()

	if enabled.DeployWorker {
		c.DeployWorker.Start()
	}
	if enabled.SettleWorker {
		c.SettleWorker.Start()
	}
	if enabled.DeployWorker || enabled.SettleWorker {
		if err := c.Recovery.Run(ctx); err != nil {
			return err
		}
	}
	if enabled.Watcher {
		c.Watcher.Start()
	}

	c.Log.WithFields(logrus.Fields{
		"api":           enabled.API,
		"watcher":       enabled.Watcher,
		"deploy_worker": enabled.DeployWorker,
		"settle_worker": enabled.SettleWorker,
	}).Info("services started")
	return nil
}

// StopServices stops background services in reverse dependency order: the
// watcher first so no new orders enter, then the workers drain in-flight jobs.
func (c *Container) StopServices() {
	enabled := c.enabledServices()
	if enabled.Watcher {
		c.Watcher.Stop()
	}
	if enabled.DeployWorker {
		c.DeployWorker.Stop()
	}
	if enabled.SettleWorker {
		c.SettleWorker.Stop()
	}
}

// Close releases infrastructure connections.
func (c *Container) Close() {
	if c.Queue != nil {
		c.Queue.Close()
	}
	if c.Chains != nil {
		c.Chains.Close()
	}
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
