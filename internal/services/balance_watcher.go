package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gnosischain/universal-deposit/internal/cache"
	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/metrics"
	"github.com/gnosischain/universal-deposit/internal/models"
	"github.com/gnosischain/universal-deposit/internal/utils"

	"github.com/sirupsen/logrus"
)

// BalanceWatcher converts on-chain deposits into orders, exactly once per
// nonce. A single loop goroutine runs ticks back to back, so two ticks can
// never overlap; within a tick all addresses are checked concurrently and one
// address's failure never aborts the others.
type BalanceWatcher struct {
	cache  AddressCache
	orders OrderStore
	pub    JobPublisher
	chains ChainService
	cfg    *config.Config
	log    *logrus.Logger

	minAmount *big.Int
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewBalanceWatcher creates a BalanceWatcher instance.
func NewBalanceWatcher(addressCache AddressCache, orders OrderStore, pub JobPublisher, chains ChainService, cfg *config.Config, log *logrus.Logger) (*BalanceWatcher, error) {
	minAmount, ok := new(big.Int).SetString(cfg.Watcher.MinBridgeAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid watcher.min_bridge_amount: %q", cfg.Watcher.MinBridgeAmount)
	}
	return &BalanceWatcher{
		cache:     addressCache,
		orders:    orders,
		pub:       pub,
		chains:    chains,
		cfg:       cfg,
		log:       log,
		minAmount: minAmount,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start launches the poll loop and the heartbeat.
func (w *BalanceWatcher) Start() {
	w.log.WithFields(logrus.Fields{
		"interval":   w.cfg.WatcherInterval(),
		"min_amount": w.minAmount.String(),
	}).Info("balance watcher starting")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		runHeartbeat(w.cache, "balance-watcher", w.cfg.HeartbeatInterval(), w.stopChan, w.log)
	}()

	w.wg.Add(1)
	go w.loop()
}

// Stop terminates the poll loop and waits for the in-flight tick.
func (w *BalanceWatcher) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	w.log.Info("balance watcher stopped")
}

func (w *BalanceWatcher) loop() {
	defer w.wg.Done()

	w.runTick(context.Background())
	ticker := time.NewTicker(w.cfg.WatcherInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Processing inline on the loop goroutine; a slow tick delays the
			// next one instead of overlapping it.
			w.runTick(context.Background())
		case <-w.stopChan:
			return
		}
	}
}

// runTick scans all cached addresses concurrently.
func (w *BalanceWatcher) runTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.WatcherTickDuration.Observe(time.Since(start).Seconds())
	}()

	addrs, err := w.cache.ListUDAAddresses(ctx)
	if err != nil {
		w.log.WithError(err).Error("balance watcher: failed to list cached addresses")
		return
	}
	if len(addrs) == 0 {
		w.log.Debug("balance watcher: no active cached addresses")
		return
	}

	w.log.WithField("count", len(addrs)).Debug("balance watcher: scanning cached addresses")

	var tick sync.WaitGroup
	for _, addr := range addrs {
		tick.Add(1)
		go func(address string) {
			defer tick.Done()
			w.processAddress(ctx, address)
		}(addr)
	}
	tick.Wait()
}

// processAddress runs the detection algorithm for one address. Errors are
// logged and swallowed here so one bad address cannot poison the tick.
func (w *BalanceWatcher) processAddress(ctx context.Context, address string) {
	metrics.WatcherAddressesScanned.Inc()
	logger := w.log.WithField("uda", address)

	rec, err := w.cache.GetUDA(ctx, address)
	if err != nil {
		logger.WithError(err).Error("balance watcher: failed to read cache record")
		return
	}
	if rec == nil {
		// Record expired; the index entry is stale. Prune and move on.
		if err := w.cache.PruneUDA(ctx, address); err != nil {
			logger.WithError(err).Warn("balance watcher: failed to prune stale index entry")
		}
		return
	}

	srcToken, err := w.chains.USDCAddress(rec.SourceChainID)
	if err != nil {
		logger.WithError(err).WithField("chain_id", rec.SourceChainID).Warn("balance watcher: source token not configured")
		return
	}
	destToken, err := w.chains.USDCAddress(rec.DestinationChainID)
	if err != nil {
		logger.WithError(err).WithField("chain_id", rec.DestinationChainID).Warn("balance watcher: destination token not configured")
		return
	}

	balance, err := w.chains.TokenBalance(ctx, rec.SourceChainID, srcToken.Hex(), rec.UniversalAddress)
	if err != nil {
		logger.WithError(err).Error("balance watcher: balance read failed")
		return
	}

	// Observability only; detection never reads this back.
	if err := w.cache.UpdateUDAState(ctx, rec.UniversalAddress, cache.UDAStateUpdate{LastDetectedBalance: balance}); err != nil {
		logger.WithError(err).Warn("balance watcher: failed to persist detected balance")
	}

	if balance.Cmp(w.minAmount) < 0 {
		logger.WithFields(logrus.Fields{
			"balance": balance.String(),
			"min":     w.minAmount.String(),
		}).Debug("balance watcher: balance below threshold")
		return
	}

	nonce, err := w.chains.AccountNonce(ctx, rec.SourceChainID, rec.UniversalAddress)
	if err != nil {
		logger.WithError(err).Error("balance watcher: nonce read failed")
		return
	}

	// Idempotency guard: this funding cycle already became an order.
	if rec.LastProcessedNonce == nonce {
		logger.WithField("nonce", nonce).Debug("balance watcher: nonce already processed")
		return
	}

	orderID := utils.GenerateOrderID(utils.OrderIDParams{
		UniversalAddress:        rec.UniversalAddress,
		OwnerAddress:            rec.OwnerAddress,
		RecipientAddress:        rec.RecipientAddress,
		DestinationTokenAddress: destToken.Hex(),
		DestinationChainID:      rec.DestinationChainID,
		Nonce:                   nonce,
	})

	order := &models.Order{
		ID:                      orderID,
		UniversalAddress:        rec.UniversalAddress,
		SourceChainID:           rec.SourceChainID,
		DestinationChainID:      rec.DestinationChainID,
		OwnerAddress:            rec.OwnerAddress,
		RecipientAddress:        rec.RecipientAddress,
		SourceTokenAddress:      srcToken.Hex(),
		DestinationTokenAddress: destToken.Hex(),
		Nonce:                   nonce,
		Amount:                  balance.String(),
		Status:                  models.OrderStatusCreated,
		Message:                 strPtr("created by balance watcher"),
	}
	if rec.ClientID != "" {
		order.ClientID = strPtr(rec.ClientID)
	}

	if _, err := w.orders.Ensure(ctx, order); err != nil {
		logger.WithError(err).Error("balance watcher: order create failed")
		return
	}
	metrics.OrdersCreated.Inc()

	if err := w.pub.EnqueueDeploy(ctx, orderID); err != nil {
		// The order row exists; recovery will republish it on next start, and
		// the unchanged cached nonce makes the next tick retry harmlessly.
		logger.WithError(err).Error("balance watcher: deploy publish failed")
		return
	}

	if err := w.cache.UpdateUDAState(ctx, rec.UniversalAddress, cache.UDAStateUpdate{LastProcessedNonce: &nonce}); err != nil {
		logger.WithError(err).Error("balance watcher: failed to persist processed nonce")
		return
	}

	logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"nonce":    nonce,
		"amount":   balance.String(),
	}).Info("balance watcher: order created and enqueued")
}
