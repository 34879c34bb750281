package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/metrics"
	"github.com/gnosischain/universal-deposit/internal/models"
	"github.com/gnosischain/universal-deposit/internal/queue"
	"github.com/gnosischain/universal-deposit/internal/repository"

	"github.com/sirupsen/logrus"
)

// DeployWorker ensures the universal deposit account's on-chain proxy exists,
// then hands the order to settlement. Only CREATED orders are acted on; any
// other status acks and skips, which makes duplicate and stale deliveries
// harmless.
type DeployWorker struct {
	client queueChannels
	orders OrderStore
	pub    JobPublisher
	chains ChainService
	cache  AddressCache
	cfg    *config.Config
	log    *logrus.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDeployWorker creates a DeployWorker instance.
func NewDeployWorker(client queueChannels, orders OrderStore, pub JobPublisher, chains ChainService, addressCache AddressCache, cfg *config.Config, log *logrus.Logger) *DeployWorker {
	return &DeployWorker{
		client:   client,
		orders:   orders,
		pub:      pub,
		chains:   chains,
		cache:    addressCache,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start launches the consumer and heartbeat.
func (w *DeployWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		runHeartbeat(w.cache, "deploy-worker", w.cfg.HeartbeatInterval(), w.stopChan, w.log)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumeLoop(w.client, queue.QueueDeploy, "deploy-worker", w.cfg.Workers.DeployPrefetch, w.processJob, w.stopChan, w.log)
	}()

	w.log.Info("deploy worker started")
}

// Stop terminates the consumer loop.
func (w *DeployWorker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	w.log.Info("deploy worker stopped")
}

// processJob runs one deploy attempt. Every branch returns after arranging
// either a state transition, a retry publish or a deliberate drop; the
// delivery is acked by the caller in all cases.
func (w *DeployWorker) processJob(ctx context.Context, payload *queue.JobPayload) {
	logger := w.log.WithField("order_id", payload.OrderID)

	order, err := w.orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		logger.WithError(err).Error("deploy worker: order lookup failed")
		w.retryOrFail(ctx, payload.OrderID, payload.Attempt, fmt.Sprintf("order lookup failed: %v", err))
		return
	}
	if order == nil {
		// Cannot be processed and cannot be re-created safely.
		metrics.MessagesDropped.WithLabelValues("deploy", "missing_order").Inc()
		logger.Warn("deploy worker: order not found, dropping")
		return
	}
	if order.Status != models.OrderStatusCreated {
		logger.WithField("status", order.Status).Debug("deploy worker: skip non-CREATED order")
		return
	}

	deployed, err := w.chains.HasCode(ctx, order.SourceChainID, order.UniversalAddress)
	if err != nil {
		logger.WithError(err).Error("deploy worker: bytecode probe failed")
		w.retryOrFail(ctx, order.ID, payload.Attempt, fmt.Sprintf("bytecode probe failed: %v", err))
		return
	}
	if deployed {
		// Already on chain, e.g. a previous attempt whose confirmation was
		// lost. Advance and hand off.
		w.markDeployed(ctx, order, "", "proxy already deployed")
		return
	}

	txHash, err := w.chains.DeployProxy(ctx, order.SourceChainID, order.OwnerAddress, order.RecipientAddress, order.DestinationChainID)
	if err != nil {
		logger.WithError(err).Warn("deploy worker: deployment attempt failed")
		w.retryOrFail(ctx, order.ID, payload.Attempt, fmt.Sprintf("deployment failed: %v", err))
		return
	}

	// Confirm the proxy is actually visible before advancing.
	deployedNow, err := w.chains.HasCode(ctx, order.SourceChainID, order.UniversalAddress)
	if err != nil || !deployedNow {
		logger.WithError(err).WithField("tx_hash", txHash).Warn("deploy worker: deployment not visible yet")
		w.retryOrFail(ctx, order.ID, payload.Attempt, "deployment confirmed but bytecode not visible")
		return
	}

	w.markDeployed(ctx, order, txHash, fmt.Sprintf("proxy deployed in tx %s", txHash))
}

// markDeployed advances CREATED -> DEPLOYED and publishes the settle job.
func (w *DeployWorker) markDeployed(ctx context.Context, order *models.Order, txHash, message string) {
	logger := w.log.WithField("order_id", order.ID)

	patch := &repository.StatusPatch{Message: strPtr(message)}
	if txHash != "" {
		patch.TransactionHash = strPtr(txHash)
	}
	if err := w.orders.UpdateStatus(ctx, order.ID, models.OrderStatusDeployed, patch); err != nil {
		// A concurrent worker may have advanced the order already; that shows
		// up as an invalid transition and is a harmless skip.
		logger.WithError(err).Warn("deploy worker: status update skipped")
		return
	}

	if err := w.pub.EnqueueSettle(ctx, order.ID); err != nil {
		// Recovery republishes DEPLOYED orders at next start.
		logger.WithError(err).Error("deploy worker: settle publish failed")
		return
	}

	logger.WithFields(logrus.Fields{"uda": order.UniversalAddress, "tx_hash": txHash}).Info("deploy worker: order deployed, settle enqueued")
}

// retryOrFail schedules the next ladder tier or, past the ceiling, marks the
// order FAILED with a diagnostic message.
func (w *DeployWorker) retryOrFail(ctx context.Context, orderID string, prevAttempt int, reason string) {
	attempt := prevAttempt + 1
	if attempt <= w.cfg.Workers.MaxAttempts {
		if err := w.pub.EnqueueDeployRetry(ctx, orderID, attempt); err != nil {
			w.log.WithError(err).WithField("order_id", orderID).Error("deploy worker: retry publish failed")
		}
		return
	}

	msg := fmt.Sprintf("proxy not deployed after %d attempts: %s", prevAttempt, reason)
	patch := &repository.StatusPatch{Message: strPtr(msg), Retries: intPtr(prevAttempt)}
	if err := w.orders.UpdateStatus(ctx, orderID, models.OrderStatusFailed, patch); err != nil {
		w.log.WithError(err).WithField("order_id", orderID).Error("deploy worker: failed-status update failed")
		return
	}
	metrics.OrdersFailed.WithLabelValues("deploy_retries_exhausted").Inc()
	w.log.WithFields(logrus.Fields{"order_id": orderID, "attempts": prevAttempt}).Error("deploy worker: retries exhausted, order failed")
}
