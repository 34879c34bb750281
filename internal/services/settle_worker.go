package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/metrics"
	"github.com/gnosischain/universal-deposit/internal/models"
	"github.com/gnosischain/universal-deposit/internal/queue"
	"github.com/gnosischain/universal-deposit/internal/repository"

	"github.com/sirupsen/logrus"
)

// bridgeExplorerURL is where operators trace a LayerZero settlement.
const bridgeExplorerURL = "https://layerzeroscan.com/tx/"

// SettleWorker executes the cross-chain settlement moving funds from the
// universal deposit account to the destination chain. Only DEPLOYED orders
// are acted on.
type SettleWorker struct {
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

// NewSettleWorker creates a SettleWorker instance.
func NewSettleWorker(client queueChannels, orders OrderStore, pub JobPublisher, chains ChainService, addressCache AddressCache, cfg *config.Config, log *logrus.Logger) *SettleWorker {
	return &SettleWorker{
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
func (w *SettleWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		runHeartbeat(w.cache, "settle-worker", w.cfg.HeartbeatInterval(), w.stopChan, w.log)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumeLoop(w.client, queue.QueueSettle, "settle-worker", w.cfg.Workers.SettlePrefetch, w.processJob, w.stopChan, w.log)
	}()

	w.log.Info("settle worker started")
}

// Stop terminates the consumer loop.
func (w *SettleWorker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	w.log.Info("settle worker stopped")
}

// processJob runs one settlement attempt.
func (w *SettleWorker) processJob(ctx context.Context, payload *queue.JobPayload) {
	logger := w.log.WithField("order_id", payload.OrderID)

	order, err := w.orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		logger.WithError(err).Error("settle worker: order lookup failed")
		w.retryOrFail(ctx, payload.OrderID, payload.Attempt, fmt.Sprintf("order lookup failed: %v", err))
		return
	}
	if order == nil {
		metrics.MessagesDropped.WithLabelValues("settle", "missing_order").Inc()
		logger.Warn("settle worker: order not found, dropping")
		return
	}
	if order.Status != models.OrderStatusDeployed {
		logger.WithField("status", order.Status).Debug("settle worker: skip non-DEPLOYED order")
		return
	}

	srcToken, err := w.chains.USDCAddress(order.SourceChainID)
	if err != nil {
		logger.WithError(err).Warn("settle worker: source token not configured")
		w.retryOrFail(ctx, order.ID, payload.Attempt, fmt.Sprintf("source token not configured: %v", err))
		return
	}

	// Re-read the live balance; the detected funds may already have moved.
	balance, err := w.chains.TokenBalance(ctx, order.SourceChainID, srcToken.Hex(), order.UniversalAddress)
	if err != nil {
		logger.WithError(err).Error("settle worker: balance read failed")
		w.retryOrFail(ctx, order.ID, payload.Attempt, fmt.Sprintf("balance read failed: %v", err))
		return
	}
	if balance.Sign() == 0 {
		patch := &repository.StatusPatch{Message: strPtr("zero balance at settlement time, nothing to settle")}
		if err := w.orders.UpdateStatus(ctx, order.ID, models.OrderStatusCompleted, patch); err != nil {
			logger.WithError(err).Warn("settle worker: zero-balance completion skipped")
			return
		}
		metrics.OrdersCompleted.Inc()
		logger.Info("settle worker: zero balance, order completed without settlement")
		return
	}

	feeToken, err := w.chains.FeeTokenAddress(order.SourceChainID)
	if err != nil {
		logger.WithError(err).Warn("settle worker: fee token not configured")
		w.retryOrFail(ctx, order.ID, payload.Attempt, fmt.Sprintf("fee token not configured: %v", err))
		return
	}

	amount, ok := new(big.Int).SetString(order.Amount, 10)
	if !ok {
		// Should be impossible for rows this engine wrote.
		metrics.MessagesDropped.WithLabelValues("settle", "bad_amount").Inc()
		logger.WithField("amount", order.Amount).Error("settle worker: unreadable order amount, dropping")
		return
	}

	slippage := int64(w.cfg.Workers.SlippageBps)
	fee, err := w.chains.QuoteBridgeFee(ctx, order.SourceChainID, order.UniversalAddress, amount, feeToken.Hex(), slippage)
	if err != nil {
		logger.WithError(err).Warn("settle worker: fee quote failed")
		w.retryOrFail(ctx, order.ID, payload.Attempt, fmt.Sprintf("fee quote failed: %v", err))
		return
	}
	logger.WithField("fee", fee.String()).Debug("settle worker: obtained fee quote")

	txHash, err := w.chains.SettleOrder(ctx, order.SourceChainID, order.UniversalAddress, srcToken.Hex(), slippage, fee)
	if err != nil {
		logger.WithError(err).Warn("settle worker: settlement attempt failed")
		w.retryOrFail(ctx, order.ID, payload.Attempt, fmt.Sprintf("settlement failed: %v", err))
		return
	}

	patch := &repository.StatusPatch{
		TransactionHash:      strPtr(txHash),
		BridgeTransactionURL: strPtr(bridgeExplorerURL + txHash),
		Message:              strPtr(fmt.Sprintf("settlement executed in tx %s", txHash)),
	}
	if err := w.orders.UpdateStatus(ctx, order.ID, models.OrderStatusCompleted, patch); err != nil {
		logger.WithError(err).Warn("settle worker: completion update skipped")
		return
	}
	metrics.OrdersCompleted.Inc()
	logger.WithFields(logrus.Fields{"tx_hash": txHash, "amount": balance.String()}).Info("settle worker: settlement executed")
}

// retryOrFail schedules the next ladder tier or, past the ceiling, marks the
// order FAILED and parks it in the residual ladder. Funds are already sitting
// on the source-chain proxy, so the order is worth another look hours later
// even after normal retries ran out.
func (w *SettleWorker) retryOrFail(ctx context.Context, orderID string, prevAttempt int, reason string) {
	attempt := prevAttempt + 1
	if attempt <= w.cfg.Workers.MaxAttempts {
		if err := w.pub.EnqueueSettleRetry(ctx, orderID, attempt); err != nil {
			w.log.WithError(err).WithField("order_id", orderID).Error("settle worker: retry publish failed")
		}
		return
	}

	msg := fmt.Sprintf("settlement failed after %d attempts: %s", prevAttempt, reason)
	patch := &repository.StatusPatch{Message: strPtr(msg), Retries: intPtr(prevAttempt)}
	if err := w.orders.UpdateStatus(ctx, orderID, models.OrderStatusFailed, patch); err != nil {
		w.log.WithError(err).WithField("order_id", orderID).Error("settle worker: failed-status update failed")
		return
	}
	metrics.OrdersFailed.WithLabelValues("settle_retries_exhausted").Inc()

	if err := w.pub.EnqueueResidualDelay(ctx, orderID, 0); err != nil {
		w.log.WithError(err).WithField("order_id", orderID).Error("settle worker: residual publish failed")
	}
	w.log.WithFields(logrus.Fields{"order_id": orderID, "attempts": prevAttempt}).Error("settle worker: retries exhausted, order failed and parked for residual retry")
}
