package services

import (
	"context"
	"fmt"

	"github.com/gnosischain/universal-deposit/internal/metrics"
	"github.com/gnosischain/universal-deposit/internal/models"

	"github.com/sirupsen/logrus"
)

// recoveryBatchLimit bounds one recovery sweep. Anything beyond it is picked
// up by the next restart, which in practice never happens at this volume.
const recoveryBatchLimit = 10000

// RecoveryService republishes jobs for orders that were in flight when the
// previous process died. It runs once at startup, after the consumers are
// already listening, so a republished job can be picked up immediately.
type RecoveryService struct {
	orders OrderStore
	pub    JobPublisher
	log    *logrus.Logger
}

// NewRecoveryService creates a RecoveryService instance.
func NewRecoveryService(orders OrderStore, pub JobPublisher, log *logrus.Logger) *RecoveryService {
	return &RecoveryService{orders: orders, pub: pub, log: log}
}

// Run scans for non-terminal orders and re-enqueues each at the stage its
// status implies. Failure to list orders is fatal: starting with an unknown
// number of stranded orders would silently violate the at-least-once
// guarantee. Per-order publish failures are logged and skipped; the next
// restart retries them.
func (s *RecoveryService) Run(ctx context.Context) error {
	orders, err := s.orders.FindIncomplete(ctx, recoveryBatchLimit)
	if err != nil {
		return fmt.Errorf("recovery: listing incomplete orders: %w", err)
	}
	if len(orders) == 0 {
		s.log.Info("recovery: no incomplete orders found")
		return nil
	}

	recovered := 0
	for _, order := range orders {
		logger := s.log.WithFields(logrus.Fields{"order_id": order.ID, "status": order.Status})

		switch order.Status {
		case models.OrderStatusCreated:
			if err := s.pub.EnqueueDeploy(ctx, order.ID); err != nil {
				logger.WithError(err).Error("recovery: deploy republish failed")
				continue
			}
			metrics.RecoveredOrders.WithLabelValues("deploy").Inc()
			logger.Info("recovery: republished deploy job")
		case models.OrderStatusDeployed:
			if err := s.pub.EnqueueSettle(ctx, order.ID); err != nil {
				logger.WithError(err).Error("recovery: settle republish failed")
				continue
			}
			metrics.RecoveredOrders.WithLabelValues("settle").Inc()
			logger.Info("recovery: republished settle job")
		default:
			logger.Warn("recovery: order in unexpected status, skipping")
			continue
		}
		recovered++
	}

	s.log.WithFields(logrus.Fields{"found": len(orders), "recovered": recovered}).Info("recovery sweep finished")
	return nil
}
