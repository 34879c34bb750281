package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gnosischain/universal-deposit/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher publishes stage jobs, retries and residual delays. Message ids
// are stable per (order, stage, attempt) to aid broker-side diagnostics.
type Publisher struct {
	client *Client
	log    *logrus.Logger
}

// NewPublisher creates a Publisher on the shared client.
func NewPublisher(client *Client, log *logrus.Logger) *Publisher {
	return &Publisher{client: client, log: log}
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey, messageID string, payload JobPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}

	ch, err := p.client.publishChannel()
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Body:         body,
	})
}

// EnqueueDeploy publishes a deploy job for the order.
func (p *Publisher) EnqueueDeploy(ctx context.Context, orderID string) error {
	if err := p.publish(ctx, ExchangeDirect, RoutingKeyDeploy, orderID, JobPayload{OrderID: orderID}); err != nil {
		return err
	}
	p.log.WithField("order_id", orderID).Debug("published deploy job")
	return nil
}

// EnqueueSettle publishes a settle job for the order.
func (p *Publisher) EnqueueSettle(ctx context.Context, orderID string) error {
	if err := p.publish(ctx, ExchangeDirect, RoutingKeySettle, orderID, JobPayload{OrderID: orderID}); err != nil {
		return err
	}
	p.log.WithField("order_id", orderID).Debug("published settle job")
	return nil
}

// EnqueueDeployRetry publishes the job directly into the deploy retry tier
// matching the attempt number. The tier queue dead-letters back into
// deploy.q after its TTL.
func (p *Publisher) EnqueueDeployRetry(ctx context.Context, orderID string, attempt int) error {
	tier := DeployRetryLadder[TierFor(attempt, len(DeployRetryLadder))]
	msgID := fmt.Sprintf("%s:deploy:%d", orderID, attempt)
	if err := p.publish(ctx, "", tier.Queue, msgID, JobPayload{OrderID: orderID, Attempt: attempt}); err != nil {
		return err
	}
	metrics.StageRetries.WithLabelValues("deploy").Inc()
	p.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"attempt":  attempt,
		"queue":    tier.Queue,
	}).Warn("published deploy retry")
	return nil
}

// EnqueueSettleRetry publishes the job into the settle retry tier matching
// the attempt number.
func (p *Publisher) EnqueueSettleRetry(ctx context.Context, orderID string, attempt int) error {
	tier := SettleRetryLadder[TierFor(attempt, len(SettleRetryLadder))]
	msgID := fmt.Sprintf("%s:settle:%d", orderID, attempt)
	if err := p.publish(ctx, "", tier.Queue, msgID, JobPayload{OrderID: orderID, Attempt: attempt}); err != nil {
		return err
	}
	metrics.StageRetries.WithLabelValues("settle").Inc()
	p.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"attempt":  attempt,
		"queue":    tier.Queue,
	}).Warn("published settle retry")
	return nil
}

// EnqueueResidualDelay publishes into a long-horizon tier. The message
// re-enters the deploy flow after the tier's TTL.
func (p *Publisher) EnqueueResidualDelay(ctx context.Context, orderID string, tierIndex int) error {
	idx := TierFor(tierIndex, len(ResidualLadder))
	tier := ResidualLadder[idx]
	msgID := fmt.Sprintf("%s:residual:%d", orderID, idx)
	if err := p.publish(ctx, "", tier.Queue, msgID, JobPayload{OrderID: orderID}); err != nil {
		return err
	}
	metrics.ResidualJobs.Inc()
	p.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"tier":     idx,
		"queue":    tier.Queue,
	}).Info("published residual delay")
	return nil
}
