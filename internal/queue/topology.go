package queue

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange and queue names. Operators depend on these exact identifiers for
// observability; renaming any of them is a migration.
const (
	ExchangeDirect = "orders.direct"
	ExchangeDLX    = "orders.dlx"

	RoutingKeyDeploy = "deploy"
	RoutingKeySettle = "settle"
	RoutingKeyDLQ    = "dlq"

	QueueDeploy = "deploy.q"
	QueueSettle = "settle.q"
	QueueDLQ    = "dlq.q"
)

// RetryTier is one rung of a TTL ladder: a queue whose messages dead-letter
// back into the live flow after TTL. Ladders are declarative data so tests can
// enumerate them.
type RetryTier struct {
	Queue string
	TTL   time.Duration
}

// DeployRetryLadder delays for transient deploy failures.
var DeployRetryLadder = []RetryTier{
	{"deploy.retry.1s", 1 * time.Second},
	{"deploy.retry.5s", 5 * time.Second},
	{"deploy.retry.30s", 30 * time.Second},
	{"deploy.retry.2m", 2 * time.Minute},
	{"deploy.retry.10m", 10 * time.Minute},
}

// SettleRetryLadder delays for transient settle failures.
var SettleRetryLadder = []RetryTier{
	{"settle.retry.1s", 1 * time.Second},
	{"settle.retry.5s", 5 * time.Second},
	{"settle.retry.30s", 30 * time.Second},
	{"settle.retry.2m", 2 * time.Minute},
	{"settle.retry.10m", 10 * time.Minute},
}

// ResidualLadder holds orders that exhausted stage retries but may still
// succeed much later (e.g. destination liquidity). Residual messages re-enter
// the deploy flow.
var ResidualLadder = []RetryTier{
	{"residual.delay.1h", 1 * time.Hour},
	{"residual.delay.3h", 3 * time.Hour},
	{"residual.delay.6h", 6 * time.Hour},
	{"residual.delay.12h", 12 * time.Hour},
	{"residual.delay.24h", 24 * time.Hour},
}

// TierFor clamps an attempt number to a ladder index.
func TierFor(attempt, tierCount int) int {
	if attempt < 0 {
		return 0
	}
	if attempt > tierCount-1 {
		return tierCount - 1
	}
	return attempt
}

// ttlQueueArgs configures a passive TTL queue whose expired messages re-enter
// the direct exchange under the given routing key. No timer process exists;
// the broker's dead-lettering is the scheduler.
func ttlQueueArgs(ttl time.Duration, routingKey string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    ExchangeDirect,
		"x-dead-letter-routing-key": routingKey,
		"x-message-ttl":             ttl.Milliseconds(),
	}
}

// mainQueueArgs configures a live stage queue to dead-letter rejected
// messages into the DLQ.
func mainQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLX,
		"x-dead-letter-routing-key": RoutingKeyDLQ,
	}
}

// AssertTopology declares exchanges, stage queues, retry ladders and the DLQ.
// Failure here is fatal to the process: no stage can run safely on an
// unasserted topology.
func AssertTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeDirect, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeDirect, err)
	}
	if err := ch.ExchangeDeclare(ExchangeDLX, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeDLX, err)
	}

	if _, err := ch.QueueDeclare(QueueDeploy, true, false, false, false, mainQueueArgs()); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueDeploy, err)
	}
	if _, err := ch.QueueDeclare(QueueSettle, true, false, false, false, mainQueueArgs()); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueSettle, err)
	}
	if _, err := ch.QueueDeclare(QueueDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueDLQ, err)
	}

	if err := ch.QueueBind(QueueDeploy, RoutingKeyDeploy, ExchangeDirect, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueDeploy, err)
	}
	if err := ch.QueueBind(QueueSettle, RoutingKeySettle, ExchangeDirect, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueSettle, err)
	}
	if err := ch.QueueBind(QueueDLQ, RoutingKeyDLQ, ExchangeDLX, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueDLQ, err)
	}

	ladders := []struct {
		tiers      []RetryTier
		routingKey string
	}{
		{DeployRetryLadder, RoutingKeyDeploy},
		{SettleRetryLadder, RoutingKeySettle},
		// residual tiers re-check liquidity via the normal deploy flow
		{ResidualLadder, RoutingKeyDeploy},
	}
	for _, ladder := range ladders {
		for _, tier := range ladder.tiers {
			if _, err := ch.QueueDeclare(tier.Queue, true, false, false, false, ttlQueueArgs(tier.TTL, ladder.routingKey)); err != nil {
				return fmt.Errorf("declare queue %s: %w", tier.Queue, err)
			}
		}
	}

	return nil
}
