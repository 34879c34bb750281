package services

import (
	"context"
	"time"

	"github.com/gnosischain/universal-deposit/internal/metrics"
	"github.com/gnosischain/universal-deposit/internal/queue"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// queueChannels abstracts the broker client for consumers (tests swap it out).
type queueChannels interface {
	Channel() (*amqp.Channel, error)
}

// jobHandler processes one parsed stage job. Implementations never return an
// error: every per-message failure is converted into a retry publish or a
// terminal status update so the consumer loop can always ack.
type jobHandler func(ctx context.Context, payload *queue.JobPayload)

// consumeLoop subscribes to a stage queue with the given prefetch and feeds
// deliveries to the handler, one goroutine per message. Every message is
// acked regardless of outcome; delayed redelivery is the TTL ladder's job,
// and leaving messages unacked would only invite broker redelivery storms.
// On channel loss it re-subscribes until stop is closed.
func consumeLoop(client queueChannels, queueName, consumerTag string, prefetch int, handler jobHandler, stop <-chan struct{}, log *logrus.Logger) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		ch, err := client.Channel()
		if err != nil {
			log.WithError(err).WithField("queue", queueName).Warn("consumer: channel unavailable, retrying")
			waitOrStop(stop, 5*time.Second)
			continue
		}
		if err := ch.Qos(prefetch, 0, false); err != nil {
			log.WithError(err).WithField("queue", queueName).Error("consumer: failed to set prefetch")
			ch.Close()
			waitOrStop(stop, 5*time.Second)
			continue
		}

		deliveries, err := ch.Consume(queueName, consumerTag, false, false, false, false, nil)
		if err != nil {
			log.WithError(err).WithField("queue", queueName).Error("consumer: subscribe failed")
			ch.Close()
			waitOrStop(stop, 5*time.Second)
			continue
		}

		log.WithFields(logrus.Fields{"queue": queueName, "prefetch": prefetch}).Info("consumer started")

		open := true
		for open {
			select {
			case <-stop:
				ch.Close()
				return
			case d, ok := <-deliveries:
				if !ok {
					open = false
					break
				}
				go handleDelivery(d, queueName, handler, log)
			}
		}

		ch.Close()
		log.WithField("queue", queueName).Warn("consumer: deliveries channel closed, resubscribing")
		waitOrStop(stop, 5*time.Second)
	}
}

func handleDelivery(d amqp.Delivery, queueName string, handler jobHandler, log *logrus.Logger) {
	defer func() {
		if err := d.Ack(false); err != nil {
			log.WithError(err).WithField("queue", queueName).Warn("consumer: ack failed")
		}
	}()

	payload, err := queue.ParseJobPayload(d.Body)
	if err != nil {
		// Corrupt payloads cannot be fixed by waiting; drop them.
		metrics.MessagesDropped.WithLabelValues(queueName, "unparseable").Inc()
		log.WithError(err).WithField("queue", queueName).Error("consumer: dropping unparseable message")
		return
	}

	handler(context.Background(), payload)
}

func waitOrStop(stop <-chan struct{}, d time.Duration) {
	select {
	case <-stop:
	case <-time.After(d):
	}
}
