package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Client owns the AMQP connection and a shared publish channel. The library
// does not reconnect on its own, so the client watches for connection loss and
// re-dials, re-asserting topology before resuming publishes.
type Client struct {
	cfg *config.RabbitMQConfig
	log *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	closed chan struct{}
}

// Connect dials the broker, asserts the full topology and starts the
// reconnect watcher. A topology assertion failure is returned to the caller,
// which must treat it as fatal.
func Connect(cfg *config.RabbitMQConfig, log *logrus.Logger) (*Client, error) {
	c := &Client{cfg: cfg, log: log, closed: make(chan struct{})}
	if err := c.dial(); err != nil {
		return nil, err
	}
	go c.watch()
	return c, nil
}

func (c *Client) dial() error {
	heartbeat := 20 * time.Second
	if c.cfg.Heartbeat > 0 {
		heartbeat = time.Duration(c.cfg.Heartbeat) * time.Second
	}

	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{Heartbeat: heartbeat})
	if err != nil {
		metrics.BrokerConnectionStatus.Set(0)
		return fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		metrics.BrokerConnectionStatus.Set(0)
		return fmt.Errorf("open channel: %w", err)
	}

	if err := AssertTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		metrics.BrokerConnectionStatus.Set(0)
		return fmt.Errorf("assert topology: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.mu.Unlock()

	metrics.BrokerConnectionStatus.Set(1)
	c.log.WithField("url", c.cfg.URL).Info("RabbitMQ connected, topology asserted")
	return nil
}

// watch re-dials after connection loss until Close is called.
func (c *Client) watch() {
	wait := 5 * time.Second
	if c.cfg.ReconnectWait > 0 {
		wait = time.Duration(c.cfg.ReconnectWait) * time.Second
	}

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		errCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.closed:
			return
		case amqpErr := <-errCh:
			metrics.BrokerConnectionStatus.Set(0)
			if amqpErr != nil {
				c.log.WithField("err", amqpErr.Error()).Warn("RabbitMQ disconnected; will retry")
			}
		}

		for {
			select {
			case <-c.closed:
				return
			case <-time.After(wait):
			}
			if err := c.dial(); err != nil {
				c.log.WithError(err).Warn("RabbitMQ reconnect failed")
				continue
			}
			break
		}
	}
}

// Channel opens a fresh channel for a consumer. Consumers own their channel
// so per-stage prefetch limits do not interfere with each other.
func (c *Client) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("rabbitmq connection not available")
	}
	return conn.Channel()
}

// publishChannel returns the shared publish channel.
func (c *Client) publishChannel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil || c.ch.IsClosed() {
		return nil, fmt.Errorf("rabbitmq channel not available")
	}
	return c.ch, nil
}

// Ping reports connectivity for health checks.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// Close stops the reconnect watcher and tears the connection down.
func (c *Client) Close() error {
	close(c.closed)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
