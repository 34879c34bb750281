package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/gnosischain/universal-deposit/internal/models"
	"github.com/gnosischain/universal-deposit/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deployedOrder(id string) *models.Order {
	o := createdOrder(id)
	o.Status = models.OrderStatusDeployed
	return o
}

func newTestSettleWorker(orders *fakeOrders, pub *fakePublisher, chains *fakeChains) *SettleWorker {
	return NewSettleWorker(nil, orders, pub, chains, newFakeCache(), testConfig(), testLogger())
}

func TestSettleWorkerHappyPath(t *testing.T) {
	orders := newFakeOrders(deployedOrder("0xbbb"))
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(5_000_000), nil },
	}
	w := newTestSettleWorker(orders, pub, chains)

	w.processJob(context.Background(), &queue.JobPayload{OrderID: "0xbbb"})

	order := orders.get("0xbbb")
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	require.NotNil(t, order.TransactionHash)
	assert.Equal(t, "0xfeedface", *order.TransactionHash)
	require.NotNil(t, order.BridgeTransactionURL)
	assert.Equal(t, "https://layerzeroscan.com/tx/0xfeedface", *order.BridgeTransactionURL)
	assert.Equal(t, 1, chains.settleCalls)
}

func TestSettleWorkerZeroBalanceCompletes(t *testing.T) {
	orders := newFakeOrders(deployedOrder("0xbbb"))
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(0), nil },
	}
	w := newTestSettleWorker(orders, pub, chains)

	w.processJob(context.Background(), &queue.JobPayload{OrderID: "0xbbb"})

	order := orders.get("0xbbb")
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Nil(t, order.TransactionHash, "no transaction when there is nothing to settle")
	assert.Equal(t, 0, chains.settleCalls)
}

func TestSettleWorkerSkipsNonDeployed(t *testing.T) {
	orders := newFakeOrders(createdOrder("0xbbb"))
	pub := newFakePublisher()
	chains := &fakeChains{}
	w := newTestSettleWorker(orders, pub, chains)

	w.processJob(context.Background(), &queue.JobPayload{OrderID: "0xbbb"})

	assert.Equal(t, models.OrderStatusCreated, orders.get("0xbbb").Status)
	assert.Equal(t, 0, chains.settleCalls)
	_, _, retries, _ := pub.snapshot()
	assert.Empty(t, retries["settle"])
}

func TestSettleWorkerRetriesOnFailure(t *testing.T) {
	orders := newFakeOrders(deployedOrder("0xbbb"))
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(5_000_000), nil },
		settleFn:  func(int64, string, string) (string, error) { return "", errors.New("insufficient fee") },
	}
	w := newTestSettleWorker(orders, pub, chains)

	w.processJob(context.Background(), &queue.JobPayload{OrderID: "0xbbb", Attempt: 2})

	_, _, retries, residuals := pub.snapshot()
	require.Len(t, retries["settle"], 1)
	assert.Equal(t, 3, retries["settle"][0].attempt)
	assert.Empty(t, residuals)
	assert.Equal(t, models.OrderStatusDeployed, orders.get("0xbbb").Status)
}

func TestSettleWorkerExhaustionParksResidual(t *testing.T) {
	orders := newFakeOrders(deployedOrder("0xbbb"))
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(5_000_000), nil },
		settleFn:  func(int64, string, string) (string, error) { return "", errors.New("insufficient fee") },
	}
	w := newTestSettleWorker(orders, pub, chains)

	w.processJob(context.Background(), &queue.JobPayload{OrderID: "0xbbb", Attempt: 5})

	order := orders.get("0xbbb")
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.Equal(t, 5, order.Retries)

	_, _, retries, residuals := pub.snapshot()
	assert.Empty(t, retries["settle"])
	require.Len(t, residuals, 1)
	assert.Equal(t, "0xbbb", residuals[0].orderID)
	assert.Equal(t, 0, residuals[0].attempt, "residual retries always start at the first tier")
}

func TestSettleWorkerBadAmountDropped(t *testing.T) {
	order := deployedOrder("0xbbb")
	order.Amount = "not-a-number"
	orders := newFakeOrders(order)
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(5_000_000), nil },
	}
	w := newTestSettleWorker(orders, pub, chains)

	w.processJob(context.Background(), &queue.JobPayload{OrderID: "0xbbb"})

	assert.Equal(t, models.OrderStatusDeployed, orders.get("0xbbb").Status)
	_, _, retries, _ := pub.snapshot()
	assert.Empty(t, retries["settle"])
}
