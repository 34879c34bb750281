package services

import (
	"context"
	"errors"
	"testing"

	"github.com/gnosischain/universal-deposit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryRepublishesByStatus(t *testing.T) {
	completed := deployedOrder("0xc")
	completed.Status = models.OrderStatusCompleted
	failed := deployedOrder("0xd")
	failed.Status = models.OrderStatusFailed

	orders := newFakeOrders(createdOrder("0xa"), deployedOrder("0xb"), completed, failed)
	pub := newFakePublisher()
	s := NewRecoveryService(orders, pub, testLogger())

	require.NoError(t, s.Run(context.Background()))

	deploys, settles, _, _ := pub.snapshot()
	require.Len(t, deploys, 1)
	assert.Equal(t, "0xa", deploys[0].orderID)
	require.Len(t, settles, 1)
	assert.Equal(t, "0xb", settles[0].orderID)
}

func TestRecoveryEmptyDatabase(t *testing.T) {
	pub := newFakePublisher()
	s := NewRecoveryService(newFakeOrders(), pub, testLogger())

	require.NoError(t, s.Run(context.Background()))

	deploys, settles, _, _ := pub.snapshot()
	assert.Empty(t, deploys)
	assert.Empty(t, settles)
}

func TestRecoveryListFailureIsFatal(t *testing.T) {
	orders := newFakeOrders()
	orders.findErr = errors.New("connection refused")
	s := NewRecoveryService(orders, newFakePublisher(), testLogger())

	assert.Error(t, s.Run(context.Background()))
}

func TestRecoveryPublishFailureSkipsOrder(t *testing.T) {
	orders := newFakeOrders(createdOrder("0xa"), func() *models.Order {
		o := createdOrder("0xe")
		o.Nonce = 1
		return o
	}())
	pub := newFakePublisher()
	pub.deployErrFor = map[string]error{"0xa": errors.New("broker down")}
	s := NewRecoveryService(orders, pub, testLogger())

	// One failed publish must not abort the sweep.
	require.NoError(t, s.Run(context.Background()))

	deploys, _, _, _ := pub.snapshot()
	require.Len(t, deploys, 1)
	assert.Equal(t, "0xe", deploys[0].orderID)
}
