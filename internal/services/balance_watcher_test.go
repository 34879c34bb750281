package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/gnosischain/universal-deposit/internal/cache"
	"github.com/gnosischain/universal-deposit/internal/models"
	"github.com/gnosischain/universal-deposit/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUDA       = "0x1111111111111111111111111111111111111111"
	testOwner     = "0x2222222222222222222222222222222222222222"
	testRecipient = "0x3333333333333333333333333333333333333333"
)

func testRecord() *cache.UDARecord {
	return &cache.UDARecord{
		UniversalAddress:   testUDA,
		OwnerAddress:       testOwner,
		RecipientAddress:   testRecipient,
		SourceChainID:      41923,
		DestinationChainID: 100,
		LastProcessedNonce: cache.NonceNone,
	}
}

func newWatcher(t *testing.T, c *fakeCache, orders *fakeOrders, pub *fakePublisher, chains *fakeChains) *BalanceWatcher {
	t.Helper()
	w, err := NewBalanceWatcher(c, orders, pub, chains, testConfig(), testLogger())
	require.NoError(t, err)
	return w
}

func TestNewBalanceWatcherRejectsBadMinAmount(t *testing.T) {
	cfg := testConfig()
	cfg.Watcher.MinBridgeAmount = "a lot"
	_, err := NewBalanceWatcher(newFakeCache(), newFakeOrders(), newFakePublisher(), &fakeChains{}, cfg, testLogger())
	assert.Error(t, err)
}

func TestProcessAddressCreatesOrder(t *testing.T) {
	c := newFakeCache(testRecord())
	orders := newFakeOrders()
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(5_000_000), nil },
		nonceFn:   func(int64, string) (int64, error) { return 0, nil },
	}
	w := newWatcher(t, c, orders, pub, chains)

	w.processAddress(context.Background(), testUDA)

	deploys, _, _, _ := pub.snapshot()
	require.Len(t, deploys, 1)

	order := orders.get(deploys[0].orderID)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusCreated, order.Status)
	assert.Equal(t, "5000000", order.Amount)
	assert.Equal(t, int64(0), order.Nonce)
	assert.Equal(t, testUDA, order.UniversalAddress)
	assert.Equal(t, int64(41923), order.SourceChainID)
	assert.Equal(t, int64(100), order.DestinationChainID)

	rec := c.record(testUDA)
	require.NotNil(t, rec)
	assert.Equal(t, int64(0), rec.LastProcessedNonce)
	assert.Equal(t, "5000000", rec.LastDetectedBalance.String())
}

func TestProcessAddressSkipsProcessedNonce(t *testing.T) {
	rec := testRecord()
	rec.LastProcessedNonce = 0
	c := newFakeCache(rec)
	orders := newFakeOrders()
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(5_000_000), nil },
		nonceFn:   func(int64, string) (int64, error) { return 0, nil },
	}
	w := newWatcher(t, c, orders, pub, chains)

	w.processAddress(context.Background(), testUDA)

	deploys, _, _, _ := pub.snapshot()
	assert.Empty(t, deploys)
	assert.Empty(t, orders.orders)
}

func TestProcessAddressBelowThreshold(t *testing.T) {
	c := newFakeCache(testRecord())
	orders := newFakeOrders()
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(10), nil },
	}
	w := newWatcher(t, c, orders, pub, chains)

	w.processAddress(context.Background(), testUDA)

	deploys, _, _, _ := pub.snapshot()
	assert.Empty(t, deploys)
	// The observed balance is still persisted for observability.
	assert.Equal(t, "10", c.record(testUDA).LastDetectedBalance.String())
}

func TestProcessAddressPrunesExpiredRecord(t *testing.T) {
	c := newFakeCache()
	w := newWatcher(t, c, newFakeOrders(), newFakePublisher(), &fakeChains{})

	w.processAddress(context.Background(), "0x9999999999999999999999999999999999999999")
	assert.Contains(t, c.pruned, "0x9999999999999999999999999999999999999999")
}

func TestProcessAddressPublishFailureKeepsNonce(t *testing.T) {
	c := newFakeCache(testRecord())
	orders := newFakeOrders()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(5_000_000), nil },
		nonceFn:   func(int64, string) (int64, error) { return 0, nil },
	}

	// The order id is deterministic, so the publish failure can be targeted.
	destToken, err := chains.USDCAddress(100)
	require.NoError(t, err)
	orderID := utils.GenerateOrderID(utils.OrderIDParams{
		UniversalAddress:        testUDA,
		OwnerAddress:            testOwner,
		RecipientAddress:        testRecipient,
		DestinationTokenAddress: destToken.Hex(),
		DestinationChainID:      100,
		Nonce:                   0,
	})

	pub := newFakePublisher()
	pub.deployErrFor = map[string]error{orderID: errors.New("broker down")}
	w := newWatcher(t, c, orders, pub, chains)

	w.processAddress(context.Background(), testUDA)

	// The nonce must stay unprocessed so the next tick retries, and the order
	// row must exist for recovery to republish.
	assert.Equal(t, cache.NonceNone, c.record(testUDA).LastProcessedNonce)
	require.NotNil(t, orders.get(orderID))
}

func TestRunTickScansAllAddresses(t *testing.T) {
	recA := testRecord()
	recB := testRecord()
	recB.UniversalAddress = "0x5555555555555555555555555555555555555555"
	c := newFakeCache(recA, recB)
	orders := newFakeOrders()
	pub := newFakePublisher()
	chains := &fakeChains{
		balanceFn: func(int64, string, string) (*big.Int, error) { return big.NewInt(5_000_000), nil },
		nonceFn:   func(int64, string) (int64, error) { return 0, nil },
	}
	w := newWatcher(t, c, orders, pub, chains)

	w.runTick(context.Background())

	deploys, _, _, _ := pub.snapshot()
	assert.Len(t, deploys, 2)
	assert.Len(t, orders.orders, 2)
}
