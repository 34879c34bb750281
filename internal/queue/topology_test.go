package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTierForClampsToLadder(t *testing.T) {
	cases := []struct {
		attempt int
		want    int
	}{
		{-1, 0},
		{0, 0},
		{1, 1},
		{4, 4},
		{5, 4},
		{100, 4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierFor(tc.attempt, len(DeployRetryLadder)), "attempt %d", tc.attempt)
	}
}

func TestRetryLaddersShape(t *testing.T) {
	wantStage := []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute}
	wantResidual := []time.Duration{time.Hour, 3 * time.Hour, 6 * time.Hour, 12 * time.Hour, 24 * time.Hour}

	assert.Len(t, DeployRetryLadder, len(wantStage))
	assert.Len(t, SettleRetryLadder, len(wantStage))
	assert.Len(t, ResidualLadder, len(wantResidual))

	for i, tier := range DeployRetryLadder {
		assert.Equal(t, wantStage[i], tier.TTL)
	}
	for i, tier := range SettleRetryLadder {
		assert.Equal(t, wantStage[i], tier.TTL)
	}
	for i, tier := range ResidualLadder {
		assert.Equal(t, wantResidual[i], tier.TTL)
	}
}

func TestQueueNamesAreUnique(t *testing.T) {
	seen := map[string]bool{QueueDeploy: true, QueueSettle: true, QueueDLQ: true}
	for _, ladder := range [][]RetryTier{DeployRetryLadder, SettleRetryLadder, ResidualLadder} {
		for _, tier := range ladder {
			assert.False(t, seen[tier.Queue], "duplicate queue name %s", tier.Queue)
			seen[tier.Queue] = true
		}
	}
}

func TestTTLQueueArgs(t *testing.T) {
	args := ttlQueueArgs(5*time.Second, RoutingKeyDeploy)
	assert.Equal(t, ExchangeDirect, args["x-dead-letter-exchange"])
	assert.Equal(t, RoutingKeyDeploy, args["x-dead-letter-routing-key"])
	assert.Equal(t, int64(5000), args["x-message-ttl"])
}
