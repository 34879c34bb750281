package services

import (
	"context"
	"math/big"
	"time"

	"github.com/gnosischain/universal-deposit/internal/cache"
	"github.com/gnosischain/universal-deposit/internal/models"
	"github.com/gnosischain/universal-deposit/internal/repository"

	"github.com/ethereum/go-ethereum/common"
)

// OrderStore is the slice of the order repository the workers depend on.
// Workers hold no authoritative copy of an order; every decision re-reads
// current status through this interface.
type OrderStore interface {
	Ensure(ctx context.Context, order *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, patch *repository.StatusPatch) error
	FindIncomplete(ctx context.Context, limit int) ([]*models.Order, error)
}

// AddressCache is the slice of the address cache used by the watcher and the
// worker heartbeats.
type AddressCache interface {
	ListUDAAddresses(ctx context.Context) ([]string, error)
	GetUDA(ctx context.Context, address string) (*cache.UDARecord, error)
	UpdateUDAState(ctx context.Context, address string, upd cache.UDAStateUpdate) error
	PruneUDA(ctx context.Context, address string) error
	WriteHeartbeat(ctx context.Context, service string, interval time.Duration) error
}

// JobPublisher publishes stage jobs into the queue fabric.
type JobPublisher interface {
	EnqueueDeploy(ctx context.Context, orderID string) error
	EnqueueSettle(ctx context.Context, orderID string) error
	EnqueueDeployRetry(ctx context.Context, orderID string, attempt int) error
	EnqueueSettleRetry(ctx context.Context, orderID string, attempt int) error
	EnqueueResidualDelay(ctx context.Context, orderID string, tierIndex int) error
}

// ChainService is the opaque chain-RPC surface the workers call. All methods
// may block on network I/O and honor ctx.
type ChainService interface {
	TokenBalance(ctx context.Context, chainID int64, token, holder string) (*big.Int, error)
	AccountNonce(ctx context.Context, chainID int64, universalAddress string) (int64, error)
	HasCode(ctx context.Context, chainID int64, address string) (bool, error)
	USDCAddress(chainID int64) (common.Address, error)
	FeeTokenAddress(chainID int64) (common.Address, error)
	DeployProxy(ctx context.Context, chainID int64, owner, recipient string, destinationChainID int64) (string, error)
	QuoteBridgeFee(ctx context.Context, chainID int64, universalAddress string, amount *big.Int, feeToken string, slippageBps int64) (*big.Int, error)
	SettleOrder(ctx context.Context, chainID int64, universalAddress, sourceToken string, slippageBps int64, fee *big.Int) (string, error)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
