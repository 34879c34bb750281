package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/gnosischain/universal-deposit/internal/config"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured marks a missing per-chain configuration entry (RPC,
// factory, token or signing key). Workers treat it as retryable: operators
// can fix configuration while messages sit in the retry ladder.
var ErrNotConfigured = errors.New("chain configuration missing")

// Role selects a signing capability.
type Role string

const (
	RoleDeployer Role = "deployer"
	RoleSettler  Role = "settler"
)

// Registry resolves per-chain RPC clients, signing transactors and configured
// contract addresses. Clients are dialed lazily and reused.
type Registry struct {
	cfg *config.Config
	log *logrus.Logger

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

// NewRegistry creates the chain registry from configuration.
func NewRegistry(cfg *config.Config, log *logrus.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		log:     log,
		clients: make(map[int64]*ethclient.Client),
	}
}

// ClientFor returns (dialing if necessary) the RPC client for a chain.
func (r *Registry) ClientFor(chainID int64) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[chainID]; ok {
		return client, nil
	}

	network, ok := r.cfg.NetworkByChainID(chainID)
	if !ok || network.RPCURL == "" {
		return nil, fmt.Errorf("%w: no RPC for chain %d", ErrNotConfigured, chainID)
	}

	client, err := ethclient.Dial(network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	r.clients[chainID] = client
	r.log.WithFields(logrus.Fields{"chain_id": chainID, "name": network.Name}).Info("chain RPC client connected")
	return client, nil
}

func (r *Registry) network(chainID int64) (*config.NetworkConfig, error) {
	network, ok := r.cfg.NetworkByChainID(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: chain %d not configured", ErrNotConfigured, chainID)
	}
	return network, nil
}

// TransactorFor builds a signing transactor for the given chain and role.
func (r *Registry) TransactorFor(chainID int64, role Role) (*bind.TransactOpts, error) {
	var keyHex string
	switch role {
	case RoleDeployer:
		keyHex = r.cfg.Keys.DeployerPrivateKey
	case RoleSettler:
		keyHex = r.cfg.Keys.SettlerPrivateKey
	default:
		return nil, fmt.Errorf("unknown signing role %q", role)
	}
	if keyHex == "" {
		return nil, fmt.Errorf("%w: no %s key", ErrNotConfigured, role)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse %s key: %w", role, err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("build %s transactor: %w", role, err)
	}
	return opts, nil
}

// USDCAddress returns the configured bridge token for a chain.
func (r *Registry) USDCAddress(chainID int64) (common.Address, error) {
	network, err := r.network(chainID)
	if err != nil {
		return common.Address{}, err
	}
	if network.USDCContract == "" {
		return common.Address{}, fmt.Errorf("%w: no USDC token for chain %d", ErrNotConfigured, chainID)
	}
	return common.HexToAddress(network.USDCContract), nil
}

// FeeTokenAddress returns the bridge's fee-quoting token for a chain.
func (r *Registry) FeeTokenAddress(chainID int64) (common.Address, error) {
	network, err := r.network(chainID)
	if err != nil {
		return common.Address{}, err
	}
	if network.StargateUSDCContract == "" {
		return common.Address{}, fmt.Errorf("%w: no fee token for chain %d", ErrNotConfigured, chainID)
	}
	return common.HexToAddress(network.StargateUSDCContract), nil
}

// FactoryAddress returns the proxy factory for a chain.
func (r *Registry) FactoryAddress(chainID int64) (common.Address, error) {
	network, err := r.network(chainID)
	if err != nil {
		return common.Address{}, err
	}
	if network.ProxyFactoryContract == "" {
		return common.Address{}, fmt.Errorf("%w: no proxy factory for chain %d", ErrNotConfigured, chainID)
	}
	return common.HexToAddress(network.ProxyFactoryContract), nil
}

// BlockNumber probes chain liveness for health checks.
func (r *Registry) BlockNumber(ctx context.Context, chainID int64) (uint64, error) {
	client, err := r.ClientFor(chainID)
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

// Close tears down all dialed clients.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, client := range r.clients {
		client.Close()
	}
	r.clients = make(map[int64]*ethclient.Client)
}
