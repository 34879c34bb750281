package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// call performs a read-only contract call and unpacks the outputs.
func (r *Registry) call(ctx context.Context, chainID int64, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	client, err := r.ClientFor(chainID)
	if err != nil {
		return nil, err
	}

	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	output, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on chain %d: %w", method, chainID, err)
	}

	results, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return results, nil
}

// transact submits a state-changing call through a bound contract. Gas
// estimation acts as the pre-submit simulation: a reverting call fails here
// before anything is broadcast.
func (r *Registry) transact(opts *bind.TransactOpts, chainID int64, to common.Address, parsed abi.ABI, method string, args ...interface{}) (*types.Transaction, error) {
	client, err := r.ClientFor(chainID)
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(to, parsed, client, client, client)
	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("submit %s on chain %d: %w", method, chainID, err)
	}
	return tx, nil
}

// waitMined blocks until the transaction is confirmed or the timeout elapses.
func (r *Registry) waitMined(ctx context.Context, chainID int64, tx *types.Transaction) (*types.Receipt, error) {
	client, err := r.ClientFor(chainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ConfirmTimeout())
	defer cancel()

	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for tx %s on chain %d: %w", tx.Hash().Hex(), chainID, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx %s reverted on chain %d", tx.Hash().Hex(), chainID)
	}
	return receipt, nil
}

// TokenBalance reads an ERC-20 balance.
func (r *Registry) TokenBalance(ctx context.Context, chainID int64, token, holder string) (*big.Int, error) {
	results, err := r.call(ctx, chainID, common.HexToAddress(token), erc20ABI, "balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", results[0])
	}
	return balance, nil
}

// AccountNonce reads the universal deposit account's funding-cycle counter.
func (r *Registry) AccountNonce(ctx context.Context, chainID int64, universalAddress string) (int64, error) {
	results, err := r.call(ctx, chainID, common.HexToAddress(universalAddress), udaABI, "nonce")
	if err != nil {
		return 0, err
	}
	nonce, ok := results[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected nonce return type %T", results[0])
	}
	return nonce.Int64(), nil
}

// HasCode probes for contract bytecode at an address.
func (r *Registry) HasCode(ctx context.Context, chainID int64, address string) (bool, error) {
	client, err := r.ClientFor(chainID)
	if err != nil {
		return false, err
	}
	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return false, fmt.Errorf("read bytecode on chain %d: %w", chainID, err)
	}
	return len(code) > 0, nil
}

// ResolveUniversalAddress asks the factory for the deterministic proxy
// address of (owner, recipient, destination chain).
func (r *Registry) ResolveUniversalAddress(ctx context.Context, chainID int64, owner, recipient string, destinationChainID int64) (string, error) {
	factory, err := r.FactoryAddress(chainID)
	if err != nil {
		return "", err
	}
	results, err := r.call(ctx, chainID, factory, proxyFactoryABI, "getUniversalAccount",
		common.HexToAddress(owner), common.HexToAddress(recipient), big.NewInt(destinationChainID))
	if err != nil {
		return "", err
	}
	addr, ok := results[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected getUniversalAccount return type %T", results[0])
	}
	return addr.Hex(), nil
}

// DeployProxy submits createUniversalAccount through the factory and waits
// for confirmation. Returns the transaction hash.
func (r *Registry) DeployProxy(ctx context.Context, chainID int64, owner, recipient string, destinationChainID int64) (string, error) {
	factory, err := r.FactoryAddress(chainID)
	if err != nil {
		return "", err
	}
	opts, err := r.TransactorFor(chainID, RoleDeployer)
	if err != nil {
		return "", err
	}
	opts.Context = ctx

	tx, err := r.transact(opts, chainID, factory, proxyFactoryABI, "createUniversalAccount",
		common.HexToAddress(owner), common.HexToAddress(recipient), big.NewInt(destinationChainID))
	if err != nil {
		return "", err
	}
	if _, err := r.waitMined(ctx, chainID, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// QuoteBridgeFee asks the universal account for the native value required to
// bridge the amount through Stargate at the given slippage tolerance.
func (r *Registry) QuoteBridgeFee(ctx context.Context, chainID int64, universalAddress string, amount *big.Int, feeToken string, slippageBps int64) (*big.Int, error) {
	results, err := r.call(ctx, chainID, common.HexToAddress(universalAddress), udaABI, "quoteStargateFee",
		amount, common.HexToAddress(feeToken), big.NewInt(slippageBps))
	if err != nil {
		return nil, err
	}
	fee, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quoteStargateFee return type %T", results[0])
	}
	return fee, nil
}

// SettleOrder submits the settlement transaction on the universal account
// with the quoted fee as transaction value, and waits for confirmation.
func (r *Registry) SettleOrder(ctx context.Context, chainID int64, universalAddress, sourceToken string, slippageBps int64, fee *big.Int) (string, error) {
	opts, err := r.TransactorFor(chainID, RoleSettler)
	if err != nil {
		return "", err
	}
	opts.Context = ctx
	opts.Value = fee

	tx, err := r.transact(opts, chainID, common.HexToAddress(universalAddress), udaABI, "settle",
		common.HexToAddress(sourceToken), big.NewInt(slippageBps))
	if err != nil {
		return "", err
	}
	if _, err := r.waitMined(ctx, chainID, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}
