package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// OrderIDParams is the natural key of an order. The same on-chain funding
// event always carries the same six fields, so the derived id is stable
// across watcher restarts and recovery replays.
type OrderIDParams struct {
	UniversalAddress        string
	OwnerAddress            string
	RecipientAddress        string
	DestinationTokenAddress string
	DestinationChainID      int64
	Nonce                   int64
}

// GenerateOrderID computes the deterministic order id:
// keccak256(abi.encodePacked(universalAddress, ownerAddress, recipientAddress,
// destinationToken, uint256(destinationChainId), uint256(nonce))).
// Addresses contribute their 20 raw bytes, chain id and nonce 32 bytes each.
func GenerateOrderID(p OrderIDParams) string {
	packed := make([]byte, 0, 4*common.AddressLength+2*32)
	packed = append(packed, common.HexToAddress(p.UniversalAddress).Bytes()...)
	packed = append(packed, common.HexToAddress(p.OwnerAddress).Bytes()...)
	packed = append(packed, common.HexToAddress(p.RecipientAddress).Bytes()...)
	packed = append(packed, common.HexToAddress(p.DestinationTokenAddress).Bytes()...)
	packed = append(packed, common.BigToHash(big.NewInt(p.DestinationChainID)).Bytes()...)
	packed = append(packed, common.BigToHash(big.NewInt(p.Nonce)).Bytes()...)
	return crypto.Keccak256Hash(packed).Hex()
}

// IsHexAddress validates a 0x-prefixed 20-byte hex address.
func IsHexAddress(s string) bool {
	return common.IsHexAddress(s) && strings.HasPrefix(s, "0x")
}

// NormalizeAddress lower-cases an address for use as a cache key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// ChecksumAddress returns the EIP-55 checksummed form.
func ChecksumAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address: %s", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}
