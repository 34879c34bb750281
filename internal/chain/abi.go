package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABI fragments for the three contracts the engine talks to. The
// engine never needs the full interfaces; only these entrypoints.

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const udaABIJSON = `[
	{"constant":true,"inputs":[],"name":"nonce","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"amount","type":"uint256"},{"name":"token","type":"address"},{"name":"maxSlippage","type":"uint256"}],"name":"quoteStargateFee","outputs":[{"name":"valueToSend","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"token","type":"address"},{"name":"maxSlippage","type":"uint256"}],"name":"settle","outputs":[],"stateMutability":"payable","type":"function"}
]`

const proxyFactoryABIJSON = `[
	{"inputs":[{"name":"owner","type":"address"},{"name":"recipient","type":"address"},{"name":"destinationChainId","type":"uint256"}],"name":"createUniversalAccount","outputs":[{"name":"","type":"address"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"recipient","type":"address"},{"name":"destinationChainId","type":"uint256"}],"name":"getUniversalAccount","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20ABI        abi.ABI
	udaABI          abi.ABI
	proxyFactoryABI abi.ABI
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

func init() {
	erc20ABI = mustABI(erc20ABIJSON)
	udaABI = mustABI(udaABIJSON)
	proxyFactoryABI = mustABI(proxyFactoryABIJSON)
}
