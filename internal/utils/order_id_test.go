package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseParams = OrderIDParams{
	UniversalAddress:        "0x1111111111111111111111111111111111111111",
	OwnerAddress:            "0x2222222222222222222222222222222222222222",
	RecipientAddress:        "0x3333333333333333333333333333333333333333",
	DestinationTokenAddress: "0x4444444444444444444444444444444444444444",
	DestinationChainID:      100,
	Nonce:                   0,
}

func TestGenerateOrderIDDeterministic(t *testing.T) {
	first := GenerateOrderID(baseParams)
	second := GenerateOrderID(baseParams)
	assert.Equal(t, first, second)

	require.True(t, strings.HasPrefix(first, "0x"))
	assert.Len(t, first, 66)
}

func TestGenerateOrderIDCaseInsensitiveAddresses(t *testing.T) {
	upper := baseParams
	upper.OwnerAddress = strings.ToUpper(strings.TrimPrefix(upper.OwnerAddress, "0x"))
	upper.OwnerAddress = "0x" + upper.OwnerAddress

	assert.Equal(t, GenerateOrderID(baseParams), GenerateOrderID(upper))
}

func TestGenerateOrderIDDistinguishesFields(t *testing.T) {
	ids := map[string]string{"base": GenerateOrderID(baseParams)}

	next := baseParams
	next.Nonce = 1
	ids["nonce"] = GenerateOrderID(next)

	next = baseParams
	next.DestinationChainID = 41923
	ids["chain"] = GenerateOrderID(next)

	next = baseParams
	next.RecipientAddress = "0x5555555555555555555555555555555555555555"
	ids["recipient"] = GenerateOrderID(next)

	seen := map[string]bool{}
	for name, id := range ids {
		assert.False(t, seen[id], "duplicate id for variant %s", name)
		seen[id] = true
	}
}

func TestIsHexAddress(t *testing.T) {
	assert.True(t, IsHexAddress("0x1111111111111111111111111111111111111111"))
	assert.False(t, IsHexAddress("1111111111111111111111111111111111111111"))
	assert.False(t, IsHexAddress("0x1111"))
	assert.False(t, IsHexAddress(""))
	assert.False(t, IsHexAddress("0xZZ11111111111111111111111111111111111111"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t,
		"0xabcdef1234567890abcdef1234567890abcdef12",
		NormalizeAddress("0xABCDEF1234567890abcdef1234567890ABCDEF12"))
}

func TestChecksumAddress(t *testing.T) {
	got, err := ChecksumAddress("0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")
	require.NoError(t, err)
	assert.Equal(t, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", got)

	_, err = ChecksumAddress("not-an-address")
	assert.Error(t, err)
}
