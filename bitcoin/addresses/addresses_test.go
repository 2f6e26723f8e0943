// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package addresses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/addresses"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		network bitcoin.Network
		want    addresses.Type
	}{
		{"mainnet p2tr", "bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0", bitcoin.NetworkMainnet, addresses.P2TR},
		{"testnet p2tr", "tb1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vq47zagq", bitcoin.NetworkTestnet, addresses.P2TR},
		{"mainnet p2wpkh", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", bitcoin.NetworkMainnet, addresses.P2WPKH},
		{"testnet p2wpkh", "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", bitcoin.NetworkTestnet, addresses.P2WPKH},
		{"mainnet p2pkh", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", bitcoin.NetworkMainnet, addresses.P2PKH},
		{"mainnet p2sh", "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", bitcoin.NetworkMainnet, addresses.P2SH},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			addr, err := addresses.Parse(test.value, test.network)
			require.NoError(t, err)
			require.Equal(t, test.want, addr.Type)
			require.Equal(t, test.value, addr.Value)
			require.Equal(t, test.network, addr.Network)

			script, err := addr.PayScript()
			require.NoError(t, err)
			require.NotEmpty(t, script)
		})
	}

	t.Run("network mismatch", func(t *testing.T) {
		_, err := addresses.Parse("bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0", bitcoin.NetworkTestnet)
		require.ErrorIs(t, err, bitcoin.ErrNetworkMismatch)

		_, err = addresses.Parse("tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", bitcoin.NetworkMainnet)
		require.ErrorIs(t, err, bitcoin.ErrNetworkMismatch)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, value := range []string{"", "notanaddress", "bc1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"} {
			_, err := addresses.Parse(value, bitcoin.NetworkMainnet)
			require.ErrorIs(t, err, bitcoin.ErrInvalidAddress, value)
		}
	})
}

func TestRequireTaproot(t *testing.T) {
	taproot, err := addresses.Parse("bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0", bitcoin.NetworkMainnet)
	require.NoError(t, err)
	require.NoError(t, addresses.RequireTaproot(taproot))

	segwit, err := addresses.Parse("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", bitcoin.NetworkMainnet)
	require.NoError(t, err)
	require.ErrorIs(t, addresses.RequireTaproot(segwit), bitcoin.ErrNotOrdinalCompatible)
}
