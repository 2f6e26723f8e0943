// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network defines the bitcoin network the operation runs against.
// Every operation carries it explicitly; there is no process-wide default.
type Network string

const (
	// NetworkMainnet defines the bitcoin main network.
	NetworkMainnet Network = "mainnet"
	// NetworkTestnet defines the bitcoin test network (testnet3).
	NetworkTestnet Network = "testnet"
	// NetworkSignet defines the bitcoin signet network.
	NetworkSignet Network = "signet"
)

// ParseNetwork parses Network from string.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case NetworkMainnet, NetworkTestnet, NetworkSignet:
		return Network(s), nil
	}

	return "", fmt.Errorf("unknown network: %q", s)
}

// Valid returns true if the network is one of the supported variants.
func (n Network) Valid() bool {
	switch n {
	case NetworkMainnet, NetworkTestnet, NetworkSignet:
		return true
	}

	return false
}

// Params returns chain parameters for the network.
func (n Network) Params() (*chaincfg.Params, error) {
	switch n {
	case NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	case NetworkSignet:
		return &chaincfg.SigNetParams, nil
	}

	return nil, fmt.Errorf("unknown network: %q", n)
}

// ExplorerTxURL returns block explorer link for the transaction.
func (n Network) ExplorerTxURL(txid string) string {
	switch n {
	case NetworkTestnet:
		return "https://mempool.space/testnet/tx/" + txid
	case NetworkSignet:
		return "https://mempool.space/signet/tx/" + txid
	default:
		return "https://mempool.space/tx/" + txid
	}
}
