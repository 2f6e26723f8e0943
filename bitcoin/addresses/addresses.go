// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package addresses

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"ordmarket/bitcoin"
)

// Type defines script type over which the address is built.
type Type string

const (
	// P2PKH defines legacy public key hash address type.
	P2PKH Type = "P2PKH"
	// P2SH defines script hash (nested segwit) address type.
	P2SH Type = "P2SH"
	// P2WPKH defines native segwit v0 public key hash address type.
	P2WPKH Type = "P2WPKH"
	// P2TR defines taproot (segwit v1) address type.
	// The only type permitted to custody an ordinal.
	P2TR Type = "P2TR"
	// Unknown defines any address type outside the classified set.
	Unknown Type = "Unknown"
)

// Address is a parsed, network-checked bitcoin address.
type Address struct {
	Value   string
	Type    Type
	Network bitcoin.Network

	decoded btcutil.Address
}

// Parse decodes the address string, tags its type and enforces network
// consistency. Addresses valid on a different network fail with
// bitcoin.ErrNetworkMismatch; otherwise undecodable input fails with
// bitcoin.ErrInvalidAddress.
func Parse(value string, network bitcoin.Network) (Address, error) {
	params, err := network.Params()
	if err != nil {
		return Address{}, err
	}

	decoded, err := btcutil.DecodeAddress(value, params)
	if err != nil {
		if decodesOnOtherNetwork(value, network) {
			return Address{}, fmt.Errorf("%w: %q is not a %s address", bitcoin.ErrNetworkMismatch, value, network)
		}

		return Address{}, fmt.Errorf("%w: %q: %v", bitcoin.ErrInvalidAddress, value, err)
	}
	if !decoded.IsForNet(params) {
		return Address{}, fmt.Errorf("%w: %q is not a %s address", bitcoin.ErrNetworkMismatch, value, network)
	}

	return Address{
		Value:   value,
		Type:    classify(decoded),
		Network: network,
		decoded: decoded,
	}, nil
}

// RequireTaproot fails with bitcoin.ErrNotOrdinalCompatible unless the
// address is P2TR. Ordinal custody and delivery addresses must pass it.
func RequireTaproot(a Address) error {
	if a.Type != P2TR {
		return fmt.Errorf("%w: %q is %s, want %s", bitcoin.ErrNotOrdinalCompatible, a.Value, a.Type, P2TR)
	}

	return nil
}

// PayScript returns the locking script paying to the address.
func (a Address) PayScript() ([]byte, error) {
	if a.decoded == nil {
		return nil, fmt.Errorf("%w: address is not decoded", bitcoin.ErrInvalidAddress)
	}

	return txscript.PayToAddrScript(a.decoded)
}

// classify tags btcutil address with its script type.
func classify(addr btcutil.Address) Type {
	switch addr.(type) {
	case *btcutil.AddressTaproot:
		return P2TR
	case *btcutil.AddressWitnessPubKeyHash:
		return P2WPKH
	case *btcutil.AddressPubKeyHash:
		return P2PKH
	case *btcutil.AddressScriptHash:
		return P2SH
	default:
		return Unknown
	}
}

// decodesOnOtherNetwork reports whether the value is a valid address on
// some supported network other than the requested one.
func decodesOnOtherNetwork(value string, network bitcoin.Network) bool {
	for _, candidate := range []bitcoin.Network{bitcoin.NetworkMainnet, bitcoin.NetworkTestnet, bitcoin.NetworkSignet} {
		if candidate == network {
			continue
		}

		params, err := candidate.Params()
		if err != nil {
			continue
		}

		if decoded, err := btcutil.DecodeAddress(value, params); err == nil && decoded.IsForNet(params) {
			return true
		}
	}

	return false
}
