// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// DummyValue defines the nominal value in satoshi of a dummy UTXO,
	// a small cardinal output kept around to lead ordinal purchases.
	DummyValue int64 = 1000
	// DustLimit defines the smallest output value in satoshi worth emitting.
	DustLimit int64 = 546
	// ListingExpiry defines how long a published listing stays active.
	ListingExpiry = 30 * 24 * time.Hour
)

// OutPoint identifies a transaction output as (txid, vout).
// Canonical textual form is "{txid_hex}:{vout}".
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// ParseOutPoint parses OutPoint from its canonical textual form.
func ParseOutPoint(s string) (OutPoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return OutPoint{}, fmt.Errorf("invalid outpoint format: %q", s)
	}

	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return OutPoint{}, fmt.Errorf("invalid outpoint txid: %w", err)
	}

	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return OutPoint{}, fmt.Errorf("invalid outpoint index: %w", err)
	}

	return OutPoint{Hash: *hash, Index: uint32(index)}, nil
}

// OutPointFromWire converts wire representation into OutPoint.
func OutPointFromWire(op wire.OutPoint) OutPoint {
	return OutPoint{Hash: op.Hash, Index: op.Index}
}

// String returns OutPoint in canonical textual form.
func (op OutPoint) String() string {
	return op.Hash.String() + ":" + strconv.FormatUint(uint64(op.Index), 10)
}

// TxID returns transaction ID in display (big-endian) hex form.
func (op OutPoint) TxID() string {
	return op.Hash.String()
}

// Wire returns OutPoint in wire representation, pointer-typed the way
// wire.NewTxIn consumes it.
func (op OutPoint) Wire() *wire.OutPoint {
	return wire.NewOutPoint(&op.Hash, op.Index)
}

// UTXO describes unspent transaction output data.
// UTXOs are observations of external chain state, they are refetched
// on every assembly and never persisted.
type UTXO struct {
	OutPoint  OutPoint
	Amount    int64  // in Satoshi.
	Script    []byte // ScriptPubKey.
	Address   string // output recipient address.
	Confirmed bool
}

// IsDummy returns true if the output value lies in the dummy range.
func (u UTXO) IsDummy() bool {
	return u.Amount >= DummyValue && u.Amount <= 2*DummyValue
}

// FeeLevel selects one of the advertised fee rate tiers.
type FeeLevel string

const (
	// FeeFastest defines next-block fee tier.
	FeeFastest FeeLevel = "fastest"
	// FeeHalfHour defines ~30 minute confirmation fee tier.
	FeeHalfHour FeeLevel = "half_hour"
	// FeeHour defines ~1 hour confirmation fee tier.
	FeeHour FeeLevel = "hour"
	// FeeEconomy defines low-priority fee tier.
	FeeEconomy FeeLevel = "economy"
	// FeeMinimum defines the relay-minimum fee tier.
	FeeMinimum FeeLevel = "minimum"
)

// FeeRates holds advertised fee rates in satoshi per virtual byte.
type FeeRates struct {
	Fastest  int64
	HalfHour int64
	Hour     int64
	Economy  int64
	Minimum  int64
}

// ByLevel returns the rate for the requested level.
func (f FeeRates) ByLevel(level FeeLevel) (int64, error) {
	switch level {
	case FeeFastest:
		return f.Fastest, nil
	case FeeHalfHour:
		return f.HalfHour, nil
	case FeeHour:
		return f.Hour, nil
	case FeeEconomy:
		return f.Economy, nil
	case FeeMinimum:
		return f.Minimum, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownFeeLevel, level)
}
