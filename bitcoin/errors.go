// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
)

// Input errors.
var (
	// ErrInvalidAddress defines that the address failed to parse on the requested network.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNetworkMismatch defines that data from different networks was mixed in one operation.
	ErrNetworkMismatch = errors.New("network mismatch")
	// ErrNotOrdinalCompatible defines that the address type cannot custody an ordinal.
	ErrNotOrdinalCompatible = errors.New("address is not ordinal compatible")
	// ErrMalformedPSBT defines that the PSBT bytes failed to parse or violate structure.
	ErrMalformedPSBT = errors.New("malformed psbt")
	// ErrMalformedSellerPSBT defines that the stored seller PSBT failed validation.
	ErrMalformedSellerPSBT = errors.New("malformed seller psbt")
	// ErrPSBTPriceMismatch defines that the PSBT output value differs from the declared price.
	ErrPSBTPriceMismatch = errors.New("psbt price mismatch")
	// ErrSellerUnsigned defines that the seller PSBT input carries no signature.
	ErrSellerUnsigned = errors.New("seller psbt is unsigned")
	// ErrUnknownFeeLevel defines that the requested fee level is not advertised.
	ErrUnknownFeeLevel = errors.New("unknown fee level")
)

// State errors.
var (
	// ErrNotFound defines that the requested entity is unknown to every backend.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner defines that the claimed address does not own the inscription.
	ErrNotOwner = errors.New("address does not own the inscription")
)

// Protocol errors surfaced by broadcast classification.
var (
	// ErrAlreadyInChain defines that the transaction is already known to the chain.
	ErrAlreadyInChain = errors.New("transaction already in chain")
	// ErrInputsMissingOrSpent defines that at least one input is missing or already spent.
	ErrInputsMissingOrSpent = errors.New("inputs missing or spent")
	// ErrInsufficientFee defines that the transaction fee is below relay requirements.
	ErrInsufficientFee = errors.New("insufficient fee")
	// ErrScriptVerifyFailed defines that script verification rejected the transaction.
	ErrScriptVerifyFailed = errors.New("script verify failed")
	// ErrMempoolConflict defines that a conflicting transaction occupies the mempool.
	ErrMempoolConflict = errors.New("mempool conflict")
)

// Environment errors.
var (
	// ErrBackendExhausted defines that every configured backend failed.
	ErrBackendExhausted = errors.New("all backends exhausted")
	// ErrChainLookupFailed defines that required chain data could not be fetched.
	ErrChainLookupFailed = errors.New("chain lookup failed")
)
