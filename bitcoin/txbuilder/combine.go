// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"ordmarket/bitcoin"
)

// ErrFinalizationFailed indicates the combined PSBT could not be turned
// into a valid network transaction.
var ErrFinalizationFailed = errors.New("psbt finalization failed")

// FinalizationError reports the input that blocked finalization.
type FinalizationError struct {
	InputIndex int
	Cause      error
}

// NewFinalizationError is a constructor for FinalizationError.
func NewFinalizationError(inputIndex int, cause error) *FinalizationError {
	return &FinalizationError{InputIndex: inputIndex, Cause: cause}
}

// Error implements the error interface.
func (e *FinalizationError) Error() string {
	return fmt.Sprintf("input %d: %v", e.InputIndex, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FinalizationError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is match ErrFinalizationFailed.
func (e *FinalizationError) Is(target error) bool {
	return target == ErrFinalizationFailed
}

// CombineAndFinalize finalizes a fully signed purchase PSBT and extracts
// the network transaction. Every witness is then replayed through the
// script engine against the committed prevouts, so a tampered packet
// fails here rather than at the mempool.
func CombineAndFinalize(packet *psbt.Packet) (*wire.MsgTx, error) {
	if len(packet.Inputs) == 0 {
		return nil, fmt.Errorf("%w: packet has no inputs", bitcoin.ErrMalformedPSBT)
	}

	if !InputSigned(&packet.Inputs[0]) {
		return nil, bitcoin.ErrSellerUnsigned
	}
	for i := range packet.Inputs {
		if packet.Inputs[i].WitnessUtxo == nil {
			return nil, NewFinalizationError(i, errors.New("missing witness utxo"))
		}
		if !InputSigned(&packet.Inputs[i]) {
			return nil, NewFinalizationError(i, errors.New("input is not signed"))
		}
	}

	// the finalizer wipes per-input sighash types, remember them for
	// the script replay below.
	sigHashTypes := make([]txscript.SigHashType, len(packet.Inputs))
	for i := range packet.Inputs {
		sigHashTypes[i] = packet.Inputs[i].SighashType
	}

	for i := range packet.Inputs {
		ok, err := psbt.MaybeFinalize(packet, i)
		if err != nil {
			return nil, NewFinalizationError(i, err)
		}
		if !ok {
			return nil, NewFinalizationError(i, errors.New("input could not be finalized"))
		}
	}

	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFinalizationFailed, err)
	}

	if err = verifyScripts(tx, packet, sigHashTypes); err != nil {
		return nil, err
	}

	return tx, nil
}

// verifyScripts executes witnesses against their prevout scripts.
// Inputs signed with ANYONECANPAY commit to the counterparty's original
// output arrangement, not to the assembled transaction, so only the
// inputs this service arranged and holds full context for are replayed.
func verifyScripts(tx *wire.MsgTx, packet *psbt.Packet, sigHashTypes []txscript.SigHashType) error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range tx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, packet.Inputs[i].WitnessUtxo)
	}

	hashCache := txscript.NewTxSigHashes(tx, fetcher)
	for i := range tx.TxIn {
		if sigHashTypes[i]&txscript.SigHashAnyOneCanPay != 0 {
			continue
		}
		prevOut := packet.Inputs[i].WitnessUtxo

		engine, err := txscript.NewEngine(prevOut.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, hashCache, prevOut.Value, fetcher)
		if err != nil {
			return NewFinalizationError(i, err)
		}

		if err = engine.Execute(); err != nil {
			return NewFinalizationError(i, err)
		}
	}

	return nil
}
