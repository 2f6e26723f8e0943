// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ErrInvalidInputIndex indicates a signing request for an input the
// packet does not have.
var ErrInvalidInputIndex = errors.New("invalid input index")

// SignTaprootParams defines parameters for SignTaproot method.
type SignTaprootParams struct {
	Packet     *psbt.Packet
	Inputs     []int // inputs indexes.
	PrivateKey *btcec.PrivateKey
}

// signTaprootInputParams defines parameters for signTaprootInput method.
type signTaprootInputParams struct {
	packet       *psbt.Packet
	input        int
	inputFetcher txscript.PrevOutputFetcher
	privateKey   *btcec.PrivateKey
}

// Signer produces taproot signatures for marketplace PSBTs. Sellers use
// it on the single ordinal input, buyers on their dummy and cardinal
// inputs. Each input is signed under the sighash type the packet
// declares for it.
type Signer struct{}

// NewSigner is a constructor for Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// SignTaproot signs taproot inputs by provided indexes, updating the
// packet in place. Inputs must carry their witness utxo.
func (signer *Signer) SignTaproot(params SignTaprootParams) error {
	var (
		tx                   = params.Packet.UnsignedTx
		prevOutputFetcherMap = make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	)
	for idx, in := range params.Packet.Inputs {
		prevOutputFetcherMap[tx.TxIn[idx].PreviousOutPoint] = in.WitnessUtxo
	}

	var prevOutputFetcher = txscript.NewMultiPrevOutFetcher(prevOutputFetcherMap)
	for _, input := range params.Inputs {
		if len(params.Packet.Inputs) <= input {
			return ErrInvalidInputIndex
		}

		err := signer.signTaprootInput(signTaprootInputParams{
			packet:       params.Packet,
			input:        input,
			inputFetcher: prevOutputFetcher,
			privateKey:   params.PrivateKey,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// signTaprootInput signs taproot input with or without witness script.
func (signer *Signer) signTaprootInput(params signTaprootInputParams) error {
	var (
		input       = &params.packet.Inputs[params.input]
		sigHashes   = txscript.NewTxSigHashes(params.packet.UnsignedTx, params.inputFetcher)
		value       = input.WitnessUtxo.Value
		pkScript    = input.WitnessUtxo.PkScript
		sigHashType = input.SighashType
		witness     wire.TxWitness
		err         error
	)

	if len(input.WitnessScript) != 0 {
		var (
			tapLeaf        = txscript.NewBaseTapLeaf(input.WitnessScript)
			tapScriptTree  = txscript.AssembleTaprootScriptTree(tapLeaf)
			ctrlBlock      = tapScriptTree.LeafMerkleProofs[0].ToControlBlock(params.privateKey.PubKey())
			ctrlBlockBytes []byte
			sig            []byte
			leafHash       = tapLeaf.TapHash()
		)

		ctrlBlockBytes, err = ctrlBlock.ToBytes()
		if err != nil {
			return err
		}

		sig, err = txscript.RawTxInTapscriptSignature(
			params.packet.UnsignedTx, sigHashes, params.input,
			value, pkScript, tapLeaf, sigHashType, params.privateKey,
		)
		if err != nil {
			return err
		}

		if len(sig) > 64 {
			sig = sig[:64]
		}
		input.TaprootScriptSpendSig = []*psbt.TaprootScriptSpendSig{{
			XOnlyPubKey: params.privateKey.PubKey().SerializeCompressed()[1:],
			LeafHash:    leafHash.CloneBytes(),
			Signature:   sig,
			SigHash:     sigHashType,
		}}

		input.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
			ControlBlock: ctrlBlockBytes,
			Script:       tapLeaf.Script,
			LeafVersion:  tapLeaf.LeafVersion,
		}}

		return nil
	}

	witness, err = txscript.TaprootWitnessSignature(
		params.packet.UnsignedTx, sigHashes, params.input,
		value, pkScript, sigHashType, params.privateKey)
	if err != nil {
		return err
	}

	// for non-default sighash types the signature carries the sighash
	// byte appended, matching PSBT_IN_TAP_KEY_SIG.
	input.TaprootKeySpendSig = witness[0]

	return nil
}
