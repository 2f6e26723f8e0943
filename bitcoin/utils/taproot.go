// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// NewTaprootKeyAddress generates a key-path-only taproot address for the
// provided key, tweaked with an empty script tree per BIP-86. This is the
// address form ordinal wallets custody inscriptions under.
func NewTaprootKeyAddress(chainParams *chaincfg.Params, privateKey *btcec.PrivateKey) (*btcutil.AddressTaproot, error) {
	outputKey := txscript.ComputeTaprootKeyNoScript(privateKey.PubKey())
	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), chainParams)
}

// MustTaprootKeyAddress uses NewTaprootKeyAddress, panics in case of error.
func MustTaprootKeyAddress(chainParams *chaincfg.Params, privateKey *btcec.PrivateKey) *btcutil.AddressTaproot {
	address, err := NewTaprootKeyAddress(chainParams, privateKey)
	if err != nil {
		panic(err)
	}

	return address
}

// NewTaprootAddressFromScripts generates a taproot address with a script
// tree built from the provided leaf scripts.
func NewTaprootAddressFromScripts(chainParams *chaincfg.Params, internalKey *btcec.PrivateKey, leafScripts ...[]byte) (*btcutil.AddressTaproot, error) {
	tapScriptTree, err := NewTapScriptTreeFromRawScripts(leafScripts...)
	if err != nil {
		return nil, err
	}

	tapScriptRootHash := tapScriptTree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey.PubKey(), tapScriptRootHash[:])

	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), chainParams)
}

// NewTapScriptTreeFromRawScripts builds tapScript tree from provided raw leaf scripts.
func NewTapScriptTreeFromRawScripts(leafScripts ...[]byte) (*txscript.IndexedTapScriptTree, error) {
	if len(leafScripts) == 0 {
		return nil, errors.New("no leaf scripts provided")
	}

	var tapLeafs = make([]txscript.TapLeaf, len(leafScripts))
	for i, leafScript := range leafScripts {
		tapLeafs[i] = txscript.NewBaseTapLeaf(leafScript)
	}

	return txscript.AssembleTaprootScriptTree(tapLeafs...), nil
}

// NewSingleKeyLeafTapScript generates a one-key locking script for a taproot leaf.
func NewSingleKeyLeafTapScript(privateKey *btcec.PrivateKey) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(privateKey.PubKey().SerializeCompressed()[1:]).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}
