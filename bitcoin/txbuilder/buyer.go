// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/addresses"
)

// BuyerParams describes data needed to extend a signed seller PSBT
// into a complete purchase transaction.
type BuyerParams struct {
	SellerPSBT     string // base64 or hex encoded signed seller PSBT.
	PaymentAddress string // buyer address funding the purchase.
	ReceiveAddress string // optional taproot address receiving the ordinal, defaults to payment.
	FeeLevel       bitcoin.FeeLevel
	Network        bitcoin.Network
}

// BuyerResult carries the assembled purchase PSBT awaiting buyer signatures.
type BuyerResult struct {
	Packet         *psbt.Packet
	PSBTBase64     string
	PriceSats      int64
	FeeSats        int64
	FeeRate        int64
	ChangeSats     int64
	DummyNew       bool // true when the transaction mints a replacement dummy.
	SellerOutPoint bitcoin.OutPoint
}

// BuildBuyerPSBT places the seller's signed input and payout at fixed
// positions and surrounds them with the buyer's funding. Ordering is
// load bearing and agreed with the signing wallets.
//
// Inputs:  [0] seller ordinal input copied verbatim, [1] buyer dummy
// when one exists, then buyer cardinal funding largest-first.
// Outputs: [0] ordinal to the buyer at the exact source value,
// [1] seller payout copied verbatim, [2] fresh dummy when the wallet
// had none, [last] change when above dust.
func (b *Builder) BuildBuyerPSBT(ctx context.Context, params BuyerParams) (*BuyerResult, error) {
	sellerPacket, _, err := Parse(params.SellerPSBT)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bitcoin.ErrMalformedSellerPSBT, err)
	}

	if len(sellerPacket.Inputs) != 1 || len(sellerPacket.UnsignedTx.TxOut) != 1 {
		return nil, fmt.Errorf("%w: want 1 input and 1 output, got %d and %d",
			bitcoin.ErrMalformedSellerPSBT, len(sellerPacket.Inputs), len(sellerPacket.UnsignedTx.TxOut))
	}

	sellerIn := &sellerPacket.Inputs[0]
	if sellerIn.WitnessUtxo == nil {
		return nil, fmt.Errorf("%w: seller input carries no witness utxo", bitcoin.ErrMalformedSellerPSBT)
	}
	if err = VerifySellerSignature(sellerPacket); err != nil {
		return nil, err
	}

	payment, err := addresses.Parse(params.PaymentAddress, params.Network)
	if err != nil {
		return nil, err
	}
	paymentScript, err := payment.PayScript()
	if err != nil {
		return nil, err
	}

	receiveValue := params.ReceiveAddress
	if receiveValue == "" {
		receiveValue = params.PaymentAddress
	}
	receive, err := addresses.Parse(receiveValue, params.Network)
	if err != nil {
		return nil, err
	}
	if err = addresses.RequireTaproot(receive); err != nil {
		return nil, err
	}
	receiveScript, err := receive.PayScript()
	if err != nil {
		return nil, err
	}

	rate, err := b.chain.GetFeeRates(ctx, params.Network).ByLevel(params.FeeLevel)
	if err != nil {
		return nil, err
	}

	utxos, err := b.chain.GetUTXOs(ctx, params.PaymentAddress, params.Network)
	if err != nil {
		return nil, err
	}

	dummy := FindDummy(ctx, b.oracle, utxos, params.Network)
	needNewDummy := dummy == nil

	price := sellerPacket.UnsignedTx.TxOut[0].Value
	target := price
	newDummyCost := int64(0)
	if needNewDummy {
		newDummyCost = bitcoin.DummyValue
		target += newDummyCost
	}

	// ordinal, payout, optional fresh dummy. Change is covered by the
	// estimator's implicit extra output.
	voutCount := 2
	if needNewDummy {
		voutCount++
	}
	vinBase := 1
	if dummy != nil {
		vinBase = 2
	}

	selectParams := selectWithFeeParams{
		candidates: utxos,
		target:     target,
		vinBase:    vinBase,
		voutCount:  voutCount,
		rate:       rate,
		network:    params.Network,
	}
	if dummy != nil {
		selectParams.exclude = &dummy.OutPoint
	}
	selected, selectedTotal, fee, err := b.selectWithFee(ctx, selectParams)
	if err != nil {
		return nil, err
	}

	sellerOutPoint := bitcoin.OutPointFromWire(sellerPacket.UnsignedTx.TxIn[0].PreviousOutPoint)

	tx := wire.NewMsgTx(txVersion)
	tx.AddTxIn(wire.NewTxIn(sellerOutPoint.Wire(), nil, nil))
	if dummy != nil {
		tx.AddTxIn(wire.NewTxIn(dummy.OutPoint.Wire(), nil, nil))
	}
	for _, utxo := range selected {
		tx.AddTxIn(wire.NewTxIn(utxo.OutPoint.Wire(), nil, nil))
	}

	// the ordinal output must carry exactly the source value so the sat
	// keeps its identity.
	tx.AddTxOut(wire.NewTxOut(sellerIn.WitnessUtxo.Value, receiveScript))
	payout := sellerPacket.UnsignedTx.TxOut[0]
	tx.AddTxOut(wire.NewTxOut(payout.Value, payout.PkScript))
	if needNewDummy {
		tx.AddTxOut(wire.NewTxOut(bitcoin.DummyValue, paymentScript))
	}

	dummyValue := int64(0)
	if dummy != nil {
		dummyValue = dummy.Amount
	}
	change := dummyValue + selectedTotal - price - newDummyCost - fee
	if change < 0 {
		return nil, NewInsufficientError(price+newDummyCost+fee, dummyValue+selectedTotal)
	}
	if change > bitcoin.DustLimit {
		tx.AddTxOut(wire.NewTxOut(change, paymentScript))
	} else {
		// dust change is absorbed into the fee.
		fee += change
		change = 0
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}

	copySellerInput(&packet.Inputs[0], sellerIn)

	buyerInputs := packet.Inputs[1:]
	if dummy != nil {
		packet.Inputs[1].WitnessUtxo = wire.NewTxOut(dummy.Amount, dummy.Script)
		buyerInputs = packet.Inputs[2:]
	}
	for i, utxo := range selected {
		buyerInputs[i].WitnessUtxo = wire.NewTxOut(utxo.Amount, utxo.Script)
	}
	for i := 1; i < len(packet.Inputs); i++ {
		packet.Inputs[i].SighashType = txscript.SigHashAll
	}

	encoded, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}

	return &BuyerResult{
		Packet:         packet,
		PSBTBase64:     encoded,
		PriceSats:      price,
		FeeSats:        fee,
		FeeRate:        rate,
		ChangeSats:     change,
		DummyNew:       needNewDummy,
		SellerOutPoint: sellerOutPoint,
	}, nil
}

// copySellerInput transfers the seller's signature material byte for byte.
// The signature stays valid only while every copied field is untouched.
func copySellerInput(dst, src *psbt.PInput) {
	dst.WitnessUtxo = wire.NewTxOut(src.WitnessUtxo.Value, src.WitnessUtxo.PkScript)
	dst.SighashType = src.SighashType
	dst.TaprootKeySpendSig = src.TaprootKeySpendSig
	dst.TaprootScriptSpendSig = src.TaprootScriptSpendSig
	dst.TaprootLeafScript = src.TaprootLeafScript
	dst.TaprootInternalKey = src.TaprootInternalKey
	dst.TaprootMerkleRoot = src.TaprootMerkleRoot
	dst.PartialSigs = src.PartialSigs
	dst.FinalScriptWitness = src.FinalScriptWitness
	dst.RedeemScript = src.RedeemScript
	dst.WitnessScript = src.WitnessScript
}
