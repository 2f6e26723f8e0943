// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/addresses"
	"ordmarket/bitcoin/ord"
)

const (
	// txVersion defines transaction version for this builder.
	txVersion int32 = 2
	// ordinalSighashType commits the seller to input 0 and output 0 only,
	// letting buyers append inputs and outputs at higher indexes without
	// invalidating the signature.
	ordinalSighashType = txscript.SigHashSingle | txscript.SigHashAnyOneCanPay
	// maxDummyMintCount bounds outputs minted by one dummy PSBT.
	maxDummyMintCount = 10
)

// ChainData is the chain access the assembler needs.
type ChainData interface {
	GetTxHex(ctx context.Context, txid string, network bitcoin.Network) (string, error)
	GetUTXOs(ctx context.Context, address string, network bitcoin.Network) ([]bitcoin.UTXO, error)
	GetFeeRates(ctx context.Context, network bitcoin.Network) bitcoin.FeeRates
}

// Builder provides marketplace PSBT assembly logic.
type Builder struct {
	chain  ChainData
	oracle InscriptionOracle
}

// NewBuilder is a constructor for Builder.
func NewBuilder(chain ChainData, oracle InscriptionOracle) *Builder {
	return &Builder{
		chain:  chain,
		oracle: oracle,
	}
}

// SellerParams describes data needed to build a seller listing PSBT.
type SellerParams struct {
	InscriptionOutPoint bitcoin.OutPoint
	PriceSats           int64
	CustodyAddress      string // taproot address holding the inscription.
	PayoutAddress       string // optional, defaults to custody.
	Network             bitcoin.Network
}

// SellerResult carries the unsigned seller PSBT and its key values.
// Inscription holds the envelope recovered from the parent reveal
// witness when the listed output is the reveal output, nil otherwise.
type SellerResult struct {
	Packet       *psbt.Packet
	PSBTBase64   string
	PriceSats    int64
	OrdinalValue int64 // value in satoshi of the inscribed output.
	Inscription  *ord.Envelope
}

// BuildSellerPSBT constructs a single-input single-output PSBT selling
// the inscribed output for the asked price. Input 0 carries
// SIGHASH_SINGLE|ANYONECANPAY so that a buyer can extend the transaction
// around it. Signing is performed by the seller's wallet externally.
func (b *Builder) BuildSellerPSBT(ctx context.Context, params SellerParams) (*SellerResult, error) {
	if params.PriceSats <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", bitcoin.ErrPSBTPriceMismatch)
	}

	custody, err := addresses.Parse(params.CustodyAddress, params.Network)
	if err != nil {
		return nil, err
	}
	if err = addresses.RequireTaproot(custody); err != nil {
		return nil, err
	}

	payoutValue := params.PayoutAddress
	if payoutValue == "" {
		payoutValue = params.CustodyAddress
	}
	payout, err := addresses.Parse(payoutValue, params.Network)
	if err != nil {
		return nil, err
	}

	payoutScript, err := payout.PayScript()
	if err != nil {
		return nil, err
	}

	parent, err := b.fetchParentTx(ctx, params.InscriptionOutPoint, params.Network)
	if err != nil {
		return nil, err
	}
	ordinalOut := parent.TxOut[params.InscriptionOutPoint.Index]

	tx := wire.NewMsgTx(txVersion)
	tx.AddTxIn(wire.NewTxIn(params.InscriptionOutPoint.Wire(), nil, nil))
	tx.AddTxOut(wire.NewTxOut(params.PriceSats, payoutScript))

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}

	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(ordinalOut.Value, ordinalOut.PkScript)
	packet.Inputs[0].SighashType = ordinalSighashType

	encoded, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}

	return &SellerResult{
		Packet:       packet,
		PSBTBase64:   encoded,
		PriceSats:    params.PriceSats,
		OrdinalValue: ordinalOut.Value,
		Inscription:  revealEnvelope(parent),
	}, nil
}

// revealEnvelope walks the parent transaction's witnesses for an
// inscription envelope. A hit means the listed output comes straight
// from its reveal transaction, its envelope then feeds the listing's
// metadata cache.
func revealEnvelope(parent *wire.MsgTx) *ord.Envelope {
	for _, txIn := range parent.TxIn {
		for _, element := range txIn.Witness {
			if !ord.ContainsEnvelope(element) {
				continue
			}

			envelope, err := ord.ParseEnvelope(element)
			if err != nil {
				continue
			}

			return envelope
		}
	}

	return nil
}

// DummyMintParams describes data needed to mint fresh dummy outputs.
type DummyMintParams struct {
	PayerAddress string
	Count        int
	FeeLevel     bitcoin.FeeLevel
	Network      bitcoin.Network
}

// DummyMintResult carries the dummy minting PSBT and its cost breakdown.
type DummyMintResult struct {
	Packet     *psbt.Packet
	PSBTBase64 string
	FeeSats    int64
	FeeRate    int64
	ChangeSats int64
}

// BuildDummyMintPSBT constructs a PSBT splitting the payer's cardinal
// funds into count dummy outputs plus change.
func (b *Builder) BuildDummyMintPSBT(ctx context.Context, params DummyMintParams) (*DummyMintResult, error) {
	if params.Count < 1 || params.Count > maxDummyMintCount {
		return nil, fmt.Errorf("dummy count must be in [1, %d], got %d", maxDummyMintCount, params.Count)
	}

	payer, err := addresses.Parse(params.PayerAddress, params.Network)
	if err != nil {
		return nil, err
	}

	payerScript, err := payer.PayScript()
	if err != nil {
		return nil, err
	}

	rate, err := b.chain.GetFeeRates(ctx, params.Network).ByLevel(params.FeeLevel)
	if err != nil {
		return nil, err
	}

	utxos, err := b.chain.GetUTXOs(ctx, params.PayerAddress, params.Network)
	if err != nil {
		return nil, err
	}

	target := int64(params.Count) * bitcoin.DummyValue
	selected, total, fee, err := b.selectWithFee(ctx, selectWithFeeParams{
		candidates: utxos,
		target:     target,
		vinBase:    0,
		voutCount:  params.Count,
		rate:       rate,
		network:    params.Network,
	})
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(txVersion)
	for _, utxo := range selected {
		tx.AddTxIn(wire.NewTxIn(utxo.OutPoint.Wire(), nil, nil))
	}
	for i := 0; i < params.Count; i++ {
		tx.AddTxOut(wire.NewTxOut(bitcoin.DummyValue, payerScript))
	}

	change := total - target - fee
	if change < 0 {
		return nil, NewInsufficientError(target+fee, total)
	}
	if change > bitcoin.DustLimit {
		tx.AddTxOut(wire.NewTxOut(change, payerScript))
	} else {
		// dust change is absorbed into the fee.
		fee += change
		change = 0
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}
	for idx, utxo := range selected {
		packet.Inputs[idx].WitnessUtxo = wire.NewTxOut(utxo.Amount, utxo.Script)
		packet.Inputs[idx].SighashType = txscript.SigHashAll
	}

	encoded, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}

	return &DummyMintResult{
		Packet:     packet,
		PSBTBase64: encoded,
		FeeSats:    fee,
		FeeRate:    rate,
		ChangeSats: change,
	}, nil
}

// VerifySellerPacket checks listing admission structure: exactly one
// input spending the declared outpoint under the ordinal sighash, and
// exactly one output paying the declared price to the declared payout
// script.
func VerifySellerPacket(packet *psbt.Packet, inscriptionOutPoint bitcoin.OutPoint, priceSats int64, payoutScript []byte) error {
	if len(packet.Inputs) != 1 || len(packet.UnsignedTx.TxIn) != 1 {
		return fmt.Errorf("%w: want exactly 1 input, got %d", bitcoin.ErrMalformedSellerPSBT, len(packet.UnsignedTx.TxIn))
	}
	if len(packet.Outputs) != 1 || len(packet.UnsignedTx.TxOut) != 1 {
		return fmt.Errorf("%w: want exactly 1 output, got %d", bitcoin.ErrMalformedSellerPSBT, len(packet.UnsignedTx.TxOut))
	}

	if packet.UnsignedTx.TxIn[0].PreviousOutPoint != *inscriptionOutPoint.Wire() {
		return fmt.Errorf("%w: input spends %s, want %s", bitcoin.ErrMalformedSellerPSBT,
			packet.UnsignedTx.TxIn[0].PreviousOutPoint, inscriptionOutPoint)
	}

	if packet.Inputs[0].WitnessUtxo == nil {
		return fmt.Errorf("%w: input 0 carries no witness utxo", bitcoin.ErrMalformedSellerPSBT)
	}

	if packet.Inputs[0].SighashType != ordinalSighashType {
		return fmt.Errorf("%w: input 0 sighash type is %d, want SINGLE|ANYONECANPAY", bitcoin.ErrMalformedSellerPSBT,
			packet.Inputs[0].SighashType)
	}

	if packet.UnsignedTx.TxOut[0].Value != priceSats {
		return fmt.Errorf("%w: output pays %d sat, declared price is %d sat", bitcoin.ErrPSBTPriceMismatch,
			packet.UnsignedTx.TxOut[0].Value, priceSats)
	}

	if !bytes.Equal(packet.UnsignedTx.TxOut[0].PkScript, payoutScript) {
		return fmt.Errorf("%w: output pays a script other than the declared payout address",
			bitcoin.ErrMalformedSellerPSBT)
	}

	return nil
}

// VerifySellerSignature checks the seller input carries signature
// material and, for the key-path case, that the schnorr signature
// verifies over the packet's own sighash. The single-input single-output
// seller packet commits to exactly what SINGLE|ANYONECANPAY covers, so
// the digest computed here matches the one the assembled purchase
// transaction replays on chain.
func VerifySellerSignature(packet *psbt.Packet) error {
	if len(packet.Inputs) != 1 {
		return fmt.Errorf("%w: want exactly 1 input, got %d", bitcoin.ErrMalformedSellerPSBT, len(packet.Inputs))
	}

	input := &packet.Inputs[0]
	if !InputSigned(input) {
		return bitcoin.ErrSellerUnsigned
	}
	if input.WitnessUtxo == nil {
		return fmt.Errorf("%w: input 0 carries no witness utxo", bitcoin.ErrMalformedSellerPSBT)
	}

	sig := input.TaprootKeySpendSig
	if len(sig) == 0 {
		// script-path and partial signatures lack the spend context to
		// replay here, presence is the admission bar for those.
		return nil
	}

	switch len(sig) {
	case schnorr.SignatureSize:
	case schnorr.SignatureSize + 1:
		if txscript.SigHashType(sig[schnorr.SignatureSize]) != input.SighashType {
			return fmt.Errorf("%w: signature sighash byte disagrees with the declared type",
				bitcoin.ErrMalformedSellerPSBT)
		}
		sig = sig[:schnorr.SignatureSize]
	default:
		return fmt.Errorf("%w: key spend signature is %d bytes", bitcoin.ErrMalformedSellerPSBT, len(sig))
	}

	script := input.WitnessUtxo.PkScript
	if len(script) != 34 || script[0] != txscript.OP_1 || script[1] != txscript.OP_DATA_32 {
		return fmt.Errorf("%w: key spend signature over a non-taproot output", bitcoin.ErrMalformedSellerPSBT)
	}

	outputKey, err := schnorr.ParsePubKey(script[2:34])
	if err != nil {
		return fmt.Errorf("%w: %v", bitcoin.ErrMalformedSellerPSBT, err)
	}

	parsedSig, err := schnorr.ParseSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", bitcoin.ErrMalformedSellerPSBT, err)
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(script, input.WitnessUtxo.Value)
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
	digest, err := txscript.CalcTaprootSignatureHash(sigHashes, input.SighashType, packet.UnsignedTx, 0, fetcher)
	if err != nil {
		return fmt.Errorf("%w: %v", bitcoin.ErrMalformedSellerPSBT, err)
	}

	if !parsedSig.Verify(digest, outputKey) {
		return fmt.Errorf("%w: key spend signature does not verify", bitcoin.ErrSellerUnsigned)
	}

	return nil
}

// InputSigned returns true if the input carries any signature material:
// a taproot key-path signature, taproot script-path signatures,
// traditional partial signatures, or an already final witness.
func InputSigned(input *psbt.PInput) bool {
	return len(input.TaprootKeySpendSig) > 0 ||
		len(input.TaprootScriptSpendSig) > 0 ||
		len(input.PartialSigs) > 0 ||
		len(input.FinalScriptWitness) > 0
}

// EstimateFee returns the coarse fee for the planned transaction shape.
// The extra output accounts for change. The formula overestimates
// taproot witnesses and the change output absorbs the error.
func EstimateFee(vinCount, voutCount int, rate int64) int64 {
	return (10 + 180*int64(vinCount) + 34*int64(voutCount+1)) * rate
}

// selectWithFeeParams describes one fee-aware selection run.
type selectWithFeeParams struct {
	candidates []bitcoin.UTXO
	exclude    *bitcoin.OutPoint // outpoint reserved outside the selection, if any.
	target     int64
	vinBase    int // inputs present regardless of selection.
	voutCount  int // planned outputs, excluding change.
	rate       int64
	network    bitcoin.Network
}

// selectWithFee runs cardinal selection with the fee recomputed from the
// actual input count, reselecting while the estimate grows.
func (b *Builder) selectWithFee(ctx context.Context, params selectWithFeeParams) (selected []bitcoin.UTXO, total, fee int64, err error) {
	candidates := params.candidates
	if params.exclude != nil {
		candidates = make([]bitcoin.UTXO, 0, len(params.candidates))
		for _, utxo := range params.candidates {
			if utxo.OutPoint != *params.exclude {
				candidates = append(candidates, utxo)
			}
		}
	}

	fee = EstimateFee(params.vinBase+1, params.voutCount, params.rate)
	for {
		selected, total, err = SelectCardinal(ctx, b.oracle, SelectParams{
			Candidates:    candidates,
			TargetSats:    params.target,
			FeeBufferSats: fee,
			Network:       params.network,
		})
		if err != nil {
			return nil, 0, 0, err
		}

		actual := EstimateFee(params.vinBase+len(selected), params.voutCount, params.rate)
		if actual <= fee {
			return selected, total, actual, nil
		}

		fee = actual
	}
}

// fetchParentTx fetches the transaction holding the outpoint, checking
// the referenced output exists.
func (b *Builder) fetchParentTx(ctx context.Context, outPoint bitcoin.OutPoint, network bitcoin.Network) (*wire.MsgTx, error) {
	rawHex, err := b.chain.GetTxHex(ctx, outPoint.TxID(), network)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bitcoin.ErrChainLookupFailed, err)
	}

	parent := new(wire.MsgTx)
	if err = parent.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", bitcoin.ErrChainLookupFailed, err)
	}

	if int(outPoint.Index) >= len(parent.TxOut) {
		return nil, fmt.Errorf("%w: output %s, transaction has %d outputs", bitcoin.ErrNotFound, outPoint, len(parent.TxOut))
	}

	return parent, nil
}
