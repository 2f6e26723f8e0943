// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"context"
	"sort"

	"ordmarket/bitcoin"
)

// InscriptionOracle is the narrow classification dependency of the selector.
type InscriptionOracle interface {
	ContainsInscription(ctx context.Context, outPoint bitcoin.OutPoint, network bitcoin.Network) bool
}

// SelectParams describes one cardinal selection run.
type SelectParams struct {
	Candidates    []bitcoin.UTXO
	TargetSats    int64
	FeeBufferSats int64
	Network       bitcoin.Network
}

// SelectCardinal picks cardinal UTXOs to cover target plus fee buffer
// with a largest-first greedy pass. Outputs at or below the dummy value
// are never touched, they are either dust or reserved dummies. Inscribed
// outputs are skipped.
func SelectCardinal(ctx context.Context, oracle InscriptionOracle, params SelectParams) ([]bitcoin.UTXO, int64, error) {
	candidates := make([]bitcoin.UTXO, 0, len(params.Candidates))
	for _, utxo := range params.Candidates {
		if utxo.Amount > bitcoin.DummyValue {
			candidates = append(candidates, utxo)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Amount > candidates[j].Amount
	})

	var (
		required = params.TargetSats + params.FeeBufferSats
		selected = make([]bitcoin.UTXO, 0, len(candidates))
		total    int64
	)
	for _, candidate := range candidates {
		if oracle.ContainsInscription(ctx, candidate.OutPoint, params.Network) {
			continue
		}

		selected = append(selected, candidate)
		total += candidate.Amount
		if total >= required {
			return selected, total, nil
		}
	}

	return nil, 0, NewInsufficientError(required, total)
}

// FindDummy returns the first non-inscribed UTXO whose value lies in the
// dummy range, or nil if the address holds none.
func FindDummy(ctx context.Context, oracle InscriptionOracle, candidates []bitcoin.UTXO, network bitcoin.Network) *bitcoin.UTXO {
	for idx := range candidates {
		if !candidates[idx].IsDummy() {
			continue
		}

		if oracle.ContainsInscription(ctx, candidates[idx].OutPoint, network) {
			continue
		}

		return &candidates[idx]
	}

	return nil
}
