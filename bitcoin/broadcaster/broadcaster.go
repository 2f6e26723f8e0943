// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package broadcaster

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/chain"
	"ordmarket/bitcoin/txbuilder"
)

// Status describes the outcome of a broadcast attempt.
type Status string

const (
	// StatusBroadcast means the transaction was accepted by a backend.
	StatusBroadcast Status = "broadcast"
	// StatusAlreadyBroadcast means the transaction was already known to the network.
	StatusAlreadyBroadcast Status = "already_broadcast"
)

// ChainData is the chain access the broadcaster needs.
type ChainData interface {
	GetTx(ctx context.Context, txid string, network bitcoin.Network) (*chain.TxStatus, error)
	GetOutspend(ctx context.Context, outPoint bitcoin.OutPoint, network bitcoin.Network) (*chain.Outspend, error)
	Broadcast(ctx context.Context, rawTxHex string, network bitcoin.Network) (string, error)
}

// ConflictError reports an input already spent by a competing transaction.
type ConflictError struct {
	OutPoint bitcoin.OutPoint
	SpentBy  string
}

// Error returns error description.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("input %s already spent by %s", e.OutPoint, e.SpentBy)
}

// Is makes errors.Is match ErrMempoolConflict.
func (e *ConflictError) Is(target error) bool {
	return target == bitcoin.ErrMempoolConflict
}

// Result carries the broadcast outcome.
type Result struct {
	TxID        string `json:"txId"`
	ExplorerURL string `json:"explorerUrl"`
	Status      Status `json:"status"`
	Confirmed   bool   `json:"confirmed"`
}

// Broadcaster finalizes signed purchase PSBTs and submits them to the
// network. Re-submitting an already broadcast transaction reports
// success, so clients can safely retry.
type Broadcaster struct {
	chain ChainData
	log   *logrus.Logger
}

// New is a constructor for Broadcaster.
func New(chainData ChainData, log *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		chain: chainData,
		log:   log,
	}
}

// BroadcastPSBT finalizes the packet, checks the chain for prior
// broadcast and spent inputs, and submits the raw transaction.
func (b *Broadcaster) BroadcastPSBT(ctx context.Context, encodedPSBT string, network bitcoin.Network) (*Result, error) {
	packet, _, err := txbuilder.Parse(encodedPSBT)
	if err != nil {
		return nil, err
	}

	tx, err := txbuilder.CombineAndFinalize(packet)
	if err != nil {
		return nil, err
	}

	txid := tx.TxHash().String()
	explorerURL := network.ExplorerTxURL(txid)

	// a prior successful broadcast that the client never saw.
	if status, err := b.chain.GetTx(ctx, txid, network); err == nil {
		return &Result{
			TxID:        txid,
			ExplorerURL: explorerURL,
			Status:      StatusAlreadyBroadcast,
			Confirmed:   status.Confirmed,
		}, nil
	} else if !errors.Is(err, bitcoin.ErrNotFound) {
		b.log.WithError(err).WithField("txid", txid).Warn("broadcast preflight lookup failed")
	}

	for _, txIn := range tx.TxIn {
		outPoint := bitcoin.OutPointFromWire(txIn.PreviousOutPoint)

		outspend, err := b.chain.GetOutspend(ctx, outPoint, network)
		if err != nil {
			if !errors.Is(err, bitcoin.ErrNotFound) {
				b.log.WithError(err).WithField("outpoint", outPoint.String()).Warn("outspend lookup failed")
			}
			continue
		}
		if outspend.Spent && outspend.SpentBy != txid {
			return nil, &ConflictError{OutPoint: outPoint, SpentBy: outspend.SpentBy}
		}
	}

	var raw bytes.Buffer
	if err = tx.Serialize(&raw); err != nil {
		return nil, err
	}

	if _, err = b.chain.Broadcast(ctx, hex.EncodeToString(raw.Bytes()), network); err != nil {
		classified := classify(err)
		if errors.Is(classified, bitcoin.ErrAlreadyInChain) {
			return &Result{
				TxID:        txid,
				ExplorerURL: explorerURL,
				Status:      StatusAlreadyBroadcast,
				Confirmed:   false,
			}, nil
		}

		return nil, classified
	}

	return &Result{
		TxID:        txid,
		ExplorerURL: explorerURL,
		Status:      StatusBroadcast,
	}, nil
}

// classify maps backend rejection text onto sentinel errors. Unmatched
// rejections pass through untouched.
func classify(err error) error {
	var rejection *chain.BroadcastError
	if !errors.As(err, &rejection) {
		return err
	}

	body := strings.ToLower(rejection.Body)
	switch {
	case strings.Contains(body, "already in block chain"), strings.Contains(body, "txn-already-known"),
		strings.Contains(body, "txn-already-in-mempool"):
		return fmt.Errorf("%w: %v", bitcoin.ErrAlreadyInChain, err)
	case strings.Contains(body, "missingorspent"), strings.Contains(body, "bad-txns-inputs-missingorspent"):
		return fmt.Errorf("%w: %v", bitcoin.ErrInputsMissingOrSpent, err)
	case strings.Contains(body, "min relay fee"), strings.Contains(body, "insufficient fee"),
		strings.Contains(body, "mempool min fee"):
		return fmt.Errorf("%w: %v", bitcoin.ErrInsufficientFee, err)
	case strings.Contains(body, "script-verify-flag"), strings.Contains(body, "mandatory-script-verify"):
		return fmt.Errorf("%w: %v", bitcoin.ErrScriptVerifyFailed, err)
	case strings.Contains(body, "txn-mempool-conflict"):
		return fmt.Errorf("%w: %v", bitcoin.ErrMempoolConflict, err)
	default:
		return err
	}
}
