// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package marketplace

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/addresses"
	"ordmarket/bitcoin/broadcaster"
	"ordmarket/bitcoin/ord"
	"ordmarket/bitcoin/txbuilder"
)

// Ownership resolves inscription custody through external indexers.
type Ownership interface {
	ResolveOwner(ctx context.Context, id *ord.ID, network bitcoin.Network) (string, bitcoin.OutPoint, error)
	VerifyOwnership(ctx context.Context, id *ord.ID, claimedAddress string, network bitcoin.Network) (bool, error)
}

// Assembler builds and verifies exchange PSBTs.
type Assembler interface {
	BuildSellerPSBT(ctx context.Context, params txbuilder.SellerParams) (*txbuilder.SellerResult, error)
	BuildBuyerPSBT(ctx context.Context, params txbuilder.BuyerParams) (*txbuilder.BuyerResult, error)
	BuildDummyMintPSBT(ctx context.Context, params txbuilder.DummyMintParams) (*txbuilder.DummyMintResult, error)
}

// Publisher submits finalized transactions to the network.
type Publisher interface {
	BroadcastPSBT(ctx context.Context, encodedPSBT string, network bitcoin.Network) (*broadcaster.Result, error)
}

// Service implements the marketplace exchange operations over the
// listing store, the PSBT assembler, the inscription oracle, and the
// broadcaster.
type Service struct {
	store       *Store
	assembler   Assembler
	ownership   Ownership
	broadcaster Publisher
	log         *logrus.Logger
}

// NewService is a constructor for Service.
func NewService(store *Store, assembler Assembler, ownership Ownership, publisher Publisher, log *logrus.Logger) *Service {
	return &Service{
		store:       store,
		assembler:   assembler,
		ownership:   ownership,
		broadcaster: publisher,
		log:         log,
	}
}

// SellerRequest describes a seller PSBT generation or publication request.
type SellerRequest struct {
	InscriptionID       string
	InscriptionOutPoint bitcoin.OutPoint
	PriceSats           int64
	CustodyAddress      string
	PayoutAddress       string // optional, defaults to custody.
	Network             bitcoin.Network
}

// GenerateSellerPSBT verifies custody of the inscription and returns an
// unsigned seller PSBT for the wallet to sign.
func (s *Service) GenerateSellerPSBT(ctx context.Context, req SellerRequest) (*txbuilder.SellerResult, error) {
	if err := s.checkOwnership(ctx, req.InscriptionID, req.CustodyAddress, req.Network); err != nil {
		return nil, err
	}

	result, err := s.assembler.BuildSellerPSBT(ctx, txbuilder.SellerParams{
		InscriptionOutPoint: req.InscriptionOutPoint,
		PriceSats:           req.PriceSats,
		CustodyAddress:      req.CustodyAddress,
		PayoutAddress:       req.PayoutAddress,
		Network:             req.Network,
	})
	if err != nil {
		return nil, err
	}

	if result.Inscription != nil && result.Inscription.ContentType != "" {
		if err = s.store.SetInscriptionContentType(ctx, req.InscriptionID, result.Inscription.ContentType); err != nil {
			s.log.WithError(err).Warn("inscription content type cache update failed")
		}
	}

	return result, nil
}

// PublishRequest describes a signed listing publication.
type PublishRequest struct {
	SellerRequest
	SignedSellerPSBT string // base64 or hex.
}

// PublishListing validates the signed seller PSBT and records the
// listing. At most one active listing per inscription is admitted.
func (s *Service) PublishListing(ctx context.Context, req PublishRequest) (*Listing, error) {
	packet, _, err := txbuilder.Parse(req.SignedSellerPSBT)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bitcoin.ErrMalformedSellerPSBT, err)
	}

	payout := req.PayoutAddress
	if payout == "" {
		payout = req.CustodyAddress
	}
	payoutAddr, err := addresses.Parse(payout, req.Network)
	if err != nil {
		return nil, err
	}
	payoutScript, err := payoutAddr.PayScript()
	if err != nil {
		return nil, err
	}

	if err = txbuilder.VerifySellerPacket(packet, req.InscriptionOutPoint, req.PriceSats, payoutScript); err != nil {
		return nil, err
	}
	if err = txbuilder.VerifySellerSignature(packet); err != nil {
		return nil, err
	}

	if err = s.checkOwnership(ctx, req.InscriptionID, req.CustodyAddress, req.Network); err != nil {
		return nil, err
	}

	raw, err := txbuilder.Serialize(packet)
	if err != nil {
		return nil, err
	}

	listing := &Listing{
		InscriptionID:        req.InscriptionID,
		InscriptionOutPoint:  req.InscriptionOutPoint.String(),
		PriceSats:            req.PriceSats,
		SellerCustodyAddress: req.CustodyAddress,
		SellerPayoutAddress:  payout,
		SignedSellerPSBT:     raw,
		Network:              req.Network,
	}
	if err = s.store.CreateActive(ctx, listing); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"listing":     listing.ID,
		"inscription": listing.InscriptionID,
		"price":       listing.PriceSats,
	}).Info("listing published")

	return listing, nil
}

// CancelListing withdraws an active listing. Only the seller's custody
// or payout address may cancel.
func (s *Service) CancelListing(ctx context.Context, id uuid.UUID, requestingAddress string) error {
	listing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if requestingAddress != listing.SellerCustodyAddress && requestingAddress != listing.SellerPayoutAddress {
		return ErrNotAuthorized
	}

	return s.store.MarkCancelled(ctx, id)
}

// BuyerRequest describes a purchase PSBT generation request.
type BuyerRequest struct {
	ListingID      uuid.UUID
	PaymentAddress string
	ReceiveAddress string // optional, defaults to payment.
	FeeLevel       bitcoin.FeeLevel
	Network        bitcoin.Network
}

// GenerateBuyerPSBT extends the listing's signed seller PSBT into a
// complete purchase transaction for the buyer's wallet to sign.
func (s *Service) GenerateBuyerPSBT(ctx context.Context, req BuyerRequest) (*txbuilder.BuyerResult, error) {
	listing, err := s.store.Get(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}

	if listing.Status == StatusActive && time.Now().After(listing.ExpiresAt) {
		if err = s.store.MarkExpired(ctx, listing.ID); err != nil && !errors.Is(err, ErrNotActive) {
			return nil, err
		}
		listing.Status = StatusExpired
	}
	if listing.Status != StatusActive {
		return nil, ErrNotActive
	}

	if listing.Network != req.Network {
		return nil, fmt.Errorf("%w: listing is on %s, request is for %s",
			bitcoin.ErrNetworkMismatch, listing.Network, req.Network)
	}

	receive := req.ReceiveAddress
	if receive == "" {
		receive = req.PaymentAddress
	}
	for _, buyerAddr := range []string{req.PaymentAddress, receive} {
		if buyerAddr == listing.SellerCustodyAddress || buyerAddr == listing.SellerPayoutAddress {
			return nil, ErrSelfBuy
		}
	}

	return s.assembler.BuildBuyerPSBT(ctx, txbuilder.BuyerParams{
		SellerPSBT:     base64.StdEncoding.EncodeToString(listing.SignedSellerPSBT),
		PaymentAddress: req.PaymentAddress,
		ReceiveAddress: req.ReceiveAddress,
		FeeLevel:       req.FeeLevel,
		Network:        req.Network,
	})
}

// Broadcast finalizes and submits a buyer-signed purchase PSBT. On
// success the matching listing is marked sold on a best-effort basis.
func (s *Service) Broadcast(ctx context.Context, encodedPSBT string, network bitcoin.Network) (*broadcaster.Result, error) {
	packet, _, err := txbuilder.Parse(encodedPSBT)
	if err != nil {
		return nil, err
	}

	result, err := s.broadcaster.BroadcastPSBT(ctx, encodedPSBT, network)
	if err != nil {
		return nil, err
	}

	if len(packet.UnsignedTx.TxIn) > 0 {
		s.markSoldByOutPoint(ctx, bitcoin.OutPointFromWire(packet.UnsignedTx.TxIn[0].PreviousOutPoint), network)
	}

	return result, nil
}

// DummyMintRequest describes a dummy UTXO minting request.
type DummyMintRequest struct {
	PayerAddress string
	Count        int
	FeeLevel     bitcoin.FeeLevel
	Network      bitcoin.Network
}

// GenerateDummyPSBT builds a PSBT minting fresh dummy outputs for the payer.
func (s *Service) GenerateDummyPSBT(ctx context.Context, req DummyMintRequest) (*txbuilder.DummyMintResult, error) {
	return s.assembler.BuildDummyMintPSBT(ctx, txbuilder.DummyMintParams{
		PayerAddress: req.PayerAddress,
		Count:        req.Count,
		FeeLevel:     req.FeeLevel,
		Network:      req.Network,
	})
}

// GetListing returns the listing by id.
func (s *Service) GetListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return s.store.Get(ctx, id)
}

// ActiveListings returns open listings on the network.
func (s *Service) ActiveListings(ctx context.Context, network bitcoin.Network) ([]Listing, error) {
	return s.store.ActiveListings(ctx, network)
}

// ExpireStale sweeps listings past their validity window.
func (s *Service) ExpireStale(ctx context.Context) {
	expired, err := s.store.ExpireOlderThan(ctx, time.Now())
	if err != nil {
		s.log.WithError(err).Warn("listing expiry sweep failed")
		return
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("listings expired")
	}
}

// checkOwnership confirms the inscription is custodied by the claimed
// address and refreshes the metadata cache.
func (s *Service) checkOwnership(ctx context.Context, inscriptionID, claimedAddress string, network bitcoin.Network) error {
	id, err := ord.NewIDFromString(inscriptionID)
	if err != nil {
		return err
	}

	owner, outPoint, err := s.ownership.ResolveOwner(ctx, id, network)
	if err != nil {
		return err
	}
	if owner != claimedAddress {
		return fmt.Errorf("%w: inscription %s is custodied by %s", bitcoin.ErrNotOwner, inscriptionID, owner)
	}

	if err = s.store.UpsertInscriptionMeta(ctx, &InscriptionMeta{
		InscriptionID: inscriptionID,
		OutPoint:      outPoint.String(),
		OwnerAddress:  owner,
	}); err != nil {
		s.log.WithError(err).Warn("inscription meta cache update failed")
	}

	return nil
}

// markSoldByOutPoint finds the active listing selling the given outpoint
// and marks it sold. Broadcast success never depends on this.
// Sold is recorded at broadcast acceptance, not confirmation. A
// transaction later evicted from the mempool leaves the listing sold
// with the ordinal unspent, the seller resolves that by relisting.
func (s *Service) markSoldByOutPoint(ctx context.Context, outPoint bitcoin.OutPoint, network bitcoin.Network) {
	listings, err := s.store.ActiveListings(ctx, network)
	if err != nil {
		s.log.WithError(err).Warn("active listing scan failed after broadcast")
		return
	}

	for i := range listings {
		if listings[i].InscriptionOutPoint == outPoint.String() {
			if err = s.store.MarkSold(ctx, listings[i].ID); err != nil {
				s.log.WithError(err).WithField("listing", listings[i].ID).Warn("mark sold failed")
			}
			return
		}
	}
}
