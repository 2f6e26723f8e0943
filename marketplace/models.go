// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package marketplace

import (
	"time"

	"github.com/google/uuid"

	"ordmarket/bitcoin"
)

// ListingStatus describes the lifecycle state of a listing.
type ListingStatus string

const (
	// StatusActive means the listing is open for purchase.
	StatusActive ListingStatus = "active"
	// StatusSold means the purchase transaction was broadcast.
	StatusSold ListingStatus = "sold"
	// StatusCancelled means the seller withdrew the listing.
	StatusCancelled ListingStatus = "cancelled"
	// StatusExpired means the listing outlived its validity window.
	StatusExpired ListingStatus = "expired"
)

// Listing holds one published sale offer. The signed seller PSBT bytes
// are immutable once stored. ActiveKey mirrors InscriptionID while the
// listing is active and is NULL otherwise, so the unique index admits at
// most one active listing per inscription while keeping any number of
// sold or cancelled rows.
type Listing struct {
	ID                   uuid.UUID       `gorm:"primaryKey;type:text" json:"id"`
	InscriptionID        string          `gorm:"not null;index" json:"inscriptionId"`
	InscriptionOutPoint  string          `gorm:"not null" json:"inscriptionOutpoint"`
	PriceSats            int64           `gorm:"not null" json:"priceSats"`
	SellerCustodyAddress string          `gorm:"not null" json:"sellerCustodyAddress"`
	SellerPayoutAddress  string          `gorm:"not null" json:"sellerPayoutAddress"`
	SignedSellerPSBT     []byte          `gorm:"not null" json:"-"`
	Network              bitcoin.Network `gorm:"not null" json:"network"`
	Status               ListingStatus   `gorm:"not null;index" json:"status"`
	ActiveKey            *string         `gorm:"uniqueIndex" json:"-"`
	CreatedAt            time.Time       `gorm:"not null" json:"createdAt"`
	ExpiresAt            time.Time       `gorm:"not null" json:"expiresAt"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updatedAt"`
}

// InscriptionMeta caches oracle lookups for display. The exchange logic
// never reads it, the oracle stays the source of truth.
type InscriptionMeta struct {
	InscriptionID string    `gorm:"primaryKey" json:"inscriptionId"`
	OutPoint      string    `gorm:"not null" json:"outpoint"`
	OwnerAddress  string    `gorm:"not null" json:"ownerAddress"`
	ContentType   string    `json:"contentType,omitempty"` // from the reveal envelope, when seen.
	FetchedAt     time.Time `gorm:"not null" json:"fetchedAt"`
}
