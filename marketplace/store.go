// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ordmarket/bitcoin"
)

var (
	// ErrAlreadyListed indicates an active listing already exists for the inscription.
	ErrAlreadyListed = errors.New("inscription is already listed")
	// ErrNotActive indicates the listing is not in the active state.
	ErrNotActive = errors.New("listing is not active")
	// ErrSelfBuy indicates the buyer addresses belong to the seller.
	ErrSelfBuy = errors.New("buyer address belongs to the seller")
	// ErrNotAuthorized indicates the requester does not own the listing.
	ErrNotAuthorized = errors.New("requester is not authorized for this listing")
)

// Store persists listings in sqlite. All concurrency coordination rides
// on the ActiveKey unique index and compare-and-set status updates.
type Store struct {
	db *gorm.DB
}

// OpenStore opens the sqlite database and migrates the schema.
// Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_busy_timeout=5000", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// sqlite serializes writers anyway, and a pool of one keeps every
	// in-memory connection on the same database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err = db.AutoMigrate(&Listing{}, &InscriptionMeta{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// CreateActive inserts a new active listing. A concurrent active listing
// for the same inscription trips the ActiveKey unique index and maps to
// ErrAlreadyListed.
func (s *Store) CreateActive(ctx context.Context, listing *Listing) error {
	now := time.Now().UTC()

	listing.ID = uuid.New()
	listing.Status = StatusActive
	activeKey := listing.InscriptionID
	listing.ActiveKey = &activeKey
	listing.CreatedAt = now
	listing.ExpiresAt = now.Add(bitcoin.ListingExpiry)
	listing.UpdatedAt = now

	err := s.db.WithContext(ctx).Create(listing).Error
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyListed
		}

		return err
	}

	return nil
}

// Get returns the listing by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Listing, error) {
	var listing Listing
	err := s.db.WithContext(ctx).First(&listing, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bitcoin.ErrNotFound
		}

		return nil, err
	}

	return &listing, nil
}

// ActiveListings returns all active listings on the given network,
// newest first.
func (s *Store) ActiveListings(ctx context.Context, network bitcoin.Network) ([]Listing, error) {
	var listings []Listing
	err := s.db.WithContext(ctx).
		Where("status = ? AND network = ?", StatusActive, network).
		Order("created_at DESC").
		Find(&listings).Error

	return listings, err
}

// MarkSold transitions an active listing to sold.
func (s *Store) MarkSold(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusSold)
}

// MarkCancelled transitions an active listing to cancelled.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusCancelled)
}

// MarkExpired transitions an active listing to expired.
func (s *Store) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusExpired)
}

// transition is a compare-and-set on status, releasing the ActiveKey so
// the inscription can be listed again.
func (s *Store) transition(ctx context.Context, id uuid.UUID, to ListingStatus) error {
	result := s.db.WithContext(ctx).Model(&Listing{}).
		Where("id = ? AND status = ?", id, StatusActive).
		Updates(map[string]any{
			"status":     to,
			"active_key": nil,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotActive
	}

	return nil
}

// ExpireOlderThan expires every active listing whose validity window
// ended before now. Returns the number of expired listings.
func (s *Store) ExpireOlderThan(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Listing{}).
		Where("status = ? AND expires_at < ?", StatusActive, now).
		Updates(map[string]any{
			"status":     StatusExpired,
			"active_key": nil,
			"updated_at": now.UTC(),
		})

	return result.RowsAffected, result.Error
}

// UpsertInscriptionMeta refreshes the cached oracle view of an inscription.
func (s *Store) UpsertInscriptionMeta(ctx context.Context, meta *InscriptionMeta) error {
	meta.FetchedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Save(meta).Error
}

// SetInscriptionContentType records the content type recovered from the
// inscription's reveal envelope on the cached row.
func (s *Store) SetInscriptionContentType(ctx context.Context, inscriptionID, contentType string) error {
	return s.db.WithContext(ctx).Model(&InscriptionMeta{}).
		Where("inscription_id = ?", inscriptionID).
		Update("content_type", contentType).Error
}

// GetInscriptionMeta returns the cached oracle view, if any.
func (s *Store) GetInscriptionMeta(ctx context.Context, inscriptionID string) (*InscriptionMeta, error) {
	var meta InscriptionMeta
	err := s.db.WithContext(ctx).First(&meta, "inscription_id = ?", inscriptionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bitcoin.ErrNotFound
		}

		return nil, err
	}

	return &meta, nil
}
