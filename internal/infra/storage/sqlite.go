package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"profit_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage defines the interface for data persistence
type Storage struct {
	db *gorm.DB
}

// NewStorage creates a new SQLite storage instance at path.
func NewStorage(path string) (*Storage, error) {
	// Ensure directory exists
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Algorithm{},
		&domain.Coin{},
		&domain.Machine{},
		&domain.VendorOffer{},
		&domain.FxRate{},
		&domain.StoredPrice{},
		&domain.ProfitabilitySnapshot{},
	)
}

// ======================================================================================
// Catalog Reads
// ======================================================================================

// Machines returns the machines to compute, with offers and permitted
// coins preloaded. An empty ids slice means the whole catalog.
func (s *Storage) Machines(ids []uint) ([]domain.Machine, error) {
	var machines []domain.Machine
	q := s.db.Preload("Offers").Preload("PermittedCoins").Order("id")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	err := q.Find(&machines).Error
	return machines, err
}

// Algorithms returns all algorithms keyed by id.
func (s *Storage) Algorithms() (map[uint]domain.Algorithm, error) {
	var algos []domain.Algorithm
	if err := s.db.Find(&algos).Error; err != nil {
		return nil, err
	}
	result := make(map[uint]domain.Algorithm, len(algos))
	for _, a := range algos {
		result[a.ID] = a
	}
	return result, nil
}

// CoinsByAlgorithm returns all coins grouped by their algorithm id.
func (s *Storage) CoinsByAlgorithm() (map[uint][]domain.Coin, error) {
	var coins []domain.Coin
	if err := s.db.Order("id").Find(&coins).Error; err != nil {
		return nil, err
	}
	result := make(map[uint][]domain.Coin)
	for _, c := range coins {
		result[c.AlgorithmID] = append(result[c.AlgorithmID], c)
	}
	return result, nil
}

// FxRates returns the currency conversion table keyed by currency code.
func (s *Storage) FxRates() (map[string]domain.FxRate, error) {
	var rates []domain.FxRate
	if err := s.db.Find(&rates).Error; err != nil {
		return nil, err
	}
	result := make(map[string]domain.FxRate, len(rates))
	for _, r := range rates {
		result[r.Currency] = r
	}
	return result, nil
}

// ======================================================================================
// Reference Price Operations
// ======================================================================================

// LastPrice retrieves the last stored reference price for an asset.
func (s *Storage) LastPrice(asset string) (*domain.StoredPrice, error) {
	var price domain.StoredPrice
	err := s.db.First(&price, "asset = ?", asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &price, err
}

// SavePrice creates or updates the stored reference price for an asset.
func (s *Storage) SavePrice(price *domain.StoredPrice) error {
	return s.db.Save(price).Error
}

// ======================================================================================
// Snapshot Operations
// ======================================================================================

// InsertSnapshots appends snapshot rows in bounded chunks. Rows whose
// (machine_id, computed_at) pair already exists are silently skipped so a
// run can be safely re-triggered for the same hour bucket.
// Returns the number of rows actually written.
func (s *Storage) InsertSnapshots(snapshots []domain.ProfitabilitySnapshot, batchSize int) (int64, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "machine_id"}, {Name: "computed_at"}},
		DoNothing: true,
	}).CreateInBatches(snapshots, batchSize)

	return tx.RowsAffected, tx.Error
}

// SnapshotsForMachine returns a machine's snapshots, newest first.
func (s *Storage) SnapshotsForMachine(machineID uint, limit int) ([]domain.ProfitabilitySnapshot, error) {
	var snapshots []domain.ProfitabilitySnapshot
	q := s.db.Where("machine_id = ?", machineID).Order("computed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&snapshots).Error
	return snapshots, err
}

// LatestSnapshots returns every snapshot of the most recent bucket.
func (s *Storage) LatestSnapshots() ([]domain.ProfitabilitySnapshot, error) {
	var newest domain.ProfitabilitySnapshot
	err := s.db.Order("computed_at DESC").First(&newest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshots []domain.ProfitabilitySnapshot
	err = s.db.Where("computed_at = ?", newest.ComputedAt).Order("machine_id").Find(&snapshots).Error
	return snapshots, err
}

// DB exposes the underlying handle for test seeding.
func (s *Storage) DB() *gorm.DB {
	return s.db
}
