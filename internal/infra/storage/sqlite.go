package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"risk_go/internal/domain"
)

// Storage persists webhook signals and the pending-trade queue the execution
// sweep consumes.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
func NewStorage(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure-Go SQLite driver, no cgo.
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Signal{}, &domain.PendingTrade{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// SaveSignal stores one received signal.
func (s *Storage) SaveSignal(sig *domain.Signal) error {
	return s.db.Create(sig).Error
}

// CreatePendingTrade enqueues a trade for the execution sweep.
func (s *Storage) CreatePendingTrade(t *domain.PendingTrade) error {
	return s.db.Create(t).Error
}

// GetPendingTrades returns all trades still awaiting execution, oldest first.
func (s *Storage) GetPendingTrades() ([]domain.PendingTrade, error) {
	var trades []domain.PendingTrade
	err := s.db.Where("status = ?", domain.TradeStatusPending).
		Order("created_at asc").
		Find(&trades).Error
	return trades, err
}

// GetPendingTrade fetches one pending trade by id, nil when absent.
func (s *Storage) GetPendingTrade(id string) (*domain.PendingTrade, error) {
	var trade domain.PendingTrade
	err := s.db.First(&trade, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &trade, err
}

// MarkTradePlaced records a successful execution.
func (s *Storage) MarkTradePlaced(id string) error {
	return s.setTradeStatus(id, domain.TradeStatusPlaced, "")
}

// MarkTradeFailed records a failed execution with its reason.
func (s *Storage) MarkTradeFailed(id, reason string) error {
	return s.setTradeStatus(id, domain.TradeStatusFailed, reason)
}

func (s *Storage) setTradeStatus(id, status, reason string) error {
	return s.db.Model(&domain.PendingTrade{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      status,
			"fail_reason": reason,
			"updated_at":  time.Now(),
		}).Error
}

// Close closes the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
