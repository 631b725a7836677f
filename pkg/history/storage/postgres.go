package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mercator-hq/pricegate/pkg/pricing"
)

// historyRow is the gorm model for the price_history table.
type historyRow struct {
	ID         string    `gorm:"type:varchar(64);primaryKey"`
	ProductID  string    `gorm:"type:varchar(128);not null;index:idx_history_product_ts,priority:1"`
	RequestID  string    `gorm:"type:varchar(64);not null"`
	Timestamp  time.Time `gorm:"column:ts;not null;index:idx_history_product_ts,priority:2;index"`
	OldPrice   float64   `gorm:"type:numeric(14,4);not null"`
	NewPrice   float64   `gorm:"type:numeric(14,4);not null"`
	RuleID     string    `gorm:"type:varchar(128);not null"`
	ChangeType string    `gorm:"type:varchar(20);not null"`
	ChangePct  float64   `gorm:"not null"`
}

func (historyRow) TableName() string { return "price_history" }

func rowFromEntry(e pricing.HistoryEntry) historyRow {
	return historyRow{
		ID:         e.ID,
		ProductID:  e.ProductID,
		RequestID:  e.RequestID,
		Timestamp:  e.Timestamp.UTC(),
		OldPrice:   e.OldPrice,
		NewPrice:   e.NewPrice,
		RuleID:     e.RuleID,
		ChangeType: string(e.ChangeType),
		ChangePct:  e.ChangePct,
	}
}

func (r historyRow) entry() pricing.HistoryEntry {
	return pricing.HistoryEntry{
		ID:         r.ID,
		ProductID:  r.ProductID,
		RequestID:  r.RequestID,
		Timestamp:  r.Timestamp.UTC(),
		OldPrice:   r.OldPrice,
		NewPrice:   r.NewPrice,
		RuleID:     r.RuleID,
		ChangeType: pricing.ChangeType(r.ChangeType),
		ChangePct:  r.ChangePct,
	}
}

// PostgresStore implements history.Store on PostgreSQL through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres opens a gorm connection with the pool settings shared by the
// history and decision stores.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, pricing.NewStorageError("postgres", "open", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, pricing.NewStorageError("postgres", "pool", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// NewPostgresStore migrates the price_history table on db.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&historyRow{}); err != nil {
		return nil, pricing.NewStorageError("postgres", "migrate", err)
	}
	return &PostgresStore{db: db}, nil
}

// Append inserts one entry.
func (p *PostgresStore) Append(ctx context.Context, e pricing.HistoryEntry) error {
	row := rowFromEntry(e)
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return pricing.NewStorageError("postgres", "append", err)
	}
	return nil
}

// Remove deletes one entry. Unknown entries are ignored.
func (p *PostgresStore) Remove(ctx context.Context, productID, entryID string) error {
	err := p.db.WithContext(ctx).
		Where("product_id = ? AND id = ?", productID, entryID).
		Delete(&historyRow{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pricing.NewStorageError("postgres", "remove", err)
	}
	return nil
}

// List returns entries for productID with Timestamp >= since, oldest first.
func (p *PostgresStore) List(ctx context.Context, productID string, since time.Time) ([]pricing.HistoryEntry, error) {
	var rows []historyRow
	err := p.db.WithContext(ctx).
		Where("product_id = ? AND ts >= ?", productID, since.UTC()).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pricing.NewStorageError("postgres", "list", err)
	}

	out := make([]pricing.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

// Prune deletes entries older than olderThan.
func (p *PostgresStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res := p.db.WithContext(ctx).Where("ts < ?", olderThan.UTC()).Delete(&historyRow{})
	if res.Error != nil {
		return 0, pricing.NewStorageError("postgres", "prune", res.Error)
	}
	return res.RowsAffected, nil
}

// Close closes the underlying pool.
func (p *PostgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
