package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"mercator-hq/pricegate/pkg/decision"
	"mercator-hq/pricegate/pkg/pricing"
)

// decisionRow is the gorm model for the decisions table.
type decisionRow struct {
	ID               string    `gorm:"type:varchar(64);primaryKey"`
	ProductID        string    `gorm:"type:varchar(128);not null;index:idx_decisions_product_status,priority:1"`
	CurrentPrice     float64   `gorm:"type:numeric(14,4);not null"`
	RecommendedPrice float64   `gorm:"type:numeric(14,4);not null"`
	Confidence       float64   `gorm:"not null"`
	MatchedRuleID    string    `gorm:"type:varchar(128)"`
	Status           string    `gorm:"type:varchar(20);not null;index;index:idx_decisions_product_status,priority:2"`
	CreatedAt        time.Time `gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime:false"`
	ExpiresAt        time.Time `gorm:"not null;index"`
	AppliedAt        *time.Time
	ApprovalRequired bool
	ApprovalReason   string `gorm:"type:text"`
	ChangeType       string `gorm:"type:varchar(20)"`
	ResolvedBy       string `gorm:"type:varchar(128)"`
	ResolvedAt       *time.Time
	NoOp             bool
	Notified         bool
	RiskControls     string `gorm:"type:text"`
}

func (decisionRow) TableName() string { return "decisions" }

func toRow(req *pricing.DecisionRequest) decisionRow {
	return decisionRow{
		ID:               req.ID,
		ProductID:        req.ProductID,
		CurrentPrice:     req.CurrentPrice,
		RecommendedPrice: req.RecommendedPrice,
		Confidence:       req.Confidence,
		MatchedRuleID:    req.MatchedRuleID,
		Status:           string(req.Status),
		CreatedAt:        req.CreatedAt.UTC(),
		UpdatedAt:        req.UpdatedAt.UTC(),
		ExpiresAt:        req.ExpiresAt.UTC(),
		AppliedAt:        utcPtr(req.AppliedAt),
		ApprovalRequired: req.ApprovalRequired,
		ApprovalReason:   req.ApprovalReason,
		ChangeType:       string(req.ChangeType),
		ResolvedBy:       req.ResolvedBy,
		ResolvedAt:       utcPtr(req.ResolvedAt),
		NoOp:             req.NoOp,
		Notified:         req.Notified,
		RiskControls:     strings.Join(req.RiskControls, ","),
	}
}

func (r decisionRow) request() *pricing.DecisionRequest {
	req := &pricing.DecisionRequest{
		ID:               r.ID,
		ProductID:        r.ProductID,
		CurrentPrice:     r.CurrentPrice,
		RecommendedPrice: r.RecommendedPrice,
		Confidence:       r.Confidence,
		MatchedRuleID:    r.MatchedRuleID,
		Status:           pricing.Status(r.Status),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
		ExpiresAt:        r.ExpiresAt.UTC(),
		AppliedAt:        utcPtr(r.AppliedAt),
		ApprovalRequired: r.ApprovalRequired,
		ApprovalReason:   r.ApprovalReason,
		ChangeType:       pricing.ChangeType(r.ChangeType),
		ResolvedBy:       r.ResolvedBy,
		ResolvedAt:       utcPtr(r.ResolvedAt),
		NoOp:             r.NoOp,
		Notified:         r.Notified,
	}
	if r.RiskControls != "" {
		req.RiskControls = strings.Split(r.RiskControls, ",")
	}
	return req
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// PostgresStore implements decision.Store on PostgreSQL through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore migrates the decisions table on db.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&decisionRow{}); err != nil {
		return nil, pricing.NewStorageError("postgres", "migrate", err)
	}
	return &PostgresStore{db: db}, nil
}

// Create inserts req.
func (p *PostgresStore) Create(ctx context.Context, req *pricing.DecisionRequest) error {
	row := toRow(req)
	err := p.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", decision.ErrDuplicateDecision, req.ID)
	}
	if err != nil {
		return pricing.NewStorageError("postgres", "create", err)
	}
	return nil
}

// Update overwrites req.
func (p *PostgresStore) Update(ctx context.Context, req *pricing.DecisionRequest) error {
	row := toRow(req)
	res := p.db.WithContext(ctx).Model(&decisionRow{}).
		Where("id = ?", req.ID).
		Select("*").
		Updates(&row)
	if res.Error != nil {
		return pricing.NewStorageError("postgres", "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", pricing.ErrDecisionNotFound, req.ID)
	}
	return nil
}

// Get returns one request.
func (p *PostgresStore) Get(ctx context.Context, id string) (*pricing.DecisionRequest, error) {
	var row decisionRow
	err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", pricing.ErrDecisionNotFound, id)
	}
	if err != nil {
		return nil, pricing.NewStorageError("postgres", "get", err)
	}
	return row.request(), nil
}

// Query returns matching requests by CreatedAt ascending.
func (p *PostgresStore) Query(ctx context.Context, filter decision.Filter) ([]*pricing.DecisionRequest, error) {
	q := p.db.WithContext(ctx).Model(&decisionRow{})
	if filter.ProductID != "" {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if !filter.ExpiresBefore.IsZero() {
		q = q.Where("expires_at < ?", filter.ExpiresBefore.UTC())
	}
	if !filter.CreatedSince.IsZero() {
		q = q.Where("created_at >= ?", filter.CreatedSince.UTC())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []decisionRow
	if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, pricing.NewStorageError("postgres", "query", err)
	}

	out := make([]*pricing.DecisionRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.request())
	}
	return out, nil
}

// Close closes the underlying pool.
func (p *PostgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
