package db

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketingapi/internal/types"
)

// leadModel is the gorm mapping of the leads table in the primary database.
type leadModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	FullName  string    `gorm:"column:full_name;not null"`
	Email     string    `gorm:"column:email;not null;index"`
	Phone     *string   `gorm:"column:phone"`
	Company   *string   `gorm:"column:company"`
	Budget    *string   `gorm:"column:budget"`
	Details   *string   `gorm:"column:details"`
	Source    *string   `gorm:"column:source"`
	Status    string    `gorm:"column:status;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (leadModel) TableName() string { return "leads" }

// LeadRepo implements the lead repository over gorm.
type LeadRepo struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewLeadRepo creates a LeadRepo on the primary database.
func NewLeadRepo(db *gorm.DB, logger *slog.Logger) *LeadRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadRepo{db: db, logger: logger}
}

// leadTxKey carries the transaction opened by LockEmail.
type leadTxKey struct{}

// conn returns the LockEmail transaction bound to ctx, or the pool.
func (r *LeadRepo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(leadTxKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// LockEmail runs fn in a transaction holding a transaction-scoped advisory
// lock on the normalized email. The lock also covers the insert path, where
// there is no row yet to lock.
func (r *LeadRepo) LockEmail(ctx context.Context, email string, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(leadTxKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(lockEmailSQL, normalizeEmail(email)).Error; err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to lock lead email", err)
		}
		return fn(context.WithValue(ctx, leadTxKey{}, tx))
	})
}

const lockEmailSQL = "SELECT pg_advisory_xact_lock(hashtext('leads:' || ?))"

// FindMostRecentByEmail returns the most recently created lead for email
// (case-insensitive), or nil when none exists.
func (r *LeadRepo) FindMostRecentByEmail(ctx context.Context, email string) (*types.Lead, error) {
	var m leadModel
	err := r.byEmail(ctx, email).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up lead by email", err)
	}
	return m.toDomain(), nil
}

// byEmail selects leads by normalized email, newest first. Inside LockEmail
// the selected row is also locked FOR UPDATE.
func (r *LeadRepo) byEmail(ctx context.Context, email string) *gorm.DB {
	q := r.conn(ctx)
	if _, ok := ctx.Value(leadTxKey{}).(*gorm.DB); ok {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q.Where("LOWER(email) = ?", normalizeEmail(email)).
		Order("created_at DESC")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Insert creates a new lead, assigning an ID and timestamps when absent.
func (r *LeadRepo) Insert(ctx context.Context, lead *types.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	m := leadFromDomain(lead)
	if err := r.conn(ctx).Create(m).Error; err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert lead", err)
	}
	lead.CreatedAt = m.CreatedAt
	lead.UpdatedAt = m.UpdatedAt
	return nil
}

// Update writes the mergeable fields of an existing lead. Columns owned by
// other subsystems (phone, budget) are left alone.
func (r *LeadRepo) Update(ctx context.Context, lead *types.Lead) error {
	m := leadFromDomain(lead)
	m.UpdatedAt = time.Now().UTC()
	res := r.conn(ctx).
		Model(&leadModel{ID: lead.ID}).
		Select("full_name", "company", "details", "source", "status", "updated_at").
		Updates(m)
	if res.Error != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update lead", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewAppError(types.ErrCodeNotFoundLead, "lead not found", nil)
	}
	lead.UpdatedAt = m.UpdatedAt
	return nil
}

func (m *leadModel) toDomain() *types.Lead {
	return &types.Lead{
		ID:        m.ID,
		FullName:  m.FullName,
		Email:     m.Email,
		Phone:     deref(m.Phone),
		Company:   deref(m.Company),
		Budget:    deref(m.Budget),
		Details:   deref(m.Details),
		Source:    deref(m.Source),
		Status:    types.LeadStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func leadFromDomain(l *types.Lead) *leadModel {
	return &leadModel{
		ID:        l.ID,
		FullName:  l.FullName,
		Email:     l.Email,
		Phone:     optional(l.Phone),
		Company:   optional(l.Company),
		Budget:    optional(l.Budget),
		Details:   optional(l.Details),
		Source:    optional(l.Source),
		Status:    string(l.Status),
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
