// Package leads merges contact data from every capture surface (forms,
// payments) into the single most recent lead for an email address.
package leads

import (
	"context"
	"log/slog"
	"strings"

	"marketingapi/internal/types"
)

// Repository is the lead storage the resolver depends on.
type Repository interface {
	FindMostRecentByEmail(ctx context.Context, email string) (*types.Lead, error)
	Insert(ctx context.Context, lead *types.Lead) error
	Update(ctx context.Context, lead *types.Lead) error
	// LockEmail runs fn while holding an exclusive lock on email. Repository
	// calls made with the ctx passed to fn run inside that lock, and a
	// returned error rolls them back.
	LockEmail(ctx context.Context, email string, fn func(ctx context.Context) error) error
}

// Mode selects the caller-specific merge rules.
type Mode int

const (
	// ModeCapture is used by form-style capture surfaces: status is never changed
	// on existing leads.
	ModeCapture Mode = iota
	// ModePayment is used after a successful payment: the lead is converted.
	ModePayment
)

// detailsSeparator joins appended detail blocks.
const detailsSeparator = "\n\n"

// Candidate is the incoming identity and context for a merge.
type Candidate struct {
	Name    string
	Email   string
	Company string
	Phone   string
	Budget  string
	Details string
	Source  string
}

// Result reports what Upsert did.
type Result struct {
	Lead    *types.Lead
	Created bool
	Skipped bool
}

// Resolver implements the lead merge rules.
type Resolver struct {
	repo   Repository
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(repo Repository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, logger: logger}
}

// Upsert merges c into the most recent lead with the same email or creates one.
//
// Merging never loses information: blank fields are filled, details are
// appended (or left alone when already present), and in payment mode the
// status becomes converted. Applying the same candidate twice yields the same
// row as applying it once. A blank email is a no-op.
//
// The read-merge-write runs under the repository's email lock, so concurrent
// merges for one address serialize instead of overwriting each other.
func (r *Resolver) Upsert(ctx context.Context, c Candidate, mode Mode) (Result, error) {
	c = c.normalized()
	if c.Email == "" {
		return Result{Skipped: true}, nil
	}

	var res Result
	err := r.repo.LockEmail(ctx, c.Email, func(ctx context.Context) error {
		var err error
		res, err = r.upsertLocked(ctx, c, mode)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (r *Resolver) upsertLocked(ctx context.Context, c Candidate, mode Mode) (Result, error) {
	existing, err := r.repo.FindMostRecentByEmail(ctx, c.Email)
	if err != nil {
		return Result{}, err
	}

	if existing == nil {
		lead := &types.Lead{
			FullName: firstNonEmpty(c.Name, c.Email),
			Email:    c.Email,
			Phone:    c.Phone,
			Company:  c.Company,
			Budget:   c.Budget,
			Details:  c.Details,
			Source:   c.Source,
			Status:   types.LeadStatusNew,
		}
		if mode == ModePayment {
			lead.Status = types.LeadStatusConverted
		}
		if err := r.repo.Insert(ctx, lead); err != nil {
			return Result{}, err
		}
		r.logger.InfoContext(ctx, "lead created",
			slog.String("lead_id", lead.ID),
			slog.String("source", lead.Source),
			slog.String("status", string(lead.Status)),
		)
		return Result{Lead: lead, Created: true}, nil
	}

	changed := merge(existing, c, mode)
	if !changed {
		return Result{Lead: existing}, nil
	}
	if err := r.repo.Update(ctx, existing); err != nil {
		return Result{}, err
	}
	r.logger.InfoContext(ctx, "lead merged",
		slog.String("lead_id", existing.ID),
		slog.String("status", string(existing.Status)),
	)
	return Result{Lead: existing}, nil
}

// merge applies c to lead in place and reports whether anything changed.
func merge(lead *types.Lead, c Candidate, mode Mode) bool {
	before := *lead

	lead.FullName = firstNonEmpty(lead.FullName, c.Name, c.Email)
	lead.Company = firstNonEmpty(lead.Company, c.Company)
	lead.Source = firstNonEmpty(lead.Source, c.Source)
	lead.Details = MergeDetails(lead.Details, c.Details)
	if mode == ModePayment {
		lead.Status = types.LeadStatusConverted
	}

	return before != *lead
}

// MergeDetails appends incoming to existing unless it is blank or already
// contained in existing.
func MergeDetails(existing, incoming string) string {
	incoming = strings.TrimSpace(incoming)
	switch {
	case incoming == "":
		return existing
	case strings.TrimSpace(existing) == "":
		return incoming
	case strings.Contains(existing, incoming):
		return existing
	default:
		return existing + detailsSeparator + incoming
	}
}

func (c Candidate) normalized() Candidate {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Company = strings.TrimSpace(c.Company)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Budget = strings.TrimSpace(c.Budget)
	c.Source = strings.TrimSpace(c.Source)
	return c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
