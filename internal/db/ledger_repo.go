package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketingapi/internal/types"
)

// LedgerRepo persists processor events and the transaction ledger.
// It runs on its own pool, separate from the primary database.
//
// Key invariants:
//   - The event insert and the transaction upsert commit in one transaction;
//     a failure leaves neither behind.
//   - ON CONFLICT (event_id) DO NOTHING makes racing redeliveries degrade to
//     a duplicate outcome instead of an error.
//   - The upsert never moves a row backwards: an event older than the stored
//     last event leaves the row untouched (optimistic lock on event_created_at).
type LedgerRepo struct {
	begin  TxBeginner
	db     DBTX
	logger *slog.Logger
}

// NewLedgerRepo creates a LedgerRepo backed by the ledger pool.
func NewLedgerRepo(pool *pgxpool.Pool, logger *slog.Logger) *LedgerRepo {
	return newLedgerRepo(PoolBeginner(pool), pool, logger)
}

func newLedgerRepo(begin TxBeginner, db DBTX, logger *slog.Logger) *LedgerRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerRepo{begin: begin, db: db, logger: logger}
}

const insertEventSQL = `INSERT INTO stripe_webhook_events
	(id, event_id, event_type, livemode, event_created_at, data_object_id, payload, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	ON CONFLICT (event_id) DO NOTHING`

const upsertTransactionSQL = `INSERT INTO stripe_transactions
	(id, stripe_object_id, object_type, status, amount, currency, customer_id, customer_email,
	 description, metadata_json, event_id, event_type, livemode, event_created_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	ON CONFLICT (stripe_object_id, object_type) DO UPDATE SET
		status = EXCLUDED.status,
		amount = EXCLUDED.amount,
		currency = EXCLUDED.currency,
		customer_id = EXCLUDED.customer_id,
		customer_email = EXCLUDED.customer_email,
		description = EXCLUDED.description,
		metadata_json = EXCLUDED.metadata_json,
		event_id = EXCLUDED.event_id,
		event_type = EXCLUDED.event_type,
		livemode = EXCLUDED.livemode,
		event_created_at = EXCLUDED.event_created_at,
		updated_at = NOW()
	WHERE stripe_transactions.event_created_at IS NULL
	   OR EXCLUDED.event_created_at IS NULL
	   OR stripe_transactions.event_created_at <= EXCLUDED.event_created_at`

// RecordEvent stores the event record and, when txn is non-nil, upserts the
// ledger row in the same transaction.
//
// A duplicate event ID returns Duplicate=true and writes nothing else.
// Storage failures are returned as ErrCodeInternalLedger so the webhook
// responds 5xx and the processor redelivers.
func (r *LedgerRepo) RecordEvent(ctx context.Context, evt *types.WebhookEventRecord, txn *types.TransactionRecord) (types.LedgerOutcome, error) {
	var outcome types.LedgerOutcome

	tx, err := r.begin(ctx)
	if err != nil {
		return outcome, types.NewAppError(types.ErrCodeInternalLedger, "failed to begin ledger transaction", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	tag, err := tx.Exec(ctx, insertEventSQL,
		evt.ID,
		pgText(evt.EventID),
		pgText(evt.EventType),
		evt.Livemode,
		evt.EventCreatedAt,
		pgTextPtr(evt.DataObjectID),
		[]byte(evt.Payload),
	)
	if err != nil {
		return outcome, types.NewAppError(types.ErrCodeInternalLedger, "failed to record webhook event", err)
	}
	if tag.RowsAffected() == 0 {
		outcome.Duplicate = true
		return outcome, nil
	}

	if txn != nil {
		if txn.ID == "" {
			txn.ID = uuid.NewString()
		}
		tag, err = tx.Exec(ctx, upsertTransactionSQL,
			txn.ID,
			pgText(txn.StripeObjectID),
			txn.ObjectType,
			pgTextPtr(txn.Status),
			txn.Amount,
			pgTextPtr(txn.Currency),
			pgTextPtr(txn.CustomerID),
			pgTextPtr(txn.CustomerEmail),
			pgTextPtr(txn.Description),
			nullableJSON(txn.Metadata),
			pgText(txn.EventID),
			pgText(txn.EventType),
			txn.Livemode,
			txn.EventCreatedAt,
		)
		if err != nil {
			return outcome, types.NewAppError(types.ErrCodeInternalLedger, "failed to upsert transaction", err)
		}
		outcome.Applied = tag.RowsAffected() > 0
		if !outcome.Applied {
			r.logger.Info("stale transaction event ignored (optimistic lock)",
				slog.String("event_id", evt.EventID),
				slog.String("stripe_object_id", txn.StripeObjectID),
				slog.String("object_type", string(txn.ObjectType)),
			)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.LedgerOutcome{}, types.NewAppError(types.ErrCodeInternalLedger, "failed to commit ledger transaction", err)
	}
	return outcome, nil
}

const selectTransactionSQL = `SELECT id, stripe_object_id, object_type, status, amount, currency,
	customer_id, customer_email, description, metadata_json, event_id, event_type, livemode,
	event_created_at, created_at, updated_at
	FROM stripe_transactions
	WHERE stripe_object_id = $1 AND object_type = $2`

// FindByObjectKey returns the ledger row for (objectID, objectType), or nil
// when none exists.
func (r *LedgerRepo) FindByObjectKey(ctx context.Context, objectID string, objectType types.ObjectType) (*types.TransactionRecord, error) {
	var (
		rec      types.TransactionRecord
		metadata *string
	)
	err := r.db.QueryRow(ctx, selectTransactionSQL, objectID, objectType).Scan(
		&rec.ID,
		&rec.StripeObjectID,
		&rec.ObjectType,
		&rec.Status,
		&rec.Amount,
		&rec.Currency,
		&rec.CustomerID,
		&rec.CustomerEmail,
		&rec.Description,
		&metadata,
		&rec.EventID,
		&rec.EventType,
		&rec.Livemode,
		&rec.EventCreatedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalLedger, "failed to read transaction", err)
	}
	if metadata != nil {
		rec.Metadata = []byte(*metadata)
	}
	return &rec, nil
}

const selectEventSQL = `SELECT id, event_id, event_type, livemode, event_created_at, data_object_id,
	payload, created_at, updated_at
	FROM stripe_webhook_events
	WHERE event_id = $1`

// FindEvent returns the stored record for an event ID, or nil.
func (r *LedgerRepo) FindEvent(ctx context.Context, eventID string) (*types.WebhookEventRecord, error) {
	var (
		rec     types.WebhookEventRecord
		payload []byte
	)
	err := r.db.QueryRow(ctx, selectEventSQL, eventID).Scan(
		&rec.ID,
		&rec.EventID,
		&rec.EventType,
		&rec.Livemode,
		&rec.EventCreatedAt,
		&rec.DataObjectID,
		&payload,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalLedger, "failed to read webhook event", err)
	}
	rec.Payload = payload
	return &rec, nil
}

// nullableJSON stores absent metadata as SQL NULL rather than an empty string.
// JSONB rejects \u0000, so NULs are dropped from string values first.
func nullableJSON(raw []byte) *string {
	if len(raw) == 0 {
		return nil
	}
	if bytes.Contains(raw, []byte(`\u0000`)) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			if clean, err := json.Marshal(stripNUL(v)); err == nil {
				raw = clean
			}
		}
	}
	s := string(raw)
	return &s
}

func stripNUL(v any) any {
	switch t := v.(type) {
	case string:
		return pgText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[pgText(k)] = stripNUL(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = stripNUL(t[i])
		}
		return t
	default:
		return v
	}
}

// pgText drops NUL bytes, which Postgres text columns cannot hold. Decoded
// payload strings may contain them via \u0000.
func pgText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func pgTextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := pgText(*s)
	return &v
}
