package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketingapi/internal/metrics"
	"marketingapi/internal/types"
)

// Ledger is the atomic event-and-transaction store.
type Ledger interface {
	RecordEvent(ctx context.Context, evt *types.WebhookEventRecord, txn *types.TransactionRecord) (types.LedgerOutcome, error)
}

// Result describes what Process did with one delivery.
type Result struct {
	Outcome   types.WebhookOutcome
	EventID   string
	EventType string
	Class     types.EventClass
	// Applied is true when the ledger row was inserted or updated.
	Applied bool
}

// EngineConfig holds the dependencies for NewEngine. A nil Ledger means the
// deployment has no ledger store and every delivery is refused.
type EngineConfig struct {
	Ledger        Ledger
	Authenticator *Authenticator
	Dispatcher    *Dispatcher
	Alerter       *Alerter
	Metrics       metrics.Recorder
	Logger        *slog.Logger
}

// Engine reconciles processor webhook deliveries into the ledger.
type Engine struct {
	ledger     Ledger
	auth       *Authenticator
	dispatcher *Dispatcher
	alerter    *Alerter
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	return &Engine{
		ledger:     cfg.Ledger,
		auth:       cfg.Authenticator,
		dispatcher: cfg.Dispatcher,
		alerter:    cfg.Alerter,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Process authenticates payload, records it and schedules its side effects.
//
// The event record and the ledger row commit together. A returned error
// means nothing was committed and the processor should redeliver; a
// duplicate or uninteresting event is a successful no-op. Side-effect
// scheduling failures are logged and do not fail the delivery.
func (e *Engine) Process(ctx context.Context, payload []byte, signature string) (res Result, err error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordWebhook(ctx, res.EventType, res.Outcome, time.Since(start))
	}()

	if e.ledger == nil {
		res.Outcome = types.OutcomeMisconfig
		e.logger.ErrorContext(ctx, "webhook refused: ledger store not configured")
		e.alerter.alert(ctx, alertStorageMissing())
		return res, types.NewAppError(types.ErrCodeConfigLedger, "Stripe transaction storage unavailable.", nil)
	}

	evt, err := e.auth.Authenticate(payload, signature)
	if err != nil {
		res.Outcome = types.OutcomeRejected
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConfigWebhookSecret {
			res.Outcome = types.OutcomeMisconfig
		}
		e.logger.WarnContext(ctx, "webhook rejected", "error", err)
		return res, err
	}

	ctx = types.WithEventID(ctx, evt.ID)
	logger := e.logger.With("event_id", evt.ID, "event_type", evt.Type)
	res.EventID, res.EventType = evt.ID, evt.Type

	class := Classify(evt.Type)
	var (
		obj *Object
		txn *types.TransactionRecord
	)
	if class != types.ClassUninteresting {
		var ok bool
		if obj, ok = Normalize(evt.Type, evt.Object); ok {
			txn = obj.Transaction(evt)
		} else {
			logger.WarnContext(ctx, "classified event carries no usable object; storing event only")
			class = types.ClassUninteresting
		}
	}
	res.Class = class

	outcome, err := e.ledger.RecordEvent(ctx, evt.record(), txn)
	if err != nil {
		res.Outcome = types.OutcomeLedgerFailed
		logger.ErrorContext(ctx, "failed to persist webhook event", "error", err)
		e.alerter.alert(ctx, alertStorageFailure(evt.ID))
		return res, err
	}
	if outcome.Duplicate {
		res.Outcome = types.OutcomeDuplicate
		logger.InfoContext(ctx, "duplicate webhook event ignored")
		return res, nil
	}
	res.Applied = outcome.Applied

	if class == types.ClassUninteresting {
		res.Outcome = types.OutcomeIgnored
		logger.InfoContext(ctx, "webhook event stored without side effects")
		return res, nil
	}

	res.Outcome = types.OutcomeProcessed
	if err := e.dispatcher.Dispatch(ctx, evt, class, obj); err != nil {
		logger.ErrorContext(ctx, "failed to dispatch side effects", "error", err)
	}
	logger.InfoContext(ctx, "webhook event processed",
		"class", string(class),
		"object_type", string(obj.Type),
		"object_id", obj.ID,
		"ledger_applied", outcome.Applied,
	)
	return res, nil
}
