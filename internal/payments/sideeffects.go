package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"marketingapi/internal/external"
	"marketingapi/internal/leads"
	"marketingapi/internal/metrics"
	"marketingapi/internal/tasks"
	"marketingapi/internal/types"
)

const (
	leadSource           = "stripe"
	defaultPaymentPlan   = "Stripe payment"
	defaultInvoicePlan   = "Stripe subscription"
	planLabelMetadataKey = "plan_label"
)

// SideEffectTask is the payload of a tasks.KindPaymentSideEffects task. It
// carries the whole object so handlers do not depend on the ledger.
type SideEffectTask struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	Class      types.EventClass `json:"class"`
	ObjectType types.ObjectType `json:"object_type"`
	Object     map[string]any   `json:"object"`
}

// Dispatcher submits side-effect tasks for committed events.
type Dispatcher struct {
	runner tasks.Runner
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(runner tasks.Runner) *Dispatcher {
	return &Dispatcher{runner: runner}
}

// Dispatch submits the side effects for evt. Only the four money classes are
// dispatched; other classes are a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *Event, class types.EventClass, obj *Object) error {
	if class == types.ClassUninteresting {
		return nil
	}
	task, err := tasks.NewTask(ctx, tasks.KindPaymentSideEffects, evt.ID, SideEffectTask{
		EventID:    evt.ID,
		EventType:  evt.Type,
		Class:      class,
		ObjectType: obj.Type,
		Object:     obj.Fields,
	})
	if err != nil {
		return err
	}
	if err := d.runner.Submit(ctx, task); err != nil {
		return types.NewAppError(types.ErrCodeInternalTaskRunner, "failed to submit side-effect task", err)
	}
	return nil
}

// LeadUpserter is the lead merge the side effects depend on.
type LeadUpserter interface {
	Upsert(ctx context.Context, c leads.Candidate, mode leads.Mode) (leads.Result, error)
}

// SideEffects executes payment side-effect tasks.
//
// A lead merge failure is returned so the task is retried; the merge is
// idempotent. Notifications run after the merge and are never retried.
type SideEffects struct {
	processor external.PaymentProcessor
	leads     LeadUpserter
	notifier  *Notifier
	metrics   metrics.Recorder
	brand     string
	logger    *slog.Logger
}

// SideEffectsConfig holds the dependencies for NewSideEffects.
type SideEffectsConfig struct {
	Processor external.PaymentProcessor
	Leads     LeadUpserter
	Notifier  *Notifier
	Metrics   metrics.Recorder
	Brand     string
	Logger    *slog.Logger
}

// NewSideEffects creates a SideEffects handler.
func NewSideEffects(cfg SideEffectsConfig) *SideEffects {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	return &SideEffects{
		processor: cfg.Processor,
		leads:     cfg.Leads,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		brand:     cfg.Brand,
		logger:    cfg.Logger,
	}
}

// Handle is the tasks.Handler for tasks.KindPaymentSideEffects.
func (s *SideEffects) Handle(ctx context.Context, task tasks.Task) error {
	var p SideEffectTask
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return tasks.Permanent(fmt.Errorf("decode side-effect task: %w", err))
	}
	obj, ok := NormalizeAs(p.ObjectType, p.Object)
	if !ok {
		return tasks.Permanent(fmt.Errorf("side-effect task %s carries an unusable %q object", task.ID, p.ObjectType))
	}

	ctx = types.WithEventID(ctx, p.EventID)
	logger := s.logger.With("event_id", p.EventID, "event_type", p.EventType, "object_id", obj.ID, "attempt", task.Attempt)

	var err error
	switch p.Class {
	case types.ClassPaymentSucceeded:
		err = s.paymentSucceeded(ctx, obj, logger)
	case types.ClassPaymentFailed:
		s.paymentFailed(ctx, obj, logger)
	case types.ClassInvoicePaid:
		err = s.invoicePaid(ctx, obj, logger)
	case types.ClassInvoiceFailed:
		s.invoiceFailed(ctx, obj, logger)
	default:
		return tasks.Permanent(fmt.Errorf("no side effects for class %q", p.Class))
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailed
	}
	s.metrics.RecordSideEffect(ctx, string(task.Kind), result)
	return err
}

func (s *SideEffects) paymentSucceeded(ctx context.Context, obj *Object, logger *slog.Logger) error {
	email, name := s.identity(ctx, obj, logger)
	f := paymentFacts{
		Email:    email,
		Name:     name,
		Amount:   obj.Amount,
		Plan:     firstNonBlank(obj.Metadata[planLabelMetadataKey], obj.Description, defaultPaymentPlan),
		ObjectID: obj.ID,
	}
	if err := s.convertLead(ctx, f, leadDetailsPayment(f)); err != nil {
		return err
	}
	s.notifier.Customer(ctx, email, customerPaymentReceived(f, s.brand))
	s.notifier.Admin(ctx, adminPaymentReceived(f), email)
	return nil
}

func (s *SideEffects) paymentFailed(ctx context.Context, obj *Object, logger *slog.Logger) {
	email, name := s.identity(ctx, obj, logger)
	f := paymentFacts{
		Email:    email,
		Name:     name,
		Amount:   pickAmount(obj.Fields, "amount", "amount_received"),
		ObjectID: obj.ID,
		Reason:   pickString(obj.Fields, "last_payment_error.message", "last_payment_error.code"),
	}
	s.notifier.Admin(ctx, adminPaymentFailed(f), email)
	s.notifier.Customer(ctx, email, customerPaymentFailed(f, s.brand))
}

func (s *SideEffects) invoicePaid(ctx context.Context, obj *Object, logger *slog.Logger) error {
	email, name := s.identity(ctx, obj, logger)
	subscriptionID := lookupString(obj.Fields, "subscription")
	f := paymentFacts{
		Email:          email,
		Name:           name,
		Amount:         pickAmount(obj.Fields, "amount_paid"),
		Plan:           s.invoicePlan(ctx, obj, subscriptionID, logger),
		ObjectID:       obj.ID,
		SubscriptionID: subscriptionID,
	}
	if err := s.convertLead(ctx, f, leadDetailsInvoice(f)); err != nil {
		return err
	}
	s.notifier.Customer(ctx, email, customerInvoicePaid(f, s.brand))
	s.notifier.Admin(ctx, adminInvoicePaid(f), email)
	return nil
}

func (s *SideEffects) invoiceFailed(ctx context.Context, obj *Object, logger *slog.Logger) {
	email, name := s.identity(ctx, obj, logger)
	f := paymentFacts{
		Email:    email,
		Name:     name,
		Amount:   pickAmount(obj.Fields, "amount_due", "amount_remaining", "amount_paid"),
		ObjectID: obj.ID,
		Reason:   pickString(obj.Fields, "failure_message", "failure_reason"),
	}
	s.notifier.Admin(ctx, adminInvoiceFailed(f), email)
	s.notifier.Customer(ctx, email, customerInvoiceFailed(f, s.brand))
}

func (s *SideEffects) convertLead(ctx context.Context, f paymentFacts, details string) error {
	_, err := s.leads.Upsert(ctx, leads.Candidate{
		Name:    f.Name,
		Email:   f.Email,
		Company: f.Name,
		Details: details,
		Source:  leadSource,
	}, leads.ModePayment)
	if err != nil {
		return fmt.Errorf("merge lead: %w", err)
	}
	return nil
}

// identity returns the payer's email and name. The payload wins; a thin
// payload with neither email nor customer is refetched, and a missing email
// is then looked up on the customer. Lookup failures leave identity unknown.
func (s *SideEffects) identity(ctx context.Context, obj *Object, logger *slog.Logger) (email, name string) {
	email, name = obj.Email, obj.Name
	if email != "" || s.processor == nil {
		return email, name
	}

	customerID := obj.CustomerID
	if customerID == "" {
		fields, err := s.processor.RetrieveObject(ctx, obj.Type, obj.ID)
		if err != nil {
			logger.WarnContext(ctx, "could not refetch object for identity", "error", err)
			return email, name
		}
		if full, ok := NormalizeAs(obj.Type, fields); ok {
			email, name = full.Email, firstNonBlank(name, full.Name)
			customerID = full.CustomerID
		}
		if email != "" {
			return email, name
		}
	}
	if customerID == "" {
		return email, name
	}

	customer, err := s.processor.RetrieveCustomer(ctx, customerID)
	if err != nil {
		logger.WarnContext(ctx, "could not retrieve customer for identity", "customer_id", customerID, "error", err)
		return email, name
	}
	return customer.Email, firstNonBlank(name, customer.Name)
}

func (s *SideEffects) invoicePlan(ctx context.Context, obj *Object, subscriptionID string, logger *slog.Logger) string {
	if label := obj.Metadata[planLabelMetadataKey]; label != "" {
		return label
	}
	if subscriptionID != "" && s.processor != nil {
		sub, err := s.processor.RetrieveSubscription(ctx, subscriptionID)
		if err != nil {
			logger.WarnContext(ctx, "could not retrieve subscription for plan label", "subscription_id", subscriptionID, "error", err)
		} else if label := sub.Metadata[planLabelMetadataKey]; label != "" {
			return label
		}
	}
	return defaultInvoicePlan
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
