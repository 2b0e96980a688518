package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"marketingapi/internal/core"
	"marketingapi/internal/leads"
)

const defaultLeadSource = "website"

// LeadUpserter merges a captured contact into the lead store.
type LeadUpserter interface {
	Upsert(ctx context.Context, c leads.Candidate, mode leads.Mode) (leads.Result, error)
}

// AdminNotifier schedules an operator notification.
type AdminNotifier interface {
	Notify(ctx context.Context, subject, body, replyTo string)
}

// CreateLeadRequest is the body of POST /v1/leads.
type CreateLeadRequest struct {
	Name    string `json:"name" validate:"notblank,max=200"`
	Email   string `json:"email" validate:"required,email,max=320"`
	Company string `json:"company" validate:"max=200"`
	Phone   string `json:"phone" validate:"max=50"`
	Budget  string `json:"budget" validate:"max=100"`
	Details string `json:"details" validate:"max=5000"`
	Source  string `json:"source" validate:"max=64"`
}

// CreateLeadResponse reports the lead the request landed on.
type CreateLeadResponse struct {
	Status  string `json:"status"`
	LeadID  string `json:"lead_id"`
	Created bool   `json:"created"`
}

// LeadHandler serves public lead capture. Captured leads are merged with the
// same rules payments use, except the status of an existing lead is kept.
type LeadHandler struct {
	resolver  LeadUpserter
	notifier  AdminNotifier
	validator *core.Validator
	limit     []func(http.Handler) http.Handler
	logger    *slog.Logger
}

// NewLeadHandler creates a LeadHandler. notifier may be nil. limit is applied
// to the capture route only.
func NewLeadHandler(
	resolver LeadUpserter,
	notifier AdminNotifier,
	v *core.Validator,
	logger *slog.Logger,
	limit ...func(http.Handler) http.Handler,
) *LeadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(logger)
	}
	return &LeadHandler{
		resolver:  resolver,
		notifier:  notifier,
		validator: v,
		limit:     limit,
		logger:    logger,
	}
}

// RegisterRoutes mounts POST /leads on the /v1 router.
func (h *LeadHandler) RegisterRoutes(r chi.Router) {
	r.With(h.limit...).Post("/leads", h.Create)
}

// Create validates the form, merges it into the lead store and schedules an
// admin notification. Answers 201 for a new lead, 200 for a merge.
func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = defaultLeadSource
	}

	res, err := h.resolver.Upsert(r.Context(), leads.Candidate{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Budget:  req.Budget,
		Details: req.Details,
		Source:  source,
	}, leads.ModeCapture)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "lead capture failed", "source", source, "error", err)
		core.Error(w, r, err)
		return
	}

	if h.notifier != nil {
		h.notifier.Notify(r.Context(), "New lead captured", leadAdminBody(req, source), req.Email)
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	resp := CreateLeadResponse{Status: "ok", Created: res.Created}
	if res.Lead != nil {
		resp.LeadID = res.Lead.ID
	}
	core.JSON(w, r, status, resp)
}

func leadAdminBody(req CreateLeadRequest, source string) string {
	lines := []string{
		"New lead captured",
		"",
		fmt.Sprintf("Name: %s", strings.TrimSpace(req.Name)),
		fmt.Sprintf("Email: %s", strings.TrimSpace(req.Email)),
		fmt.Sprintf("Company: %s", orNone(req.Company)),
		fmt.Sprintf("Phone: %s", orNone(req.Phone)),
		fmt.Sprintf("Budget: %s", orNone(req.Budget)),
		fmt.Sprintf("Source: %s", source),
	}
	if d := strings.TrimSpace(req.Details); d != "" {
		lines = append(lines, "", d)
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "None"
	}
	return s
}
