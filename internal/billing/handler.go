package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	dateLayout        = "2006-01-02"
	idempotencyHeader = "Idempotency-Key"
)

// Handler exposes invoice and payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the billing handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionInvoiceView))
		r.Get("/invoices/{id}", h.handleGetInvoice)
		r.Get("/invoices/{id}/applications", h.handleInvoiceApplications)
		r.Get("/invoices/aging", h.handleAging)
		r.Get("/payments/{id}", h.handleGetPayment)
	})
	r.With(h.rbac.RequireAny(rbac.ActionInvoiceIssue)).Post("/invoices", h.handleIssue)
	r.With(h.rbac.RequireAny(rbac.ActionPaymentRecord)).Post("/payments", h.handleRecordPayment)
	r.With(h.rbac.RequireAny(rbac.ActionPaymentApply)).Post("/payments/{id}/apply", h.handleApply)
}

type invoiceLineRequest struct {
	ItemID      int64           `json:"itemId" validate:"gte=0"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxCode     string          `json:"taxCode" validate:"max=32"`
}

type invoiceRequest struct {
	Kind     string               `json:"kind" validate:"required,oneof=AP AR"`
	PartyID  int64                `json:"partyId" validate:"required,gt=0"`
	Date     string               `json:"date" validate:"required,datetime=2006-01-02"`
	DueDate  string               `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Memo     string               `json:"memo" validate:"max=500"`
	Currency string               `json:"currency" validate:"omitempty,len=3"`
	Lines    []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type paymentRequest struct {
	Direction string          `json:"direction" validate:"required,oneof=INCOMING OUTGOING"`
	PartyID   int64           `json:"partyId" validate:"required,gt=0"`
	Method    string          `json:"method" validate:"required,alphanum,max=32"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Memo      string          `json:"memo" validate:"max=500"`
}

type applyRequest struct {
	InvoiceID int64           `json:"invoiceId" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := IssueInput{
		BusinessUnitID: unitID,
		Kind:           InvoiceKind(req.Kind),
		PartyID:        req.PartyID,
		Memo:           req.Memo,
		Currency:       req.Currency,
		Actor:          actor,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	}
	if in.Date, err = parseDate(req.Date); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.DueDate != "" {
		if in.DueDate, err = parseDate(req.DueDate); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput(l))
	}
	inv, err := h.service.IssueInvoice(r.Context(), in)
	if err != nil {
		h.fail(w, "issue invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), unitID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "remaining": inv.Remaining()})
}

func (h *Handler) handleInvoiceApplications(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	apps, err := h.service.ListApplications(r.Context(), unitID, 0, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind := InvoiceKind(r.URL.Query().Get("kind"))
	var asOf time.Time
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		if asOf, err = parseDate(raw); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	bucket, err := h.service.Aging(r.Context(), unitID, kind, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bucket)
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), PaymentInput{
		BusinessUnitID: unitID,
		Direction:      Direction(req.Direction),
		PartyID:        req.PartyID,
		Method:         req.Method,
		Amount:         req.Amount,
		Date:           date,
		Memo:           req.Memo,
		Actor:          actor,
	})
	if err != nil {
		h.fail(w, "record payment failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.GetPayment(r.Context(), unitID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	apps, err := h.service.ListApplications(r.Context(), unitID, id, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment": payment, "remaining": payment.Remaining(), "applications": apps})
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	paymentID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req applyRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	app, err := h.service.ApplyPayment(r.Context(), ApplyInput{
		BusinessUnitID: unitID,
		PaymentID:      paymentID,
		InvoiceID:      req.InvoiceID,
		Amount:         req.Amount,
		Actor:          actor,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		h.fail(w, "apply payment failed", err, slog.Int64("payment_id", paymentID), slog.Int64("invoice_id", req.InvoiceID))
		return
	}
	httpx.JSON(w, http.StatusCreated, app)
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, shared.Validationf("invalid date %q", raw)
	}
	return t, nil
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, slog.Any("error", err))
	if shared.UserSafeMessage(err) == "internal error" {
		h.logger.Error(msg, attrs...)
	} else {
		h.logger.Info(msg, attrs...)
	}
	httpx.RespondError(w, err)
}
