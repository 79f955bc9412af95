package documents

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

// Handler exposes document chain endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the documents handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionDocumentView))
		r.Get("/documents/{id}", h.handleGet)
		r.Get("/documents/{id}/chain", h.handleChain)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionDocumentCreate))
		r.Post("/documents", h.handleCreate)
		r.Post("/documents/{id}/downstream", h.handleDownstream)
	})
	r.With(h.rbac.RequireAny(rbac.ActionDocumentCancel)).Patch("/documents/{id}/cancel", h.handleCancel)
	r.With(h.rbac.RequireAny(rbac.ActionInventoryReceive)).Post("/purchase-orders/{id}/receive", h.handleReceive)
}

type lineRequest struct {
	ItemID      int64           `json:"itemId" validate:"gte=0"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxCode     string          `json:"taxCode" validate:"max=32"`
}

type createRequest struct {
	Type       string        `json:"type" validate:"required,oneof=PURCHASE_REQUEST PURCHASE_ORDER SALES_QUOTATION SALES_ORDER"`
	PartyID    int64         `json:"partyId" validate:"gte=0"`
	LocationID int64         `json:"locationId" validate:"gte=0"`
	Date       string        `json:"date" validate:"required,datetime=2006-01-02"`
	Memo       string        `json:"memo" validate:"max=500"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type drawRequest struct {
	SourceLineID int64           `json:"sourceLineId" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type downstreamRequest struct {
	Type       string        `json:"type" validate:"required,oneof=PURCHASE_ORDER RECEIVING AP_INVOICE SALES_ORDER DELIVERY AR_INVOICE"`
	LocationID int64         `json:"locationId" validate:"gte=0"`
	Date       string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Memo       string        `json:"memo" validate:"max=500"`
	Lines      []drawRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid date %q", req.Date))
		return
	}
	in := CreateInput{
		BusinessUnitID: unitID,
		Type:           DocumentType(req.Type),
		PartyID:        req.PartyID,
		LocationID:     req.LocationID,
		Date:           date,
		Memo:           req.Memo,
		Actor:          actor,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput(l))
	}
	doc, err := h.service.CreateRoot(r.Context(), in)
	if err != nil {
		h.fail(w, "create document failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleDownstream(w http.ResponseWriter, r *http.Request) {
	h.downstream(w, r, "")
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	h.downstream(w, r, TypeReceiving)
}

func (h *Handler) downstream(w http.ResponseWriter, r *http.Request, forced DocumentType) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sourceID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req downstreamRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if forced != "" {
		req.Type = string(forced)
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := DownstreamInput{
		BusinessUnitID: unitID,
		SourceID:       sourceID,
		Type:           DocumentType(req.Type),
		LocationID:     req.LocationID,
		Memo:           req.Memo,
		Actor:          actor,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	}
	if req.Date != "" {
		if in.Date, err = time.Parse(dateLayout, req.Date); err != nil {
			httpx.RespondError(w, shared.Validationf("invalid date %q", req.Date))
			return
		}
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, DownstreamLine(l))
	}
	doc, err := h.service.CreateDownstream(r.Context(), in)
	if err != nil {
		h.fail(w, "create downstream document failed", err, slog.Int64("source_id", sourceID))
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Cancel(r.Context(), unitID, id, actor)
	if err != nil {
		h.fail(w, "cancel document failed", err, slog.Int64("document_id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
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
	doc, err := h.service.Get(r.Context(), unitID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleChain(w http.ResponseWriter, r *http.Request) {
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
	chain, err := h.service.Trace(r.Context(), unitID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": chain})
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
