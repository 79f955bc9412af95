package tax

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
)

// Handler exposes the tax code registry.
type Handler struct {
	logger *slog.Logger
	engine *Engine
	rbac   rbac.Middleware
}

// NewHandler constructs the tax handler.
func NewHandler(logger *slog.Logger, engine *Engine, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, engine: engine, rbac: rbac}
}

// MountRoutes registers tax routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.ActionLedgerSetup)).Post("/tax-codes", h.handleCreate)
	r.Get("/tax-codes", h.handleList)
}

type codeRequest struct {
	Code             string          `json:"code" validate:"required,max=32"`
	Name             string          `json:"name" validate:"required,max=200"`
	Kind             string          `json:"kind" validate:"omitempty,oneof=VAT WITHHOLDING"`
	Rate             decimal.Decimal `json:"rate"`
	Treatment        string          `json:"treatment" validate:"omitempty,oneof=STANDARD ZERO_RATED EXEMPT"`
	InputAccountKey  string          `json:"inputAccountKey"`
	OutputAccountKey string          `json:"outputAccountKey"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req codeRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	code, err := h.engine.Register(r.Context(), Code{
		BusinessUnitID:   unitID,
		Code:             req.Code,
		Name:             req.Name,
		Kind:             Kind(req.Kind),
		Rate:             req.Rate,
		Treatment:        Treatment(req.Treatment),
		InputAccountKey:  req.InputAccountKey,
		OutputAccountKey: req.OutputAccountKey,
	})
	if err != nil {
		h.logger.Info("register tax code failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, code)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	codes, err := h.engine.List(r.Context(), unitID)
	if err != nil {
		h.logger.Error("list tax codes failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, codes)
}
