package pos

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const idempotencyHeader = "Idempotency-Key"

// Handler exposes POS endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the POS handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers POS routes. The discount unlock stays open to every
// role because a supervisor PIN can stand in for the permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/pos", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.ActionPOSMenu)).Post("/menu-items", h.handleCreateMenuItem)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.ActionPOSOrder))
			r.Post("/orders", h.handleOpen)
			r.Get("/orders/{id}", h.handleGet)
			r.Post("/orders/{id}/lines", h.handleAddLine)
		})
		r.Post("/orders/{id}/discount-unlock", h.handleUnlock)
		r.With(h.rbac.RequireAny(rbac.ActionPOSSettle)).Post("/orders/{id}/settle", h.handleSettle)
		r.With(h.rbac.RequireAny(rbac.ActionPOSVoid)).Patch("/orders/{id}/void", h.handleVoid)
	})
}

type ingredientRequest struct {
	ItemID   int64           `json:"itemId" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
}

type menuItemRequest struct {
	Code        string              `json:"code" validate:"required,max=64"`
	Name        string              `json:"name" validate:"required,max=200"`
	Price       decimal.Decimal     `json:"price"`
	Ingredients []ingredientRequest `json:"ingredients" validate:"dive"`
}

type openRequest struct {
	LocationID int64  `json:"locationId" validate:"required,gt=0"`
	TaxCode    string `json:"taxCode" validate:"max=32"`
}

type lineRequest struct {
	MenuItemID int64           `json:"menuItemId" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type unlockRequest struct {
	SupervisorPIN string `json:"supervisorPin" validate:"max=32"`
}

type discountRequest struct {
	Type  string          `json:"type" validate:"required,oneof=PERCENT FIXED"`
	Value decimal.Decimal `json:"value"`
}

type settleRequest struct {
	PaymentMethod  string           `json:"paymentMethod" validate:"required,alphanum,max=32"`
	AmountReceived decimal.Decimal  `json:"amountReceived"`
	Discount       *discountRequest `json:"discount" validate:"omitempty"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleCreateMenuItem(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req menuItemRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ingredients := make([]Ingredient, 0, len(req.Ingredients))
	for _, ing := range req.Ingredients {
		ingredients = append(ingredients, Ingredient(ing))
	}
	item, err := h.service.CreateMenuItem(r.Context(), MenuItem{BusinessUnitID: unitID, Code: req.Code, Name: req.Name, Price: req.Price}, ingredients, actor)
	if err != nil {
		h.fail(w, "create menu item failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req openRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.OpenOrder(r.Context(), OpenInput{BusinessUnitID: unitID, LocationID: req.LocationID, TaxCode: req.TaxCode, Actor: actor})
	if err != nil {
		h.fail(w, "open order failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
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
	order, err := h.service.GetOrder(r.Context(), unitID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
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
	var req lineRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.AddLine(r.Context(), AddLineInput{BusinessUnitID: unitID, OrderID: id, MenuItemID: req.MenuItemID, Quantity: req.Quantity, Actor: actor})
	if err != nil {
		h.fail(w, "add order line failed", err, slog.Int64("order_id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
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
	var req unlockRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	grant, err := h.service.UnlockDiscount(r.Context(), unitID, id, actor, req.SupervisorPIN)
	if err != nil {
		h.fail(w, "discount unlock failed", err, slog.Int64("order_id", id), slog.Int64("actor_id", actor.ID))
		return
	}
	httpx.JSON(w, http.StatusCreated, grant)
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
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
	var req settleRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := SettleInput{
		BusinessUnitID: unitID,
		OrderID:        id,
		PaymentMethod:  req.PaymentMethod,
		AmountReceived: req.AmountReceived,
		Actor:          actor,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	}
	if req.Discount != nil {
		in.Discount = &Discount{Type: DiscountType(req.Discount.Type), Value: req.Discount.Value}
	}
	order, err := h.service.Settle(r.Context(), in)
	if err != nil {
		h.fail(w, "settle order failed", err, slog.Int64("order_id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
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
	var req voidRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.VoidOrder(r.Context(), unitID, id, actor, req.Reason)
	if err != nil {
		h.fail(w, "void order failed", err, slog.Int64("order_id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, order)
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
