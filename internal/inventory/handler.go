package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
)

// IdempotencyHeader names the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.ActionInventoryView))
			r.Get("/stock", h.handleListStock)
			r.Get("/stock/{id}/card", h.handleStockCard)
			r.Get("/stock/{id}/replay", h.handleReplay)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(rbac.ActionInventoryMove))
			r.Post("/items", h.handleCreateItem)
			r.Post("/movements", h.handleRecord)
			r.Post("/transfer", h.handleTransfer)
			r.Put("/reorder-points", h.handleReorderPoint)
		})
	})
}

type itemRequest struct {
	Code         string          `json:"code" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	UOM          string          `json:"uom" validate:"required,max=16"`
	StandardCost decimal.Decimal `json:"standardCost"`
}

type movementRequest struct {
	ItemID     int64           `json:"itemId" validate:"required,gt=0"`
	LocationID int64           `json:"locationId" validate:"required,gt=0"`
	Type       string          `json:"type" validate:"required,oneof=RECEIVING SALE_CONSUMPTION ADJUSTMENT"`
	Quantity   decimal.Decimal `json:"quantity"`
	SourceRef  string          `json:"sourceRef" validate:"max=128"`
}

type transferRequest struct {
	ItemID       int64           `json:"itemId" validate:"required,gt=0"`
	FromLocation int64           `json:"fromLocation" validate:"required,gt=0"`
	ToLocation   int64           `json:"toLocation" validate:"required,gt=0,nefield=FromLocation"`
	Quantity     decimal.Decimal `json:"quantity"`
	SourceRef    string          `json:"sourceRef" validate:"max=128"`
}

type reorderRequest struct {
	ItemID       int64           `json:"itemId" validate:"required,gt=0"`
	LocationID   int64           `json:"locationId" validate:"required,gt=0"`
	ReorderPoint decimal.Decimal `json:"reorderPoint"`
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), Item{BusinessUnitID: unitID, Code: req.Code, Name: req.Name, UOM: req.UOM, StandardCost: req.StandardCost})
	if err != nil {
		h.logger.Info("create item failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	move, err := h.service.Record(r.Context(), RecordInput{
		BusinessUnitID: unitID,
		ItemID:         req.ItemID,
		LocationID:     req.LocationID,
		Type:           MovementType(req.Type),
		Quantity:       req.Quantity,
		SourceRef:      req.SourceRef,
		ActorID:        actor.ID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.logger.Info("record movement failed", slog.Any("error", err), slog.Int64("item_id", req.ItemID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, move)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transferRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		BusinessUnitID: unitID,
		ItemID:         req.ItemID,
		FromLocation:   req.FromLocation,
		ToLocation:     req.ToLocation,
		Quantity:       req.Quantity,
		SourceRef:      req.SourceRef,
		ActorID:        actor.ID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.logger.Info("transfer failed", slog.Any("error", err), slog.Int64("item_id", req.ItemID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]Movement{"out": out, "in": in})
}

func (h *Handler) handleReorderPoint(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reorderRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.SetReorderPoint(r.Context(), unitID, req.ItemID, req.LocationID, req.ReorderPoint)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

type stockView struct {
	Stock
	NeedsReorder bool `json:"needsReorder"`
}

func (h *Handler) handleListStock(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stocks, err := h.service.ListStock(r.Context(), unitID)
	if err != nil {
		h.logger.Error("list stock failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]stockView, 0, len(stocks))
	for _, s := range stocks {
		out = append(out, stockView{Stock: s, NeedsReorder: s.NeedsReorder()})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
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
	card, err := h.service.StockCard(r.Context(), unitID, id)
	if err != nil {
		h.logger.Error("failed to get stock card", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Debug("got stock card", slog.Int("count", len(card)), slog.Int64("stock_id", id))
	httpx.JSON(w, http.StatusOK, card)
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
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
	qty, err := h.service.Replay(r.Context(), unitID, id)
	if err != nil {
		h.logger.Warn("stock replay failed", slog.Any("error", err), slog.Int64("stock_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"replayed": qty.String()})
}
