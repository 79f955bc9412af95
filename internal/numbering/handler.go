package numbering

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes numbering series endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the numbering handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers numbering routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/numbering-series", h.handleList)
	r.With(h.rbac.RequireAny(rbac.ActionNumberingConfig)).Post("/numbering-series", h.handleConfigure)
	r.With(h.rbac.RequireAny(rbac.ActionNumberingIssue)).Post("/numbering-series/{type}/issue", h.handleIssue)
}

type seriesRequest struct {
	DocumentType string `json:"documentType" validate:"required,max=64"`
	Prefix       string `json:"prefix" validate:"max=32"`
	Padding      int    `json:"padding" validate:"gte=0,lte=18"`
	NextNumber   int64  `json:"nextNumber" validate:"gte=0"`
}

func (h *Handler) handleConfigure(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req seriesRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	series, err := h.service.Configure(r.Context(), Series{
		BusinessUnitID: unitID,
		DocumentType:   req.DocumentType,
		Prefix:         req.Prefix,
		Padding:        req.Padding,
		NextNumber:     req.NextNumber,
	})
	if err != nil {
		h.fail(w, "configure series failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, series)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docType := strings.TrimSpace(chi.URLParam(r, "type"))
	if docType == "" {
		httpx.RespondError(w, ErrInvalidSeries)
		return
	}
	number, err := h.service.Issue(r.Context(), unitID, docType)
	if err != nil {
		h.fail(w, "issue number failed", err, slog.String("document_type", docType))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"documentType": strings.ToUpper(docType), "number": number})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	series, err := h.service.List(r.Context(), unitID)
	if err != nil {
		h.fail(w, "list series failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, series)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, slog.Any("error", err))
	if shared.UserSafeMessage(err) == "internal error" {
		h.logger.Error(msg, attrs...)
	} else {
		h.logger.Warn(msg, attrs...)
	}
	httpx.RespondError(w, err)
}
