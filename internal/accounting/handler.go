package accounting

import (
	"context"
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

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for the ledger.
type Handler struct {
	logger   *slog.Logger
	journals *Service
	chart    *ChartService
	periods  *PeriodService
	rbac     rbac.Middleware
}

// NewHandler constructs the accounting handler.
func NewHandler(logger *slog.Logger, journals *Service, chart *ChartService, periods *PeriodService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, journals: journals, chart: chart, periods: periods, rbac: rbac}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/journal-entries", func(r chi.Router) {
		r.Post("/", h.handleCreateDraft)
		r.With(h.rbac.RequireAny(rbac.ActionJournalView)).Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdateDraft)
		r.Delete("/{id}", h.handleDelete)
		r.Patch("/{id}/submit", h.handleTransition(h.journals.Submit))
		r.Patch("/{id}/approve", h.handleTransition(h.journals.Approve))
		r.Patch("/{id}/reject", h.handleTransition(h.journals.Reject))
		r.Patch("/{id}/post", h.handleTransition(h.journals.Post))
		r.Post("/{id}/reverse", h.handleReverse)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionLedgerSetup))
		r.Post("/accounts", h.handleCreateAccount)
		r.Post("/account-mappings", h.handleSetMapping)
		r.Post("/periods", h.handleCreatePeriod)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionJournalView, rbac.ActionLedgerSetup))
		r.Get("/accounts", h.handleListAccounts)
		r.Get("/periods", h.handleListPeriods)
		r.Get("/periods/{id}/trial-balance", h.handleTrialBalance)
	})
	r.Patch("/periods/{id}/close", h.handleClosePeriod)
}

type lineRequest struct {
	AccountCode   string          `json:"accountCode" validate:"required"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Description   string          `json:"description"`
	SubsidiaryRef string          `json:"subsidiaryRef"`
}

type draftRequest struct {
	Date     string        `json:"date" validate:"required,datetime=2006-01-02"`
	Memo     string        `json:"memo" validate:"max=500"`
	Currency string        `json:"currency" validate:"omitempty,len=3"`
	Lines    []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (req draftRequest) toInput(unitID int64, actor shared.Actor) (DraftInput, error) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return DraftInput{}, shared.Validationf("invalid date %q", req.Date)
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput(l))
	}
	return DraftInput{BusinessUnitID: unitID, Date: date, Memo: req.Memo, Currency: req.Currency, Lines: lines, Actor: actor}, nil
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req draftRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput(unitID, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.journals.CreateDraft(r.Context(), in)
	if err != nil {
		h.fail(w, "create journal draft failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
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
	var req draftRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput(unitID, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.journals.UpdateDraft(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update journal draft failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
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
	entry, err := h.journals.Get(r.Context(), unitID, id)
	if err != nil {
		h.fail(w, "get journal entry failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.journals.Delete(r.Context(), unitID, id, actor); err != nil {
		h.fail(w, "delete journal entry failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, unitID, entryID int64, actor shared.Actor) (JournalEntry, error)

func (h *Handler) handleTransition(step transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		entry, err := step(r.Context(), unitID, id, actor)
		if err != nil {
			h.fail(w, "journal transition failed", err)
			return
		}
		httpx.JSON(w, http.StatusOK, entry)
	}
}

type reverseRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Memo string `json:"memo" validate:"max=500"`
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
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
	var req reverseRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ReverseInput{BusinessUnitID: unitID, EntryID: id, Memo: req.Memo, Actor: actor}
	if req.Date != "" {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("invalid date %q", req.Date))
			return
		}
		in.Date = &date
	}
	entry, err := h.journals.Reverse(r.Context(), in)
	if err != nil {
		h.fail(w, "reverse journal entry failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type accountRequest struct {
	Code          string `json:"code" validate:"required,max=32"`
	Name          string `json:"name" validate:"required,max=200"`
	Type          string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	NormalBalance string `json:"normalBalance" validate:"omitempty,oneof=DEBIT CREDIT"`
	IsControl     bool   `json:"isControl"`
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	unitID, actor, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req accountRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.chart.Create(r.Context(), Account{
		BusinessUnitID: unitID,
		Code:           req.Code,
		Name:           req.Name,
		Type:           AccountType(req.Type),
		NormalBalance:  NormalBalance(req.NormalBalance),
		IsControl:      req.IsControl,
	}, actor)
	if err != nil {
		h.fail(w, "create account failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accounts, err := h.chart.List(r.Context(), unitID)
	if err != nil {
		h.fail(w, "list accounts failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

type mappingRequest struct {
	Key         string `json:"key" validate:"required,max=64"`
	AccountCode string `json:"accountCode" validate:"required"`
}

func (h *Handler) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req mappingRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.chart.SetMapping(r.Context(), AccountMapping{BusinessUnitID: unitID, Key: req.Key, AccountCode: req.AccountCode}); err != nil {
		h.fail(w, "set account mapping failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type periodRequest struct {
	FiscalYear   int    `json:"fiscalYear" validate:"required,gt=0"`
	PeriodNumber int    `json:"periodNumber" validate:"required,gt=0"`
	StartDate    string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate      string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req periodRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)
	period, err := h.periods.Create(r.Context(), Period{
		BusinessUnitID: unitID,
		FiscalYear:     req.FiscalYear,
		PeriodNumber:   req.PeriodNumber,
		StartDate:      start,
		EndDate:        end,
	})
	if err != nil {
		h.fail(w, "create period failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	unitID, _, err := auth.RequestScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	periods, err := h.periods.List(r.Context(), unitID)
	if err != nil {
		h.fail(w, "list periods failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

func (h *Handler) handleClosePeriod(w http.ResponseWriter, r *http.Request) {
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
	period, err := h.periods.Close(r.Context(), unitID, id, actor)
	if err != nil {
		h.fail(w, "close period failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
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
	tb, err := h.journals.TrialBalance(r.Context(), unitID, id)
	if err != nil {
		h.fail(w, "trial balance failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if shared.UserSafeMessage(err) == "internal error" {
		h.logger.Error(msg, slog.Any("error", err))
	} else {
		h.logger.Info(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
