package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/pos"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
	lt "github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

const routerSecret = "router-secret"

type routerFixture struct {
	handler http.Handler
	metrics *observability.Metrics
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	env := lt.New(t)
	cfg := &Config{DefaultCurrency: "PHP", DefaultVATCode: "VAT12", RateLimitPerMinute: 1000, AppRequestTimeout: 5 * time.Second}
	metrics := observability.NewMetrics()
	services, err := NewServices(ServiceDeps{
		Runner:   env.Store,
		Audit:    env.Audit,
		Policy:   env.Policy,
		Observer: metrics,
		Config:   cfg,
		Now:      lt.Now,
	})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewRouter(RouterParams{
		Logger:   logger,
		Config:   cfg,
		Services: services,
		Auth:     auth.Middleware{Verifier: auth.NewVerifier(routerSecret, ""), Logger: logger},
		Policy:   env.Policy,
		Metrics:  metrics,
	})
	return routerFixture{handler: handler, metrics: metrics}
}

func token(t *testing.T, actorID int64, role string) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actorID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:  role,
		Units: []int64{lt.Unit},
	}).SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return raw
}

func (f routerFixture) do(t *testing.T, method, path, bearer, unit, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if unit != "" {
		req.Header.Set(auth.BusinessUnitHeader, unit)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

var unitHeader = strconv.FormatInt(lt.Unit, 10)

func TestHealthzIsPublic(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestReadinessReportsDependencies(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/readyz", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{}}`, rec.Body.String())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	down := NewRouter(RouterParams{
		Logger: logger,
		Config: &Config{RateLimitPerMinute: 1000, AppRequestTimeout: time.Second},
		Services: &Services{},
		Ready: func(context.Context) map[string]error {
			return map[string]error{"postgres": nil, "redis": errors.New("connection refused")}
		},
	})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"postgres":"ok","redis":"unavailable"}}`, rec.Body.String())
}

func TestLedgerRoutesRequireIdentityAndUnit(t *testing.T) {
	f := newRouterFixture(t)
	admin := token(t, 1, rbac.RoleAdmin)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/numbering-series", "", unitHeader, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/numbering-series", admin, "", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/numbering-series", admin, "99", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/numbering-series", admin, unitHeader, "").Code)
}

func TestIssueNumberOverHTTP(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/numbering-series/journal/issue", token(t, 1, rbac.RoleAdmin), unitHeader, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, accounting.DocumentTypeJournal+"-0001", body["number"])
}

func TestJournalDraftOverHTTP(t *testing.T) {
	f := newRouterFixture(t)
	accountant := token(t, 5, rbac.RoleAccountant)
	payload := `{"date":"2025-01-15","memo":"opening float","lines":[
		{"accountCode":"` + lt.Cash + `","debit":"500"},
		{"accountCode":"` + lt.Equity + `","credit":"500"}]}`

	rec := f.do(t, http.MethodPost, "/journal-entries", accountant, unitHeader, payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry accounting.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, accounting.JournalStatusDraft, entry.Status)
	assert.Equal(t, "PHP", entry.Currency)
	assert.Len(t, entry.Lines, 2)

	invalid := f.do(t, http.MethodPost, "/journal-entries", accountant, unitHeader, `{"date":"15/01/2025","lines":[]}`)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestCashierCannotConfigureLedger(t *testing.T) {
	f := newRouterFixture(t)
	cashier := token(t, 21, rbac.RoleCashier)
	rec := f.do(t, http.MethodPost, "/accounts", cashier, unitHeader, `{"code":"6000","name":"Rent","type":"EXPENSE","normalBalance":"DEBIT"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMetricsEndpointExposesRequests(t *testing.T) {
	f := newRouterFixture(t)
	f.do(t, http.MethodGet, "/healthz", "", "", "")
	rec := f.do(t, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `odyssey_http_requests_total{code="200",route="/healthz"}`)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/nowhere", "", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPartialPaymentOverHTTP(t *testing.T) {
	f := newRouterFixture(t)
	accountant := token(t, 5, rbac.RoleAccountant)

	rec := f.do(t, http.MethodPost, "/invoices", accountant, unitHeader, `{"kind":"AP","partyId":7,"date":"2025-01-10",
		"lines":[{"description":"coffee beans","quantity":"1","unitPrice":"2250","taxCode":"VAT12"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv billing.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	assert.True(t, lt.D("270").Equal(inv.TaxTotal), inv.TaxTotal.String())
	assert.True(t, lt.D("2520").Equal(inv.TotalAmount), inv.TotalAmount.String())

	rec = f.do(t, http.MethodPost, "/payments", accountant, unitHeader,
		`{"direction":"OUTGOING","partyId":7,"method":"bank","amount":"1000","date":"2025-01-12"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var payment billing.Payment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payment))

	apply := `{"invoiceId":` + strconv.FormatInt(inv.ID, 10) + `,"amount":"1000"}`
	rec = f.do(t, http.MethodPost, "/payments/"+strconv.FormatInt(payment.ID, 10)+"/apply", accountant, unitHeader, apply)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/invoices/"+strconv.FormatInt(inv.ID, 10), accountant, unitHeader, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view struct {
		Invoice   billing.Invoice
		Remaining decimal.Decimal
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, billing.SettlementPartial, view.Invoice.SettlementStatus)
	assert.True(t, lt.D("1520").Equal(view.Remaining), view.Remaining.String())
}

func TestOverApplicationIsUnprocessable(t *testing.T) {
	f := newRouterFixture(t)
	accountant := token(t, 5, rbac.RoleAccountant)

	rec := f.do(t, http.MethodPost, "/invoices", accountant, unitHeader, `{"kind":"AP","partyId":7,"date":"2025-01-10",
		"lines":[{"description":"milk","quantity":"1","unitPrice":"2000","taxCode":"EXEMPT"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv billing.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))

	rec = f.do(t, http.MethodPost, "/payments", accountant, unitHeader,
		`{"direction":"OUTGOING","partyId":7,"method":"bank","amount":"3000","date":"2025-01-12"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var payment billing.Payment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payment))

	apply := `{"invoiceId":` + strconv.FormatInt(inv.ID, 10) + `,"amount":"3000"}`
	rec = f.do(t, http.MethodPost, "/payments/"+strconv.FormatInt(payment.ID, 10)+"/apply", accountant, unitHeader, apply)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCashierSettlesOverHTTP(t *testing.T) {
	f := newRouterFixture(t)
	admin := token(t, 1, rbac.RoleAdmin)
	cashier := token(t, 21, rbac.RoleCashier)

	rec := f.do(t, http.MethodPost, "/pos/menu-items", admin, unitHeader, `{"code":"water","name":"Bottled water","price":"20"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item pos.MenuItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	rec = f.do(t, http.MethodPost, "/pos/orders", cashier, unitHeader, `{"locationId":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order pos.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	orderPath := "/pos/orders/" + strconv.FormatInt(order.ID, 10)

	rec = f.do(t, http.MethodPost, orderPath+"/lines", cashier, unitHeader,
		`{"menuItemId":`+strconv.FormatInt(item.ID, 10)+`,"quantity":"2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	locked := f.do(t, http.MethodPost, orderPath+"/settle", cashier, unitHeader,
		`{"paymentMethod":"cash","amountReceived":"50","discount":{"type":"FIXED","value":"5"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, locked.Code, locked.Body.String())

	rec = f.do(t, http.MethodPost, orderPath+"/settle", cashier, unitHeader, `{"paymentMethod":"cash","amountReceived":"50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var settled pos.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	assert.Equal(t, pos.OrderSettled, settled.Status)
	assert.True(t, lt.D("4.80").Equal(settled.Tax), settled.Tax.String())
	assert.True(t, lt.D("44.80").Equal(settled.Total), settled.Total.String())
	assert.True(t, lt.D("5.20").Equal(settled.Change), settled.Change.String())

	metrics := f.do(t, http.MethodGet, "/metrics", "", "", "")
	assert.Contains(t, metrics.Body.String(), `odyssey_ledger_operations_total{operation="pos.settle",outcome="ok"} 1`)
}
