// Package ledgertest seeds an in-memory store with a small restaurant chart of
// accounts, open periods, numbering series and tax codes for service tests.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// Unit is the business unit every fixture lives in.
const Unit int64 = 10

// Clock is the fixed time services run at; it falls in the open January period.
var Clock = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

// Now returns Clock.
func Now() time.Time { return Clock }

// Account codes of the seeded chart.
const (
	Cash            = "1000"
	Bank            = "1010"
	Receivable      = "1100"
	WHTReceivable   = "1150"
	InventoryClear  = "1200"
	VATInput        = "1300"
	Payable         = "2100"
	VATPayable      = "2200"
	WHTPayable      = "2210"
	Equity          = "3000"
	SalesRevenue    = "4000"
	SalesDiscount   = "4100"
	PurchaseExpense = "5000"
)

// Env is a seeded store plus the collaborators services take.
type Env struct {
	Store  *memory.Store
	Audit  *shared.MemoryAuditLog
	Policy *rbac.Policy
	// January and February are open periods of 2025.
	January  accounting.Period
	February accounting.Period
}

// Actor returns an actor of role scoped to Unit.
func Actor(id int64, role string) shared.Actor {
	return shared.Actor{ID: id, Role: role, Units: []int64{Unit}}
}

// Admin is allowed everything.
func Admin() shared.Actor { return Actor(1, rbac.RoleAdmin) }

// D parses a decimal literal.
func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// New returns a freshly seeded environment.
func New(t testing.TB) *Env {
	t.Helper()
	env := &Env{Store: memory.New(), Audit: &shared.MemoryAuditLog{}, Policy: rbac.DefaultPolicy()}
	err := env.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, docType := range []string{
			accounting.DocumentTypeJournal, "PURCHASE_REQUEST", "PURCHASE_ORDER", "RECEIVING", "AP_INVOICE",
			"SALES_QUOTATION", "SALES_ORDER", "DELIVERY", "AR_INVOICE", "PAYMENT_IN", "PAYMENT_OUT", "POS_ORDER",
		} {
			if _, err := tx.SaveSeries(ctx, numbering.Series{
				BusinessUnitID: Unit, DocumentType: docType, Prefix: docType + "-", Padding: 4, NextNumber: 1,
			}); err != nil {
				return err
			}
		}
		accounts := []accounting.Account{
			{Code: Cash, Name: "Cash on hand", Type: accounting.AccountTypeAsset, NormalBalance: accounting.NormalDebit},
			{Code: Bank, Name: "Bank", Type: accounting.AccountTypeAsset, NormalBalance: accounting.NormalDebit},
			{Code: Receivable, Name: "Accounts receivable", Type: accounting.AccountTypeAsset, NormalBalance: accounting.NormalDebit, IsControl: true},
			{Code: WHTReceivable, Name: "Withholding receivable", Type: accounting.AccountTypeAsset, NormalBalance: accounting.NormalDebit},
			{Code: InventoryClear, Name: "Goods received clearing", Type: accounting.AccountTypeAsset, NormalBalance: accounting.NormalDebit},
			{Code: VATInput, Name: "VAT input", Type: accounting.AccountTypeAsset, NormalBalance: accounting.NormalDebit},
			{Code: Payable, Name: "Accounts payable", Type: accounting.AccountTypeLiability, NormalBalance: accounting.NormalCredit, IsControl: true},
			{Code: VATPayable, Name: "VAT payable", Type: accounting.AccountTypeLiability, NormalBalance: accounting.NormalCredit},
			{Code: WHTPayable, Name: "Withholding payable", Type: accounting.AccountTypeLiability, NormalBalance: accounting.NormalCredit},
			{Code: Equity, Name: "Owner equity", Type: accounting.AccountTypeEquity, NormalBalance: accounting.NormalCredit},
			{Code: SalesRevenue, Name: "Food and beverage sales", Type: accounting.AccountTypeRevenue, NormalBalance: accounting.NormalCredit},
			{Code: SalesDiscount, Name: "Sales discounts", Type: accounting.AccountTypeRevenue, NormalBalance: accounting.NormalDebit},
			{Code: PurchaseExpense, Name: "Purchases", Type: accounting.AccountTypeExpense, NormalBalance: accounting.NormalDebit},
		}
		for _, a := range accounts {
			a.BusinessUnitID = Unit
			a.IsActive = true
			if _, err := tx.InsertAccount(ctx, a); err != nil {
				return err
			}
		}
		mappings := map[string]string{
			"cash.cash": Cash, "cash.bank": Bank, "cash.card": Bank,
			"ar.control": Receivable, "ap.control": Payable,
			tax.KeyWHTReceivable: WHTReceivable, tax.KeyWHTPayable: WHTPayable,
			tax.KeyVATInput: VATInput, tax.KeyVATPayable: VATPayable,
			"inventory.clearing": InventoryClear, "purchase.expense": PurchaseExpense,
			"sales.revenue": SalesRevenue, "sales.discount": SalesDiscount,
		}
		for key, code := range mappings {
			if err := tx.SaveAccountMapping(ctx, accounting.AccountMapping{BusinessUnitID: Unit, Key: key, AccountCode: code}); err != nil {
				return err
			}
		}
		var err error
		env.January, err = tx.InsertPeriod(ctx, accounting.Period{
			BusinessUnitID: Unit, FiscalYear: 2025, PeriodNumber: 1, Status: accounting.PeriodStatusOpen,
			StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			return err
		}
		env.February, err = tx.InsertPeriod(ctx, accounting.Period{
			BusinessUnitID: Unit, FiscalYear: 2025, PeriodNumber: 2, Status: accounting.PeriodStatusOpen,
			StartDate: time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			return err
		}
		codes := []tax.Code{
			{Code: "VAT12", Name: "VAT 12%", Kind: tax.KindVAT, Rate: D("12"), Treatment: tax.TreatmentStandard,
				InputAccountKey: tax.KeyVATInput, OutputAccountKey: tax.KeyVATPayable},
			{Code: "WHT2", Name: "Withholding 2%", Kind: tax.KindWithholding, Rate: D("2"), Treatment: tax.TreatmentStandard,
				InputAccountKey: tax.KeyWHTPayable, OutputAccountKey: tax.KeyWHTReceivable},
			{Code: "EXEMPT", Name: "Exempt", Kind: tax.KindVAT, Rate: decimal.Zero, Treatment: tax.TreatmentExempt,
				InputAccountKey: tax.KeyVATInput, OutputAccountKey: tax.KeyVATPayable},
		}
		for _, c := range codes {
			c.BusinessUnitID = Unit
			c.IsActive = true
			if _, err := tx.InsertTaxCode(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return env
}

// Item registers a stock item and returns its id.
func (e *Env) Item(t testing.TB, code, uom string) int64 {
	t.Helper()
	var id int64
	err := e.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		item, err := tx.InsertItem(ctx, inventory.Item{BusinessUnitID: Unit, Code: code, Name: code, UOM: uom, CreatedAt: Clock})
		id = item.ID
		return err
	})
	require.NoError(t, err)
	return id
}

// OnHand returns the quantity of item at location, zero when no stock row exists.
func (e *Env) OnHand(t testing.TB, itemID, locationID int64) decimal.Decimal {
	t.Helper()
	qty := decimal.Zero
	err := e.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		stocks, err := tx.ListStock(ctx, Unit)
		for _, s := range stocks {
			if s.ItemID == itemID && s.LocationID == locationID {
				qty = s.QuantityOnHand
			}
		}
		return err
	})
	require.NoError(t, err)
	return qty
}

// Balance returns debit minus credit of posted lines on code across both seeded periods.
func (e *Env) Balance(t testing.TB, code string) decimal.Decimal {
	t.Helper()
	balance := decimal.Zero
	err := e.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.SumPostedLines(ctx, Unit, e.January.StartDate, e.February.EndDate)
		for _, row := range rows {
			if row.AccountCode == code {
				balance = row.Debit.Sub(row.Credit)
			}
		}
		return err
	})
	require.NoError(t, err)
	return balance
}
