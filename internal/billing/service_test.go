package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	lt "github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

const (
	supplierID int64 = 7
	customerID int64 = 8
)

func newService(t *testing.T) (*lt.Env, *billing.Service) {
	env := lt.New(t)
	svc := billing.NewService(store.Billing(env.Store), env.Audit, env.Policy, nil)
	svc.WithNow(lt.Now)
	require.NoError(t, svc.WithDefaultCurrency("IDR"))
	return env, svc
}

func issueAP(t *testing.T, svc *billing.Service, lines ...billing.LineInput) billing.Invoice {
	t.Helper()
	inv, err := svc.IssueInvoice(context.Background(), billing.IssueInput{
		BusinessUnitID: lt.Unit,
		Kind:           billing.KindAP,
		PartyID:        supplierID,
		Date:           lt.Clock,
		Lines:          lines,
		Actor:          lt.Admin(),
	})
	require.NoError(t, err)
	return inv
}

func pay(t *testing.T, svc *billing.Service, dir billing.Direction, party int64, amount string) billing.Payment {
	t.Helper()
	p, err := svc.RecordPayment(context.Background(), billing.PaymentInput{
		BusinessUnitID: lt.Unit,
		Direction:      dir,
		PartyID:        party,
		Method:         "bank",
		Amount:         lt.D(amount),
		Date:           lt.Clock,
		Actor:          lt.Admin(),
	})
	require.NoError(t, err)
	return p
}

func TestIssuePurchaseInvoiceComputesVATAndPosts(t *testing.T) {
	env, svc := newService(t)

	inv := issueAP(t, svc,
		billing.LineInput{ItemID: 1, Description: "Coffee beans", Quantity: lt.D("10"), UnitPrice: lt.D("200"), TaxCode: "VAT12"},
		billing.LineInput{Description: "Delivery", Quantity: lt.D("1"), UnitPrice: lt.D("250"), TaxCode: "vat12"},
	)
	assert.Equal(t, "AP_INVOICE-0001", inv.Number)
	assert.True(t, inv.Subtotal.Equal(lt.D("2250")))
	assert.True(t, inv.TaxTotal.Equal(lt.D("270")))
	assert.True(t, inv.TotalAmount.Equal(lt.D("2520")))
	assert.Equal(t, billing.SettlementOpen, inv.SettlementStatus)
	assert.Equal(t, time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC), inv.DueDate)
	require.Len(t, inv.Taxes, 2)
	require.NotNil(t, inv.JournalEntryID)

	assert.True(t, env.Balance(t, lt.InventoryClear).Equal(lt.D("2000")))
	assert.True(t, env.Balance(t, lt.PurchaseExpense).Equal(lt.D("250")))
	assert.True(t, env.Balance(t, lt.VATInput).Equal(lt.D("270")))
	assert.True(t, env.Balance(t, lt.Payable).Equal(lt.D("-2520")))
}

func TestWithholdingLowersPayable(t *testing.T) {
	env, svc := newService(t)

	inv := issueAP(t, svc, billing.LineInput{Description: "Cleaning service", Quantity: lt.D("1"), UnitPrice: lt.D("1000"), TaxCode: "WHT2"})
	assert.True(t, inv.TaxTotal.Equal(lt.D("-20")))
	assert.True(t, inv.TotalAmount.Equal(lt.D("980")))
	assert.True(t, env.Balance(t, lt.WHTPayable).Equal(lt.D("-20")))
	assert.True(t, env.Balance(t, lt.Payable).Equal(lt.D("-980")))
}

func TestApplyPaymentPartiallySettles(t *testing.T) {
	env, svc := newService(t)
	ctx := context.Background()

	inv := issueAP(t, svc, billing.LineInput{Description: "Supplies", Quantity: lt.D("1"), UnitPrice: lt.D("2250"), TaxCode: "VAT12"})
	payment := pay(t, svc, billing.DirectionOutgoing, supplierID, "1000")
	assert.Equal(t, "PAYMENT_OUT-0001", payment.Number)

	app, err := svc.ApplyPayment(ctx, billing.ApplyInput{
		BusinessUnitID: lt.Unit, PaymentID: payment.ID, InvoiceID: inv.ID, Amount: lt.D("1000"), Actor: lt.Admin(),
	})
	require.NoError(t, err)
	require.NotNil(t, app.JournalEntryID)

	got, err := svc.GetInvoice(ctx, lt.Unit, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SettlementPartial, got.SettlementStatus)
	assert.True(t, got.Remaining().Equal(lt.D("1520")))
	assert.True(t, env.Balance(t, lt.Payable).Equal(lt.D("-1520")))
	assert.True(t, env.Balance(t, lt.Bank).Equal(lt.D("-1000")))

	second := pay(t, svc, billing.DirectionOutgoing, supplierID, "1520")
	_, err = svc.ApplyPayment(ctx, billing.ApplyInput{
		BusinessUnitID: lt.Unit, PaymentID: second.ID, InvoiceID: inv.ID, Amount: lt.D("1520"), Actor: lt.Admin(),
	})
	require.NoError(t, err)
	got, err = svc.GetInvoice(ctx, lt.Unit, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SettlementPaid, got.SettlementStatus)

	apps, err := svc.ListApplications(ctx, lt.Unit, 0, inv.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}

func TestApplyBeyondRemainingChangesNothing(t *testing.T) {
	env, svc := newService(t)
	ctx := context.Background()

	inv := issueAP(t, svc, billing.LineInput{Description: "Rent", Quantity: lt.D("1"), UnitPrice: lt.D("2000")})
	payment := pay(t, svc, billing.DirectionOutgoing, supplierID, "3000")

	_, err := svc.ApplyPayment(ctx, billing.ApplyInput{
		BusinessUnitID: lt.Unit, PaymentID: payment.ID, InvoiceID: inv.ID, Amount: lt.D("3000"), Actor: lt.Admin(),
	})
	require.ErrorIs(t, err, billing.ErrExceedsRemaining)
	assert.ErrorIs(t, err, shared.ErrInvariant)

	got, err := svc.GetInvoice(ctx, lt.Unit, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.IsZero())
	assert.Equal(t, billing.SettlementOpen, got.SettlementStatus)
	p, err := svc.GetPayment(ctx, lt.Unit, payment.ID)
	require.NoError(t, err)
	assert.True(t, p.Applied.IsZero())
	assert.True(t, env.Balance(t, lt.Bank).IsZero())
}

func TestPaymentSplitsAcrossInvoices(t *testing.T) {
	env, svc := newService(t)
	ctx := context.Background()

	first := issueAP(t, svc, billing.LineInput{Description: "Rent", Quantity: lt.D("1"), UnitPrice: lt.D("600")})
	second := issueAP(t, svc, billing.LineInput{Description: "Utilities", Quantity: lt.D("1"), UnitPrice: lt.D("800")})
	payment := pay(t, svc, billing.DirectionOutgoing, supplierID, "1000")
	apply := func(invoiceID int64, amount string) error {
		_, err := svc.ApplyPayment(ctx, billing.ApplyInput{
			BusinessUnitID: lt.Unit, PaymentID: payment.ID, InvoiceID: invoiceID, Amount: lt.D(amount), Actor: lt.Admin(),
		})
		return err
	}

	require.NoError(t, apply(first.ID, "600"))

	err := apply(second.ID, "500")
	require.ErrorIs(t, err, billing.ErrExceedsRemaining)
	assert.ErrorContains(t, err, "payment remaining 400.00")
	got, err := svc.GetInvoice(ctx, lt.Unit, second.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.IsZero())

	require.NoError(t, apply(second.ID, "400"))
	assert.ErrorIs(t, apply(second.ID, "0.01"), billing.ErrExceedsRemaining)

	p, err := svc.GetPayment(ctx, lt.Unit, payment.ID)
	require.NoError(t, err)
	assert.True(t, p.Applied.Equal(lt.D("1000")))
	assert.True(t, p.Remaining().IsZero())
	assert.False(t, p.Applied.GreaterThan(p.Amount))

	got, err = svc.GetInvoice(ctx, lt.Unit, first.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SettlementPaid, got.SettlementStatus)
	got, err = svc.GetInvoice(ctx, lt.Unit, second.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SettlementPartial, got.SettlementStatus)
	assert.True(t, got.Remaining().Equal(lt.D("400")))

	apps, err := svc.ListApplications(ctx, lt.Unit, payment.ID, 0)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
	assert.True(t, env.Balance(t, lt.Bank).Equal(lt.D("-1000")))
	assert.True(t, env.Balance(t, lt.Payable).Equal(lt.D("-400")))
}

func TestApplicationJournalUsesPaymentDate(t *testing.T) {
	env, svc := newService(t)
	ctx := context.Background()

	inv := issueAP(t, svc, billing.LineInput{Description: "Rent", Quantity: lt.D("1"), UnitPrice: lt.D("300")})
	payment, err := svc.RecordPayment(ctx, billing.PaymentInput{
		BusinessUnitID: lt.Unit,
		Direction:      billing.DirectionOutgoing,
		PartyID:        supplierID,
		Method:         "bank",
		Amount:         lt.D("300"),
		Date:           time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC),
		Actor:          lt.Admin(),
	})
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC) })
	_, err = svc.ApplyPayment(ctx, billing.ApplyInput{
		BusinessUnitID: lt.Unit, PaymentID: payment.ID, InvoiceID: inv.ID, Amount: lt.D("300"), Actor: lt.Admin(),
	})
	require.NoError(t, err)
	assert.True(t, env.Balance(t, lt.Bank).Equal(lt.D("-300")))
	assert.True(t, env.Balance(t, lt.Payable).IsZero())
}

func TestApplyRejectsMismatches(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()

	inv := issueAP(t, svc, billing.LineInput{Description: "Rent", Quantity: lt.D("1"), UnitPrice: lt.D("500")})

	incoming := pay(t, svc, billing.DirectionIncoming, supplierID, "100")
	_, err := svc.ApplyPayment(ctx, billing.ApplyInput{
		BusinessUnitID: lt.Unit, PaymentID: incoming.ID, InvoiceID: inv.ID, Amount: lt.D("100"), Actor: lt.Admin(),
	})
	assert.ErrorIs(t, err, billing.ErrDirectionMismatch)

	other := pay(t, svc, billing.DirectionOutgoing, supplierID+1, "100")
	_, err = svc.ApplyPayment(ctx, billing.ApplyInput{
		BusinessUnitID: lt.Unit, PaymentID: other.ID, InvoiceID: inv.ID, Amount: lt.D("100"), Actor: lt.Admin(),
	})
	assert.ErrorIs(t, err, billing.ErrPartyMismatch)

	_, err = svc.ApplyPayment(ctx, billing.ApplyInput{
		BusinessUnitID: lt.Unit, PaymentID: other.ID, InvoiceID: inv.ID, Amount: lt.D("0.001"), Actor: lt.Admin(),
	})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)
}

func TestSalesInvoicePostsReceivableWithCustomerRef(t *testing.T) {
	env, svc := newService(t)
	ctx := context.Background()

	inv, err := svc.IssueInvoice(ctx, billing.IssueInput{
		BusinessUnitID: lt.Unit,
		Kind:           billing.KindAR,
		PartyID:        customerID,
		Date:           lt.Clock,
		Lines:          []billing.LineInput{{Description: "Catering", Quantity: lt.D("2"), UnitPrice: lt.D("150.25"), TaxCode: "VAT12"}},
		Actor:          lt.Admin(),
	})
	require.NoError(t, err)
	assert.True(t, inv.TotalAmount.Equal(lt.D("336.56")))
	assert.True(t, env.Balance(t, lt.Receivable).Equal(lt.D("336.56")))
	assert.True(t, env.Balance(t, lt.VATPayable).Equal(lt.D("-36.06")))

	incoming := pay(t, svc, billing.DirectionIncoming, customerID, "336.56")
	_, err = svc.ApplyPayment(ctx, billing.ApplyInput{
		BusinessUnitID: lt.Unit, PaymentID: incoming.ID, InvoiceID: inv.ID, Amount: lt.D("336.56"), Actor: lt.Admin(),
	})
	require.NoError(t, err)
	assert.True(t, env.Balance(t, lt.Receivable).IsZero())
}

func TestIssueFailsWithoutPeriod(t *testing.T) {
	env, svc := newService(t)
	_, err := svc.IssueInvoice(context.Background(), billing.IssueInput{
		BusinessUnitID: lt.Unit,
		Kind:           billing.KindAP,
		PartyID:        supplierID,
		Date:           time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		Lines:          []billing.LineInput{{Description: "Rent", Quantity: lt.D("1"), UnitPrice: lt.D("100")}},
		Actor:          lt.Admin(),
	})
	assert.ErrorIs(t, err, accounting.ErrNoPeriod)
	assert.True(t, env.Balance(t, lt.Payable).IsZero())
}

func TestAgingBucketsByDaysPastDue(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()

	issueAP(t, svc, billing.LineInput{Description: "Rent", Quantity: lt.D("1"), UnitPrice: lt.D("100")})
	_, err := svc.IssueInvoice(ctx, billing.IssueInput{
		BusinessUnitID: lt.Unit,
		Kind:           billing.KindAP,
		PartyID:        supplierID,
		Date:           time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
		DueDate:        time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC),
		Lines:          []billing.LineInput{{Description: "Gas", Quantity: lt.D("1"), UnitPrice: lt.D("40")}},
		Actor:          lt.Admin(),
	})
	require.NoError(t, err)

	aging, err := svc.Aging(ctx, lt.Unit, billing.KindAP, time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, aging.Current.Equal(lt.D("100")))
	assert.True(t, aging.Bucket60.Equal(lt.D("40")))
	assert.True(t, aging.Bucket30.IsZero())
}

func TestCashierCannotIssueInvoices(t *testing.T) {
	_, svc := newService(t)
	_, err := svc.IssueInvoice(context.Background(), billing.IssueInput{
		BusinessUnitID: lt.Unit,
		Kind:           billing.KindAP,
		PartyID:        supplierID,
		Date:           lt.Clock,
		Lines:          []billing.LineInput{{Description: "Rent", Quantity: lt.D("1"), UnitPrice: lt.D("100")}},
		Actor:          lt.Actor(3, "cashier"),
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}
