package documents_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	lt "github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

const (
	supplierID int64 = 7
	customerID int64 = 8
	kitchen    int64 = 1
)

type fixture struct {
	env  *lt.Env
	docs *documents.Service
	bill *billing.Service
	item int64
}

func newFixture(t *testing.T) fixture {
	env := lt.New(t)
	docs := documents.NewService(store.Documents(env.Store), env.Audit, env.Policy, nil)
	docs.WithNow(lt.Now)
	bill := billing.NewService(store.Billing(env.Store), env.Audit, env.Policy, nil)
	bill.WithNow(lt.Now)
	docs.WithInvoiceIssuer(bill)
	return fixture{env: env, docs: docs, bill: bill, item: env.Item(t, "BEANS", "kg")}
}

func (f fixture) purchaseOrder(t *testing.T, qty string) documents.Document {
	t.Helper()
	po, err := f.docs.CreateRoot(context.Background(), documents.CreateInput{
		BusinessUnitID: lt.Unit,
		Type:           documents.TypePurchaseOrder,
		PartyID:        supplierID,
		LocationID:     kitchen,
		Date:           lt.Clock,
		Lines: []documents.LineInput{
			{ItemID: f.item, Description: "Arabica beans", Quantity: lt.D(qty), UnitPrice: lt.D("200"), TaxCode: "vat12"},
		},
		Actor: lt.Admin(),
	})
	require.NoError(t, err)
	return po
}

func (f fixture) receive(po documents.Document, qty string) (documents.Document, error) {
	return f.docs.Receive(context.Background(), documents.DownstreamInput{
		BusinessUnitID: lt.Unit,
		SourceID:       po.ID,
		Lines:          []documents.DownstreamLine{{SourceLineID: po.Lines[0].ID, Quantity: lt.D(qty)}},
		Actor:          lt.Admin(),
	})
}

func TestReceivingDrawsDownOrderAndBooksStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po := f.purchaseOrder(t, "10")
	assert.Equal(t, "PURCHASE_ORDER-0001", po.Number)
	assert.Equal(t, "VAT12", po.Lines[0].TaxCode)

	rcv, err := f.receive(po, "6")
	require.NoError(t, err)
	assert.Equal(t, documents.TypeReceiving, rcv.Type)
	assert.Equal(t, kitchen, rcv.LocationID)
	require.NotNil(t, rcv.SourceID)
	assert.Equal(t, po.ID, *rcv.SourceID)
	assert.True(t, f.env.OnHand(t, f.item, kitchen).Equal(lt.D("6")))

	got, err := f.docs.Get(ctx, lt.Unit, po.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusOpen, got.Status)
	assert.True(t, got.Lines[0].OpenQuantity.Equal(lt.D("4")))

	_, err = f.receive(po, "5")
	require.ErrorIs(t, err, documents.ErrExceedsOpenQuantity)
	assert.True(t, f.env.OnHand(t, f.item, kitchen).Equal(lt.D("6")))

	_, err = f.receive(po, "4")
	require.NoError(t, err)
	got, err = f.docs.Get(ctx, lt.Unit, po.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusClosed, got.Status)
	assert.True(t, got.Lines[0].OpenQuantity.IsZero())
	assert.True(t, f.env.OnHand(t, f.item, kitchen).Equal(lt.D("10")))

	_, err = f.receive(po, "1")
	assert.ErrorIs(t, err, documents.ErrInvalidTransition)
}

func TestInvoiceFromReceivingIssuesBilling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po := f.purchaseOrder(t, "10")
	rcv, err := f.receive(po, "6")
	require.NoError(t, err)

	doc, err := f.docs.CreateDownstream(ctx, documents.DownstreamInput{
		BusinessUnitID: lt.Unit,
		SourceID:       rcv.ID,
		Type:           documents.TypeAPInvoice,
		Lines:          []documents.DownstreamLine{{SourceLineID: rcv.Lines[0].ID, Quantity: lt.D("6")}},
		Actor:          lt.Admin(),
	})
	require.NoError(t, err)
	assert.Equal(t, documents.StatusClosed, doc.Status)
	assert.Equal(t, "AP_INVOICE-0001", doc.Number)
	assert.True(t, doc.Lines[0].OpenQuantity.IsZero())

	assert.True(t, f.env.Balance(t, lt.InventoryClear).Equal(lt.D("1200")))
	assert.True(t, f.env.Balance(t, lt.VATInput).Equal(lt.D("144")))
	assert.True(t, f.env.Balance(t, lt.Payable).Equal(lt.D("-1344")))

	got, err := f.docs.Get(ctx, lt.Unit, rcv.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusClosed, got.Status)

	chain, err := f.docs.Trace(ctx, lt.Unit, po.ID)
	require.NoError(t, err)
	var types []documents.DocumentType
	for _, d := range chain {
		types = append(types, d.Type)
	}
	assert.Equal(t, []documents.DocumentType{documents.TypePurchaseOrder, documents.TypeReceiving, documents.TypeAPInvoice}, types)
}

func (f fixture) stock(t *testing.T) []inventory.Stock {
	t.Helper()
	var out []inventory.Stock
	err := store.Inventory(f.env.Store).WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		out, err = tx.ListStock(ctx, lt.Unit)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestSalesChainInvoicesWithoutMovingStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.receive(f.purchaseOrder(t, "10"), "10")
	require.NoError(t, err)
	before := f.stock(t)

	so, err := f.docs.CreateRoot(ctx, documents.CreateInput{
		BusinessUnitID: lt.Unit,
		Type:           documents.TypeSalesOrder,
		PartyID:        customerID,
		LocationID:     kitchen,
		Date:           lt.Clock,
		Lines: []documents.LineInput{
			{ItemID: f.item, Description: "Roasted beans", Quantity: lt.D("5"), UnitPrice: lt.D("100"), TaxCode: "VAT12"},
		},
		Actor: lt.Admin(),
	})
	require.NoError(t, err)

	open := so.Lines[0].OpenQuantity
	var deliveries []documents.Document
	for _, qty := range []string{"2", "3"} {
		del, err := f.docs.CreateDownstream(ctx, documents.DownstreamInput{
			BusinessUnitID: lt.Unit,
			SourceID:       so.ID,
			Type:           documents.TypeDelivery,
			Lines:          []documents.DownstreamLine{{SourceLineID: so.Lines[0].ID, Quantity: lt.D(qty)}},
			Actor:          lt.Admin(),
		})
		require.NoError(t, err)
		deliveries = append(deliveries, del)

		got, err := f.docs.Get(ctx, lt.Unit, so.ID)
		require.NoError(t, err)
		assert.True(t, got.Lines[0].OpenQuantity.LessThan(open), "open quantity must fall")
		open = got.Lines[0].OpenQuantity
	}
	assert.True(t, open.IsZero())
	assert.Equal(t, before, f.stock(t))

	for _, del := range deliveries {
		inv, err := f.docs.CreateDownstream(ctx, documents.DownstreamInput{
			BusinessUnitID: lt.Unit,
			SourceID:       del.ID,
			Type:           documents.TypeARInvoice,
			Lines:          []documents.DownstreamLine{{SourceLineID: del.Lines[0].ID, Quantity: del.Lines[0].Quantity}},
			Actor:          lt.Admin(),
		})
		require.NoError(t, err)
		assert.Equal(t, documents.TypeARInvoice, inv.Type)
	}
	assert.True(t, f.env.Balance(t, lt.Receivable).Equal(lt.D("560")))
	assert.True(t, f.env.Balance(t, lt.VATPayable).Equal(lt.D("-60")))
	assert.Equal(t, before, f.stock(t))

	got, err := f.docs.Get(ctx, lt.Unit, so.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusClosed, got.Status)
	for _, del := range deliveries {
		got, err := f.docs.Get(ctx, lt.Unit, del.ID)
		require.NoError(t, err)
		assert.Equal(t, documents.StatusClosed, got.Status)
		assert.True(t, got.Lines[0].OpenQuantity.IsZero())
	}
}

func TestChainOrderIsEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po := f.purchaseOrder(t, "2")
	_, err := f.docs.CreateDownstream(ctx, documents.DownstreamInput{
		BusinessUnitID: lt.Unit,
		SourceID:       po.ID,
		Type:           documents.TypeDelivery,
		Lines:          []documents.DownstreamLine{{SourceLineID: po.Lines[0].ID, Quantity: lt.D("1")}},
		Actor:          lt.Admin(),
	})
	assert.ErrorIs(t, err, documents.ErrInvalidChain)

	_, err = f.docs.CreateRoot(ctx, documents.CreateInput{
		BusinessUnitID: lt.Unit,
		Type:           documents.TypeReceiving,
		PartyID:        supplierID,
		Date:           lt.Clock,
		Lines:          []documents.LineInput{{ItemID: f.item, Quantity: decimal.NewFromInt(1)}},
		Actor:          lt.Admin(),
	})
	assert.ErrorIs(t, err, documents.ErrInvalidChain)

	_, err = f.docs.CreateDownstream(ctx, documents.DownstreamInput{
		BusinessUnitID: lt.Unit,
		SourceID:       po.ID,
		Type:           documents.TypeReceiving,
		Lines:          []documents.DownstreamLine{{SourceLineID: 9999, Quantity: lt.D("1")}},
		Actor:          lt.Admin(),
	})
	assert.ErrorIs(t, err, documents.ErrUnknownSourceLine)
}

func TestCancelOnlyUntouchedOpenDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pr, err := f.docs.CreateRoot(ctx, documents.CreateInput{
		BusinessUnitID: lt.Unit,
		Type:           documents.TypePurchaseRequest,
		Date:           lt.Clock,
		Lines:          []documents.LineInput{{Description: "Napkins", Quantity: lt.D("100")}},
		Actor:          lt.Admin(),
	})
	require.NoError(t, err)
	cancelled, err := f.docs.Cancel(ctx, lt.Unit, pr.ID, lt.Admin())
	require.NoError(t, err)
	assert.Equal(t, documents.StatusCancelled, cancelled.Status)

	_, err = f.docs.CreateDownstream(ctx, documents.DownstreamInput{
		BusinessUnitID: lt.Unit,
		SourceID:       pr.ID,
		Type:           documents.TypePurchaseOrder,
		Lines:          []documents.DownstreamLine{{SourceLineID: pr.Lines[0].ID, Quantity: lt.D("1")}},
		Actor:          lt.Admin(),
	})
	assert.ErrorIs(t, err, documents.ErrInvalidTransition)

	po := f.purchaseOrder(t, "3")
	_, err = f.receive(po, "1")
	require.NoError(t, err)
	_, err = f.docs.Cancel(ctx, lt.Unit, po.ID, lt.Admin())
	assert.ErrorIs(t, err, documents.ErrInvalidTransition)
}

func TestInvoiceNeedsIssuer(t *testing.T) {
	env := lt.New(t)
	docs := documents.NewService(store.Documents(env.Store), env.Audit, env.Policy, nil)
	_, err := docs.CreateDownstream(context.Background(), documents.DownstreamInput{
		BusinessUnitID: lt.Unit, SourceID: 1, Type: documents.TypeARInvoice,
		Lines: []documents.DownstreamLine{{SourceLineID: 1, Quantity: lt.D("1")}}, Actor: lt.Admin(),
	})
	assert.ErrorIs(t, err, documents.ErrInvoiceIssuerMissing)
}
