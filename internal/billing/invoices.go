package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// IssueInvoice creates an invoice from explicit lines, computes its taxes and
// posts its journal entry in one unit of work.
func (s *Service) IssueInvoice(ctx context.Context, in IssueInput) (Invoice, error) {
	if err := s.authorize(in.Actor, "invoice.issue", "invoice", in.BusinessUnitID, 0); err != nil {
		return Invoice{}, err
	}
	if in.BusinessUnitID <= 0 || in.PartyID <= 0 || in.Date.IsZero() || len(in.Lines) == 0 {
		return Invoice{}, ErrInvalidInvoice
	}
	if in.Kind != KindAP && in.Kind != KindAR {
		return Invoice{}, ErrInvalidInvoice
	}
	inv := Invoice{
		BusinessUnitID: in.BusinessUnitID,
		Kind:           in.Kind,
		PartyID:        in.PartyID,
		Date:           dateOnly(in.Date),
		DueDate:        in.DueDate,
		Memo:           strings.TrimSpace(in.Memo),
		Currency:       in.Currency,
		CreatedBy:      in.Actor.ID,
	}
	var issued Invoice
	err := s.guarded(ctx, in.BusinessUnitID, in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		var err error
		issued, err = s.issue(ctx, tx, inv, in.Lines, s.now())
		return err
	})
	shared.Observe(s.observer, "invoice.issue", err)
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, issued.BusinessUnitID, in.Actor.ID, "invoice.issue", "invoice", issued.ID, map[string]any{
		"number": issued.Number,
		"kind":   string(issued.Kind),
		"total":  issued.TotalAmount.StringFixed(shared.MoneyPlaces),
	})
	return issued, nil
}

// IssueFromDocument creates an AP_INVOICE or AR_INVOICE document from its
// RECEIVING or DELIVERY source and the matching invoice, sharing one unit of work.
func (s *Service) IssueFromDocument(ctx context.Context, in documents.DownstreamInput) (documents.Document, error) {
	if err := s.authorize(in.Actor, "invoice.issue", "document", in.BusinessUnitID, in.SourceID); err != nil {
		return documents.Document{}, err
	}
	if !in.Type.IsInvoice() {
		return documents.Document{}, fmt.Errorf("%w: %s is not an invoice", documents.ErrInvalidChain, in.Type)
	}
	var (
		doc    documents.Document
		issued Invoice
	)
	err := s.guarded(ctx, in.BusinessUnitID, in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		at := s.now()
		var err error
		doc, err = documents.CreateDownstreamInTx(ctx, tx, in, at)
		if err != nil {
			return err
		}
		if doc.PartyID <= 0 {
			return ErrInvalidInvoice
		}
		kind := KindAR
		if doc.Type == documents.TypeAPInvoice {
			kind = KindAP
		}
		docID := doc.ID
		inv := Invoice{
			BusinessUnitID: doc.BusinessUnitID,
			Kind:           kind,
			Number:         doc.Number,
			PartyID:        doc.PartyID,
			DocumentID:     &docID,
			Date:           doc.Date,
			Memo:           doc.Memo,
			CreatedBy:      in.Actor.ID,
		}
		lines := make([]LineInput, 0, len(doc.Lines))
		for _, l := range doc.Lines {
			lines = append(lines, LineInput{
				ItemID:      l.ItemID,
				Description: l.Description,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
				TaxCode:     l.TaxCode,
			})
		}
		issued, err = s.issue(ctx, tx, inv, lines, at)
		return err
	})
	shared.Observe(s.observer, "invoice.issue", err)
	if err != nil {
		return documents.Document{}, err
	}
	s.record(ctx, issued.BusinessUnitID, in.Actor.ID, "invoice.issue", "invoice", issued.ID, map[string]any{
		"number":      issued.Number,
		"kind":        string(issued.Kind),
		"document_id": doc.ID,
		"total":       issued.TotalAmount.StringFixed(shared.MoneyPlaces),
	})
	return doc, nil
}

func (s *Service) issue(ctx context.Context, tx TxRepository, inv Invoice, lines []LineInput, at time.Time) (Invoice, error) {
	side := tax.SideInput
	series := SeriesAPInvoice
	if inv.Kind == KindAR {
		side = tax.SideOutput
		series = SeriesARInvoice
	}
	if inv.Currency == "" {
		inv.Currency = s.currency
	}
	codes := make(map[string]tax.Code)
	var (
		goods    = decimal.Zero
		services = decimal.Zero
		taxLegs  []integration.TaxLeg
	)
	inv.Subtotal, inv.TaxTotal = decimal.Zero, decimal.Zero
	for i, l := range lines {
		if !l.Quantity.IsPositive() || !l.Quantity.Equal(l.Quantity.Round(shared.QuantityPlaces)) {
			return Invoice{}, fmt.Errorf("%w: line %d quantity", ErrInvalidInvoice, i+1)
		}
		if l.UnitPrice.IsNegative() || !shared.HasMoneyPrecision(l.UnitPrice) {
			return Invoice{}, fmt.Errorf("%w: line %d unit price", ErrInvalidInvoice, i+1)
		}
		line := InvoiceLine{
			LineNo:      i + 1,
			ItemID:      l.ItemID,
			Description: strings.TrimSpace(l.Description),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Amount:      shared.RoundMoney(l.Quantity.Mul(l.UnitPrice)),
			TaxCode:     strings.ToUpper(strings.TrimSpace(l.TaxCode)),
		}
		if line.TaxCode == "" {
			line.TaxCode = strings.ToUpper(s.defaultTax)
		}
		inv.Subtotal = inv.Subtotal.Add(line.Amount)
		if line.ItemID > 0 {
			goods = goods.Add(line.Amount)
		} else {
			services = services.Add(line.Amount)
		}
		if line.TaxCode != "" {
			code, ok := codes[line.TaxCode]
			if !ok {
				var err error
				if code, err = tax.Lookup(ctx, tx, inv.BusinessUnitID, line.TaxCode); err != nil {
					return Invoice{}, fmt.Errorf("line %d: %w", i+1, err)
				}
				codes[line.TaxCode] = code
			}
			computed, err := tax.Compute(line.Amount, code)
			if err != nil {
				return Invoice{}, err
			}
			key := tax.AccountFor(code, side)
			inv.Taxes = append(inv.Taxes, LineTax{
				LineNo:     line.LineNo,
				Code:       code.Code,
				Kind:       code.Kind,
				Rate:       code.Rate,
				TaxBase:    computed.TaxBase,
				TaxAmount:  computed.TaxAmount,
				AccountKey: key,
			})
			inv.TaxTotal = inv.TaxTotal.Add(computed.Signed())
			taxLegs = append(taxLegs, integration.TaxLeg{Key: key, Amount: computed.Signed()})
		}
		inv.Lines = append(inv.Lines, line)
	}
	inv.TotalAmount = inv.Subtotal.Add(inv.TaxTotal)
	if !inv.TotalAmount.IsPositive() {
		return Invoice{}, ErrInvalidAmount
	}
	inv.AmountPaid = decimal.Zero
	inv.SettlementStatus = SettlementOpen
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.Date.Add(s.terms)
	}
	inv.DueDate = dateOnly(inv.DueDate)
	inv.CreatedAt, inv.UpdatedAt = at, at
	if inv.Number == "" {
		var err error
		if inv.Number, err = numbering.Issue(ctx, tx, inv.BusinessUnitID, series); err != nil {
			return Invoice{}, err
		}
	}
	created, err := tx.InsertInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}

	voucher := integration.Voucher{
		BusinessUnitID: created.BusinessUnitID,
		Date:           created.Date,
		Memo:           fmt.Sprintf("%s invoice %s", created.Kind, created.Number),
		Currency:       created.Currency,
		SourceID:       created.ID,
		ActorID:        created.CreatedBy,
	}
	if created.Kind == KindAP {
		voucher.SourceModule = integration.SourceAPInvoice
		voucher.Legs = integration.PurchaseInvoice(created.PartyID, goods, services, created.TotalAmount, taxLegs)
	} else {
		voucher.SourceModule = integration.SourceARInvoice
		voucher.Legs = integration.SalesInvoice(created.PartyID, created.Subtotal, created.TotalAmount, taxLegs)
	}
	entry, err := integration.Post(ctx, tx, voucher, at)
	if err != nil {
		return Invoice{}, err
	}
	if err := tx.SetInvoiceJournal(ctx, created.BusinessUnitID, created.ID, entry.ID); err != nil {
		return Invoice{}, err
	}
	created.JournalEntryID = &entry.ID
	return created, nil
}

// GetInvoice returns an invoice with its lines and taxes.
func (s *Service) GetInvoice(ctx context.Context, unitID, invoiceID int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoice(ctx, unitID, invoiceID)
		return err
	})
	return inv, err
}

// Aging groups outstanding balances of one kind by days past due.
func (s *Service) Aging(ctx context.Context, unitID int64, kind InvoiceKind, asOf time.Time) (AgingBucket, error) {
	if kind != KindAP && kind != KindAR {
		return AgingBucket{}, ErrInvalidInvoice
	}
	var invoices []Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		invoices, err = tx.ListOutstandingInvoices(ctx, unitID, kind)
		return err
	})
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = dateOnly(asOf)
	bucket := AgingBucket{Current: decimal.Zero, Bucket30: decimal.Zero, Bucket60: decimal.Zero, Bucket90: decimal.Zero, Bucket120: decimal.Zero}
	for _, inv := range invoices {
		if inv.SettlementStatus == SettlementPaid {
			continue
		}
		remaining := inv.Remaining()
		days := int(asOf.Sub(dateOnly(inv.DueDate)).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(remaining)
		case days <= 30:
			bucket.Bucket30 = bucket.Bucket30.Add(remaining)
		case days <= 60:
			bucket.Bucket60 = bucket.Bucket60.Add(remaining)
		case days <= 90:
			bucket.Bucket90 = bucket.Bucket90.Add(remaining)
		default:
			bucket.Bucket120 = bucket.Bucket120.Add(remaining)
		}
	}
	return bucket, nil
}

