package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RecordPayment stores a payment that can later be applied to invoices.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Payment, error) {
	if err := s.authorize(in.Actor, "payment.record", "payment", in.BusinessUnitID, 0); err != nil {
		return Payment{}, err
	}
	if !validAmount(in.Amount) {
		return Payment{}, ErrInvalidAmount
	}
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if in.BusinessUnitID <= 0 || in.PartyID <= 0 || method == "" || in.Date.IsZero() {
		return Payment{}, ErrInvalidPayment
	}
	series := SeriesPaymentOut
	switch in.Direction {
	case DirectionIncoming:
		series = SeriesPaymentIn
	case DirectionOutgoing:
	default:
		return Payment{}, ErrInvalidPayment
	}
	now := s.now()
	payment := Payment{
		BusinessUnitID: in.BusinessUnitID,
		Direction:      in.Direction,
		PartyID:        in.PartyID,
		Method:         method,
		Amount:         in.Amount,
		Applied:        decimal.Zero,
		Date:           dateOnly(in.Date),
		Memo:           strings.TrimSpace(in.Memo),
		CreatedBy:      in.Actor.ID,
		CreatedAt:      now,
	}
	var created Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if payment.Number, err = numbering.Issue(ctx, tx, in.BusinessUnitID, series); err != nil {
			return err
		}
		created, err = tx.InsertPayment(ctx, payment)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	s.record(ctx, created.BusinessUnitID, in.Actor.ID, "payment.record", "payment", created.ID, map[string]any{
		"number":    created.Number,
		"direction": string(created.Direction),
		"amount":    created.Amount.StringFixed(shared.MoneyPlaces),
	})
	return created, nil
}

// ApplyPayment settles part of an invoice with part of a payment. Both rows are
// locked, payment first; either balance being exceeded rejects the whole call.
func (s *Service) ApplyPayment(ctx context.Context, in ApplyInput) (Application, error) {
	if err := s.authorize(in.Actor, "payment.apply", "payment", in.BusinessUnitID, in.PaymentID); err != nil {
		return Application{}, err
	}
	if !validAmount(in.Amount) {
		return Application{}, ErrInvalidAmount
	}
	var (
		applied Application
		invoice Invoice
	)
	err := s.guarded(ctx, in.BusinessUnitID, in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		at := s.now()
		payment, err := tx.GetPaymentForUpdate(ctx, in.BusinessUnitID, in.PaymentID)
		if err != nil {
			return err
		}
		invoice, err = tx.GetInvoiceForUpdate(ctx, in.BusinessUnitID, in.InvoiceID)
		if err != nil {
			return err
		}
		if KindFor(payment.Direction) != invoice.Kind {
			return fmt.Errorf("%w: %s payment, %s invoice", ErrDirectionMismatch, payment.Direction, invoice.Kind)
		}
		if payment.PartyID != invoice.PartyID {
			return ErrPartyMismatch
		}
		if in.Amount.GreaterThan(payment.Remaining()) {
			return fmt.Errorf("%w: payment remaining %s", ErrExceedsRemaining, payment.Remaining().StringFixed(shared.MoneyPlaces))
		}
		if in.Amount.GreaterThan(invoice.Remaining()) {
			return fmt.Errorf("%w: invoice remaining %s", ErrExceedsRemaining, invoice.Remaining().StringFixed(shared.MoneyPlaces))
		}

		invoice.AmountPaid = invoice.AmountPaid.Add(in.Amount)
		invoice.SettlementStatus = SettlementStatusFor(invoice.AmountPaid, invoice.TotalAmount)
		invoice.UpdatedAt = at
		if err := tx.UpdateInvoiceSettlement(ctx, invoice); err != nil {
			return err
		}
		payment.Applied = payment.Applied.Add(in.Amount)
		if err := tx.UpdatePaymentApplied(ctx, payment); err != nil {
			return err
		}
		applied, err = tx.InsertApplication(ctx, Application{
			BusinessUnitID: in.BusinessUnitID,
			PaymentID:      payment.ID,
			InvoiceID:      invoice.ID,
			Amount:         in.Amount,
			AppliedBy:      in.Actor.ID,
			AppliedAt:      at,
		})
		if err != nil {
			return err
		}
		entry, err := integration.Post(ctx, tx, integration.Voucher{
			BusinessUnitID: in.BusinessUnitID,
			Date:           payment.Date,
			Memo:           fmt.Sprintf("Payment %s applied to %s", payment.Number, invoice.Number),
			Currency:       invoice.Currency,
			SourceModule:   integration.SourcePayment,
			SourceID:       applied.ID,
			ActorID:        in.Actor.ID,
			Legs:           integration.Payment(payment.Direction == DirectionIncoming, payment.Method, payment.PartyID, in.Amount),
		}, at)
		if err != nil {
			return err
		}
		if err := tx.SetApplicationJournal(ctx, in.BusinessUnitID, applied.ID, entry.ID); err != nil {
			return err
		}
		applied.JournalEntryID = &entry.ID
		return nil
	})
	shared.Observe(s.observer, "payment.apply", err)
	if err != nil {
		return Application{}, err
	}
	s.record(ctx, in.BusinessUnitID, in.Actor.ID, "payment.apply", "invoice", invoice.ID, map[string]any{
		"payment_id": in.PaymentID,
		"amount":     in.Amount.StringFixed(shared.MoneyPlaces),
		"status":     string(invoice.SettlementStatus),
	})
	return applied, nil
}

// GetPayment returns a payment with its applied total.
func (s *Service) GetPayment(ctx context.Context, unitID, paymentID int64) (Payment, error) {
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.GetPayment(ctx, unitID, paymentID)
		return err
	})
	return payment, err
}

// ListApplications lists applications of a payment, an invoice, or both.
func (s *Service) ListApplications(ctx context.Context, unitID, paymentID, invoiceID int64) ([]Application, error) {
	var apps []Application
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		apps, err = tx.ListApplications(ctx, unitID, paymentID, invoiceID)
		return err
	})
	return apps, err
}

func validAmount(d decimal.Decimal) bool {
	return d.IsPositive() && shared.HasMoneyPrecision(d)
}
