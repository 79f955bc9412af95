package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// InvoiceKind separates payables from receivables.
type InvoiceKind string

const (
	KindAP InvoiceKind = "AP"
	KindAR InvoiceKind = "AR"
)

// SettlementStatus is derived from the amount paid against the total.
type SettlementStatus string

const (
	SettlementOpen    SettlementStatus = "OPEN"
	SettlementPartial SettlementStatus = "PARTIAL"
	SettlementPaid    SettlementStatus = "PAID"
)

// Direction of a payment.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

// Numbering series per document.
const (
	SeriesAPInvoice  = "AP_INVOICE"
	SeriesARInvoice  = "AR_INVOICE"
	SeriesPaymentIn  = "PAYMENT_IN"
	SeriesPaymentOut = "PAYMENT_OUT"
)

// SettlementStatusFor derives the status from paid and total.
func SettlementStatusFor(paid, total decimal.Decimal) SettlementStatus {
	switch {
	case !paid.IsPositive():
		return SettlementOpen
	case paid.LessThan(total):
		return SettlementPartial
	default:
		return SettlementPaid
	}
}

// Invoice model.
type Invoice struct {
	ID               int64
	BusinessUnitID   int64
	Kind             InvoiceKind
	Number           string
	PartyID          int64
	DocumentID       *int64
	Date             time.Time
	DueDate          time.Time
	Memo             string
	Currency         string
	Subtotal         decimal.Decimal
	TaxTotal         decimal.Decimal
	TotalAmount      decimal.Decimal
	AmountPaid       decimal.Decimal
	SettlementStatus SettlementStatus
	JournalEntryID   *int64
	CreatedBy        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Lines            []InvoiceLine
	Taxes            []LineTax
}

// Remaining returns the unpaid balance.
func (i Invoice) Remaining() decimal.Decimal {
	return i.TotalAmount.Sub(i.AmountPaid)
}

// InvoiceLine is a priced line. Amount is the rounded net of quantity times price.
type InvoiceLine struct {
	ID           int64
	InvoiceID    int64
	LineNo       int
	ItemID       int64
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Amount       decimal.Decimal
	TaxCode      string
	SourceLineID *int64
}

// LineTax is the tax computed for one invoice line.
type LineTax struct {
	ID         int64
	InvoiceID  int64
	LineNo     int
	Code       string
	Kind       tax.Kind
	Rate       decimal.Decimal
	TaxBase    decimal.Decimal
	TaxAmount  decimal.Decimal
	AccountKey string
}

// Payment model. Applied caches the sum of its applications.
type Payment struct {
	ID             int64
	BusinessUnitID int64
	Number         string
	Direction      Direction
	PartyID        int64
	Method         string
	Amount         decimal.Decimal
	Applied        decimal.Decimal
	Date           time.Time
	Memo           string
	CreatedBy      int64
	CreatedAt      time.Time
}

// Remaining returns what can still be applied.
func (p Payment) Remaining() decimal.Decimal {
	return p.Amount.Sub(p.Applied)
}

// Application links a payment to an invoice.
type Application struct {
	ID             int64
	BusinessUnitID int64
	PaymentID      int64
	InvoiceID      int64
	Amount         decimal.Decimal
	JournalEntryID *int64
	AppliedBy      int64
	AppliedAt      time.Time
}

// LineInput describes an explicit invoice line.
type LineInput struct {
	ItemID      int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxCode     string
}

// IssueInput creates an invoice from explicit lines.
type IssueInput struct {
	BusinessUnitID int64
	Kind           InvoiceKind
	PartyID        int64
	Date           time.Time
	DueDate        time.Time
	Memo           string
	Currency       string
	Lines          []LineInput
	Actor          shared.Actor
	IdempotencyKey string
}

// PaymentInput records a payment before it is applied.
type PaymentInput struct {
	BusinessUnitID int64
	Direction      Direction
	PartyID        int64
	Method         string
	Amount         decimal.Decimal
	Date           time.Time
	Memo           string
	Actor          shared.Actor
}

// ApplyInput applies part of a payment to an invoice.
type ApplyInput struct {
	BusinessUnitID int64
	PaymentID      int64
	InvoiceID      int64
	Amount         decimal.Decimal
	Actor          shared.Actor
	IdempotencyKey string
}

// AgingBucket summarises outstanding balances by days past due.
type AgingBucket struct {
	Current   decimal.Decimal
	Bucket30  decimal.Decimal
	Bucket60  decimal.Decimal
	Bucket90  decimal.Decimal
	Bucket120 decimal.Decimal
}

var (
	// ErrInvoiceNotFound indicates missing invoice.
	ErrInvoiceNotFound = shared.NotFound("billing: invoice not found")
	// ErrPaymentNotFound indicates missing payment.
	ErrPaymentNotFound = shared.NotFound("billing: payment not found")
	// ErrInvalidAmount indicates a non-positive or over-precise amount.
	ErrInvalidAmount = shared.Validation("billing: amount must be positive with at most two decimal places")
	// ErrInvalidInvoice indicates malformed invoice fields.
	ErrInvalidInvoice = shared.Validation("billing: invoice requires kind, party, date and at least one line")
	// ErrInvalidPayment indicates malformed payment fields.
	ErrInvalidPayment = shared.Validation("billing: payment requires direction, party, method and date")
	// ErrDirectionMismatch indicates an incoming payment applied to a payable or vice versa.
	ErrDirectionMismatch = shared.Invariant("billing: payment direction does not match invoice kind")
	// ErrPartyMismatch indicates a payment applied to another party's invoice.
	ErrPartyMismatch = shared.Invariant("billing: payment party does not match invoice party")
	// ErrExceedsRemaining indicates an application beyond the payment or invoice balance.
	ErrExceedsRemaining = shared.Invariant("billing: amount exceeds remaining balance")
)

// KindFor returns the invoice kind a payment direction settles.
func KindFor(d Direction) InvoiceKind {
	if d == DirectionIncoming {
		return KindAR
	}
	return KindAP
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
