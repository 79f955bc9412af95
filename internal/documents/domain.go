package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DocumentType enumerates the chained commercial documents.
type DocumentType string

const (
	TypePurchaseRequest DocumentType = "PURCHASE_REQUEST"
	TypePurchaseOrder   DocumentType = "PURCHASE_ORDER"
	TypeReceiving       DocumentType = "RECEIVING"
	TypeAPInvoice       DocumentType = "AP_INVOICE"
	TypeSalesQuotation  DocumentType = "SALES_QUOTATION"
	TypeSalesOrder      DocumentType = "SALES_ORDER"
	TypeDelivery        DocumentType = "DELIVERY"
	TypeARInvoice       DocumentType = "AR_INVOICE"
)

// Status enumerates document lifecycle values.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusClosed    Status = "CLOSED"
	StatusCancelled Status = "CANCELLED"
)

var nextInChain = map[DocumentType]DocumentType{
	TypePurchaseRequest: TypePurchaseOrder,
	TypePurchaseOrder:   TypeReceiving,
	TypeReceiving:       TypeAPInvoice,
	TypeSalesQuotation:  TypeSalesOrder,
	TypeSalesOrder:      TypeDelivery,
	TypeDelivery:        TypeARInvoice,
}

// Next returns the document type that t feeds.
func (t DocumentType) Next() (DocumentType, bool) {
	next, ok := nextInChain[t]
	return next, ok
}

// CanStartChain reports whether t may be created without a source.
func (t DocumentType) CanStartChain() bool {
	switch t {
	case TypePurchaseRequest, TypeSalesQuotation, TypePurchaseOrder, TypeSalesOrder:
		return true
	}
	return false
}

// IsInvoice reports whether t is a terminal invoice document.
func (t DocumentType) IsInvoice() bool {
	return t == TypeAPInvoice || t == TypeARInvoice
}

// Document is a business document owning its lines.
type Document struct {
	ID             int64
	BusinessUnitID int64
	Type           DocumentType
	Number         string
	Status         Status
	SourceID       *int64
	PartyID        int64
	LocationID     int64
	Date           time.Time
	Memo           string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Consumed reports whether any line was drawn down by a downstream document.
func (d Document) Consumed() bool {
	for _, l := range d.Lines {
		if l.OpenQuantity.LessThan(l.Quantity) {
			return true
		}
	}
	return false
}

// FullyConsumed reports whether every line has nothing left open.
func (d Document) FullyConsumed() bool {
	for _, l := range d.Lines {
		if l.OpenQuantity.IsPositive() {
			return false
		}
	}
	return true
}

// Line is a document line. OpenQuantity is what downstream documents may still draw.
type Line struct {
	ID           int64
	DocumentID   int64
	LineNo       int
	ItemID       int64
	Description  string
	Quantity     decimal.Decimal
	OpenQuantity decimal.Decimal
	UnitPrice    decimal.Decimal
	TaxCode      string
	SourceLineID *int64
}

// LineInput describes a root document line.
type LineInput struct {
	ItemID      int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxCode     string
}

// CreateInput creates a document that starts a chain.
type CreateInput struct {
	BusinessUnitID int64
	Type           DocumentType
	PartyID        int64
	LocationID     int64
	Date           time.Time
	Memo           string
	Lines          []LineInput
	Actor          shared.Actor
}

// DownstreamLine draws Quantity from a source line.
type DownstreamLine struct {
	SourceLineID int64
	Quantity     decimal.Decimal
}

// DownstreamInput creates the next document of a chain from an OPEN source.
type DownstreamInput struct {
	BusinessUnitID int64
	SourceID       int64
	Type           DocumentType
	LocationID     int64
	Date           time.Time
	Memo           string
	Lines          []DownstreamLine
	Actor          shared.Actor
	IdempotencyKey string
}

var (
	// ErrDocumentNotFound indicates missing document.
	ErrDocumentNotFound = shared.NotFound("documents: document not found")
	// ErrInvalidDocument indicates malformed header or lines.
	ErrInvalidDocument = shared.Validation("documents: document requires a type, date and at least one valid line")
	// ErrInvalidChain indicates a target type that does not follow the source type.
	ErrInvalidChain = shared.Invariant("documents: target type does not follow the source document")
	// ErrInvalidTransition indicates the document status does not allow the operation.
	ErrInvalidTransition = shared.Invariant("documents: document status does not allow this operation")
	// ErrExceedsOpenQuantity indicates a draw beyond the source line's open quantity.
	ErrExceedsOpenQuantity = shared.Invariant("documents: quantity exceeds open quantity")
	// ErrUnknownSourceLine indicates a line id not belonging to the source.
	ErrUnknownSourceLine = shared.Validation("documents: source line not found on source document")
	// ErrInvoiceIssuerMissing indicates invoice creation without billing wired in.
	ErrInvoiceIssuerMissing = shared.Configuration("documents: invoice issuer not configured")
)

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
