package billing

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// TxRepository exposes invoice and payment persistence together with the ledger,
// tax codes and documents they are posted against.
type TxRepository interface {
	accounting.TxRepository
	tax.TxRepository
	documents.TxRepository

	// InsertInvoice stores the header, lines and line taxes.
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, unitID, invoiceID int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, unitID, invoiceID int64) (Invoice, error)
	UpdateInvoiceSettlement(ctx context.Context, inv Invoice) error
	SetInvoiceJournal(ctx context.Context, unitID, invoiceID, entryID int64) error
	ListOutstandingInvoices(ctx context.Context, unitID int64, kind InvoiceKind) ([]Invoice, error)

	InsertPayment(ctx context.Context, payment Payment) (Payment, error)
	GetPayment(ctx context.Context, unitID, paymentID int64) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, unitID, paymentID int64) (Payment, error)
	UpdatePaymentApplied(ctx context.Context, payment Payment) error

	InsertApplication(ctx context.Context, app Application) (Application, error)
	SetApplicationJournal(ctx context.Context, unitID, applicationID, entryID int64) error
	// ListApplications filters by payment, invoice or both; a zero id matches all.
	ListApplications(ctx context.Context, unitID, paymentID, invoiceID int64) ([]Application, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records billing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}
