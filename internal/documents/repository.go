package documents

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes document persistence inside a unit of work. Receiving
// documents move stock, so the inventory ledger shares the transaction.
type TxRepository interface {
	numbering.TxRepository
	inventory.TxRepository

	InsertDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, unitID, docID int64) (Document, error)
	GetDocumentForUpdate(ctx context.Context, unitID, docID int64) (Document, error)
	UpdateDocumentStatus(ctx context.Context, doc Document) error
	UpdateOpenQuantities(ctx context.Context, lines []Line) error
	ListDocumentsBySource(ctx context.Context, unitID, sourceID int64) ([]Document, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records document events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvoiceIssuer creates AP and AR invoices. Billing implements it because an
// invoice also carries tax lines and a journal entry.
type InvoiceIssuer interface {
	IssueFromDocument(ctx context.Context, in DownstreamInput) (Document, error)
}
