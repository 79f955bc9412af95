package inventory

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertItem(ctx context.Context, item Item) (Item, error)
	GetItem(ctx context.Context, unitID, itemID int64) (Item, error)
	// EnsureStock returns the stock row of (item, location), creating an empty one if missing.
	EnsureStock(ctx context.Context, unitID, itemID, locationID int64) (Stock, error)
	// LockStock locks the stock row until the unit of work ends.
	LockStock(ctx context.Context, unitID, stockID int64) (Stock, error)
	GetStock(ctx context.Context, unitID, stockID int64) (Stock, error)
	SaveStock(ctx context.Context, stock Stock) error
	ListStock(ctx context.Context, unitID int64) ([]Stock, error)
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
	// ListMovements returns the movements of a stock row in insertion order.
	ListMovements(ctx context.Context, unitID, stockID int64) ([]Movement, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}
