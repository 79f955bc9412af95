package pos

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// TxRepository exposes order persistence together with the ledger, stock and
// tax codes a settlement touches.
type TxRepository interface {
	accounting.TxRepository
	inventory.TxRepository
	tax.TxRepository

	InsertMenuItem(ctx context.Context, item MenuItem) (MenuItem, error)
	GetMenuItem(ctx context.Context, unitID, menuItemID int64) (MenuItem, error)
	SaveRecipe(ctx context.Context, unitID int64, recipe Recipe) error
	// GetRecipe returns an empty recipe when the menu item consumes no stock.
	GetRecipe(ctx context.Context, unitID, menuItemID int64) (Recipe, error)

	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrder(ctx context.Context, unitID, orderID int64) (Order, error)
	GetOrderForUpdate(ctx context.Context, unitID, orderID int64) (Order, error)
	InsertOrderLine(ctx context.Context, line OrderLine) (OrderLine, error)
	UpdateOrder(ctx context.Context, order Order) error

	InsertDiscountGrant(ctx context.Context, grant DiscountGrant) (DiscountGrant, error)
	GetDiscountGrant(ctx context.Context, unitID, orderID int64) (DiscountGrant, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records POS events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PINVerifier checks a supervisor credential.
type PINVerifier interface {
	VerifyPIN(pin string) bool
}
