package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementReceiving books goods received against a purchase order.
	MovementReceiving MovementType = "RECEIVING"
	// MovementTransferIn is the inbound half of a transfer.
	MovementTransferIn MovementType = "TRANSFER_IN"
	// MovementTransferOut is the outbound half of a transfer.
	MovementTransferOut MovementType = "TRANSFER_OUT"
	// MovementSaleConsumption draws ingredients for a settled sale.
	MovementSaleConsumption MovementType = "SALE_CONSUMPTION"
	// MovementAdjustment carries its own sign.
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// Item is a stock keeping unit of a business unit.
type Item struct {
	ID             int64
	BusinessUnitID int64
	Code           string
	Name           string
	UOM            string
	StandardCost   decimal.Decimal
	CreatedAt      time.Time
}

// Stock is the on-hand quantity of an item at a location.
type Stock struct {
	ID             int64
	BusinessUnitID int64
	ItemID         int64
	LocationID     int64
	QuantityOnHand decimal.Decimal
	ReorderPoint   decimal.Decimal
	UpdatedAt      time.Time
}

// NeedsReorder reports whether on-hand fell to the reorder point.
func (s Stock) NeedsReorder() bool {
	return s.ReorderPoint.IsPositive() && s.QuantityOnHand.LessThanOrEqual(s.ReorderPoint)
}

// Movement is an append-only signed change of a stock row.
type Movement struct {
	ID             int64
	BusinessUnitID int64
	StockID        int64
	ItemID         int64
	LocationID     int64
	Type           MovementType
	Quantity       decimal.Decimal
	SourceRef      string
	TransferRef    *uuid.UUID
	ActorID        int64
	CreatedAt      time.Time
}

// StockCardEntry is a movement with the running balance after it.
type StockCardEntry struct {
	MovementID int64
	Type       MovementType
	Quantity   decimal.Decimal
	Balance    decimal.Decimal
	SourceRef  string
	CreatedAt  time.Time
}

// Drift reports a stock row whose on-hand differs from its movement history.
type Drift struct {
	StockID  int64
	OnHand   decimal.Decimal
	Replayed decimal.Decimal
}

// RecordInput describes a single movement. Quantity is positive except for
// adjustments, which carry their own sign.
type RecordInput struct {
	BusinessUnitID int64
	ItemID         int64
	LocationID     int64
	Type           MovementType
	Quantity       decimal.Decimal
	SourceRef      string
	ActorID        int64
	IdempotencyKey string
}

// TransferInput describes a move between two locations.
type TransferInput struct {
	BusinessUnitID int64
	ItemID         int64
	FromLocation   int64
	ToLocation     int64
	Quantity       decimal.Decimal
	SourceRef      string
	ActorID        int64
	IdempotencyKey string
}

var (
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = shared.Invariant("inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = shared.Validation("inventory: quantity must be positive with at most four decimal places")
	// ErrInvalidMovementType indicates an unsupported movement type.
	ErrInvalidMovementType = shared.Validation("inventory: unsupported movement type")
	// ErrSameLocation indicates a transfer to its own source.
	ErrSameLocation = shared.Validation("inventory: source and destination location must differ")
	// ErrInvalidItem indicates malformed item fields.
	ErrInvalidItem = shared.Validation("inventory: item requires code, name and unit of measure")
	// ErrDuplicateItem indicates the item code already exists.
	ErrDuplicateItem = shared.Invariant("inventory: item code already exists")
	// ErrItemNotFound indicates an unknown item.
	ErrItemNotFound = shared.NotFound("inventory: item not found")
	// ErrStockNotFound indicates an unknown stock row.
	ErrStockNotFound = shared.NotFound("inventory: stock not found")
	// ErrReplayMismatch indicates on-hand disagrees with the movement history.
	ErrReplayMismatch = shared.Invariant("inventory: on-hand quantity does not match movements")
)

// signed applies the direction of t to a quantity given as positive.
func signed(t MovementType, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.Equal(qty.Round(shared.QuantityPlaces)) {
		return decimal.Zero, ErrInvalidQuantity
	}
	switch t {
	case MovementReceiving, MovementTransferIn:
		if !qty.IsPositive() {
			return decimal.Zero, ErrInvalidQuantity
		}
		return qty, nil
	case MovementTransferOut, MovementSaleConsumption:
		if !qty.IsPositive() {
			return decimal.Zero, ErrInvalidQuantity
		}
		return qty.Neg(), nil
	case MovementAdjustment:
		if qty.IsZero() {
			return decimal.Zero, ErrInvalidQuantity
		}
		return qty, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidMovementType, t)
}
