package pos

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// OrderStatus enumerates order lifecycle values.
type OrderStatus string

const (
	OrderOpen    OrderStatus = "OPEN"
	OrderSettled OrderStatus = "SETTLED"
	OrderVoid    OrderStatus = "VOID"
)

// DiscountType selects how a discount value applies.
type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

// GrantMethod records how a discount was unlocked.
type GrantMethod string

const (
	GrantPolicy GrantMethod = "POLICY"
	GrantPIN    GrantMethod = "SUPERVISOR_PIN"
)

// SeriesOrder is the numbering series of POS orders.
const SeriesOrder = "POS_ORDER"

// MenuItem is a sellable item with a current price.
type MenuItem struct {
	ID             int64
	BusinessUnitID int64
	Code           string
	Name           string
	Price          decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
}

// Ingredient is the stock consumed by one unit of a menu item.
type Ingredient struct {
	ItemID   int64
	Quantity decimal.Decimal
}

// Recipe lists the ingredients of a menu item.
type Recipe struct {
	MenuItemID  int64
	Ingredients []Ingredient
}

// Order is a POS ticket.
type Order struct {
	ID             int64
	BusinessUnitID int64
	Number         string
	LocationID     int64
	TaxCode        string
	Status         OrderStatus
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	AmountReceived decimal.Decimal
	Change         decimal.Decimal
	PaymentMethod  string
	JournalEntryID *int64
	VoidReason     string
	OpenedBy       int64
	ClosedBy       *int64
	CreatedAt      time.Time
	ClosedAt       *time.Time
	Lines          []OrderLine
}

// OrderLine snapshots the menu price at the time it was added.
type OrderLine struct {
	ID         int64
	OrderID    int64
	LineNo     int
	MenuItemID int64
	Name       string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
}

// Discount requested at settlement.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// DiscountGrant unlocks discounts on one order.
type DiscountGrant struct {
	ID             int64
	BusinessUnitID int64
	OrderID        int64
	GrantedBy      int64
	Method         GrantMethod
	GrantedAt      time.Time
}

// Totals is the computed money of an order.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// OpenInput opens an order at a location.
type OpenInput struct {
	BusinessUnitID int64
	LocationID     int64
	TaxCode        string
	Actor          shared.Actor
}

// AddLineInput adds a menu item to an order.
type AddLineInput struct {
	BusinessUnitID int64
	OrderID        int64
	MenuItemID     int64
	Quantity       decimal.Decimal
	Actor          shared.Actor
}

// SettleInput closes an order against a payment.
type SettleInput struct {
	BusinessUnitID int64
	OrderID        int64
	PaymentMethod  string
	AmountReceived decimal.Decimal
	Discount       *Discount
	Actor          shared.Actor
	IdempotencyKey string
}

var (
	// ErrOrderNotFound indicates missing order.
	ErrOrderNotFound = shared.NotFound("pos: order not found")
	// ErrMenuItemNotFound indicates missing menu item.
	ErrMenuItemNotFound = shared.NotFound("pos: menu item not found")
	// ErrGrantNotFound indicates no discount grant exists for the order.
	ErrGrantNotFound = shared.NotFound("pos: discount grant not found")
	// ErrInvalidMenuItem indicates malformed menu item or recipe fields.
	ErrInvalidMenuItem = shared.Validation("pos: menu item requires code, name, a non-negative price and positive ingredient quantities")
	// ErrInvalidOrder indicates malformed order input.
	ErrInvalidOrder = shared.Validation("pos: order requires a location and positive quantities")
	// ErrInvalidDiscount indicates an unknown discount type or an out of range value.
	ErrInvalidDiscount = shared.Validation("pos: discount must be PERCENT 0..100 or a non-negative FIXED amount")
	// ErrInvalidPayment indicates a missing method or malformed amount received.
	ErrInvalidPayment = shared.Validation("pos: payment method and a non-negative amount received are required")
	// ErrOrderClosed indicates a change to a settled or voided order.
	ErrOrderClosed = shared.Invariant("pos: order is no longer open")
	// ErrEmptyOrder indicates settlement of an order without lines.
	ErrEmptyOrder = shared.Invariant("pos: order has no lines")
	// ErrDiscountLocked indicates a discount without a supervisor grant.
	ErrDiscountLocked = shared.Invariant("pos: discount requires supervisor approval")
	// ErrSupervisorRequired indicates an unlock attempt without permission or a valid PIN.
	ErrSupervisorRequired = shared.Forbidden("pos: supervisor approval failed")
	// ErrInsufficientPayment indicates the amount received does not cover the total.
	ErrInsufficientPayment = shared.Invariant("pos: amount received is less than the total")
)
