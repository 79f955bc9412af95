package pos

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

// Service runs POS orders from open to settlement.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	authz       shared.Authorizer
	supervisor  PINVerifier
	idempotency *shared.IdempotencyStore
	observer    shared.Observer
	defaultVAT  string
	now         func() time.Time
}

// NewService constructs the POS service.
func NewService(repo RepositoryPort, audit AuditPort, authz shared.Authorizer, supervisor PINVerifier, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, authz: authz, supervisor: supervisor, idempotency: idem, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithDefaultVATCode sets the code used by orders opened without one.
func (s *Service) WithDefaultVATCode(code string) {
	s.defaultVAT = strings.ToUpper(strings.TrimSpace(code))
}

// WithObserver reports settlement outcomes.
func (s *Service) WithObserver(o shared.Observer) {
	s.observer = o
}

// CreateMenuItem registers a menu item and its recipe.
func (s *Service) CreateMenuItem(ctx context.Context, item MenuItem, ingredients []Ingredient, actor shared.Actor) (MenuItem, error) {
	if err := s.authorize(actor, "pos.menu", item.BusinessUnitID, 0); err != nil {
		return MenuItem{}, err
	}
	item.Code = strings.ToUpper(strings.TrimSpace(item.Code))
	item.Name = strings.TrimSpace(item.Name)
	if item.BusinessUnitID <= 0 || item.Code == "" || item.Name == "" || item.Price.IsNegative() || !shared.HasMoneyPrecision(item.Price) {
		return MenuItem{}, ErrInvalidMenuItem
	}
	for _, ing := range ingredients {
		if ing.ItemID <= 0 || !ing.Quantity.IsPositive() || !ing.Quantity.Equal(ing.Quantity.Round(shared.QuantityPlaces)) {
			return MenuItem{}, ErrInvalidMenuItem
		}
	}
	item.IsActive = true
	item.CreatedAt = s.now()
	var created MenuItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, ing := range ingredients {
			if _, err := tx.GetItem(ctx, item.BusinessUnitID, ing.ItemID); err != nil {
				return err
			}
		}
		var err error
		if created, err = tx.InsertMenuItem(ctx, item); err != nil {
			return err
		}
		return tx.SaveRecipe(ctx, item.BusinessUnitID, Recipe{MenuItemID: created.ID, Ingredients: ingredients})
	})
	return created, err
}

// OpenOrder starts an order at a stock location.
func (s *Service) OpenOrder(ctx context.Context, in OpenInput) (Order, error) {
	if err := s.authorize(in.Actor, "pos.order", in.BusinessUnitID, 0); err != nil {
		return Order{}, err
	}
	if in.BusinessUnitID <= 0 || in.LocationID <= 0 {
		return Order{}, ErrInvalidOrder
	}
	code := strings.ToUpper(strings.TrimSpace(in.TaxCode))
	if code == "" {
		code = s.defaultVAT
	}
	now := s.now()
	order := Order{
		BusinessUnitID: in.BusinessUnitID,
		LocationID:     in.LocationID,
		TaxCode:        code,
		Status:         OrderOpen,
		Subtotal:       decimal.Zero,
		Discount:       decimal.Zero,
		Tax:            decimal.Zero,
		Total:          decimal.Zero,
		AmountReceived: decimal.Zero,
		Change:         decimal.Zero,
		OpenedBy:       in.Actor.ID,
		CreatedAt:      now,
	}
	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if code != "" {
			if _, err := tax.Lookup(ctx, tx, in.BusinessUnitID, code); err != nil {
				return err
			}
		}
		var err error
		if order.Number, err = numbering.Issue(ctx, tx, in.BusinessUnitID, SeriesOrder); err != nil {
			return err
		}
		created, err = tx.InsertOrder(ctx, order)
		return err
	})
	return created, err
}

// AddLine adds menu items at their current price. Quantities are whole units.
func (s *Service) AddLine(ctx context.Context, in AddLineInput) (Order, error) {
	if err := s.authorize(in.Actor, "pos.order", in.BusinessUnitID, in.OrderID); err != nil {
		return Order{}, err
	}
	if !in.Quantity.IsPositive() || !in.Quantity.IsInteger() {
		return Order{}, ErrInvalidOrder
	}
	var updated Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, in.BusinessUnitID, in.OrderID)
		if err != nil {
			return err
		}
		if order.Status != OrderOpen {
			return ErrOrderClosed
		}
		item, err := tx.GetMenuItem(ctx, in.BusinessUnitID, in.MenuItemID)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return fmt.Errorf("%w: %s inactive", ErrMenuItemNotFound, item.Code)
		}
		line, err := tx.InsertOrderLine(ctx, OrderLine{
			OrderID:    order.ID,
			LineNo:     len(order.Lines) + 1,
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   in.Quantity,
			UnitPrice:  item.Price,
		})
		if err != nil {
			return err
		}
		order.Lines = append(order.Lines, line)
		subtotal := decimal.Zero
		for _, l := range order.Lines {
			subtotal = subtotal.Add(l.Quantity.Mul(l.UnitPrice))
		}
		order.Subtotal = shared.RoundMoney(subtotal)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	return updated, err
}

// UnlockDiscount grants discounts on an order to an actor the policy allows,
// or to anyone presenting a valid supervisor PIN.
func (s *Service) UnlockDiscount(ctx context.Context, unitID, orderID int64, actor shared.Actor, pin string) (DiscountGrant, error) {
	method := GrantPolicy
	if err := s.authorize(actor, "pos.discount.override", unitID, orderID); err != nil {
		if s.supervisor == nil || !s.supervisor.VerifyPIN(pin) {
			return DiscountGrant{}, ErrSupervisorRequired
		}
		method = GrantPIN
	}
	var grant DiscountGrant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, unitID, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderOpen {
			return ErrOrderClosed
		}
		existing, err := tx.GetDiscountGrant(ctx, unitID, orderID)
		switch {
		case err == nil:
			grant = existing
			return nil
		case !errors.Is(err, ErrGrantNotFound):
			return err
		}
		grant, err = tx.InsertDiscountGrant(ctx, DiscountGrant{
			BusinessUnitID: unitID,
			OrderID:        orderID,
			GrantedBy:      actor.ID,
			Method:         method,
			GrantedAt:      s.now(),
		})
		return err
	})
	if err != nil {
		return DiscountGrant{}, err
	}
	s.record(ctx, unitID, actor.ID, "pos.discount.unlock", orderID, map[string]any{"method": string(grant.Method)})
	return grant, nil
}

// Settle prices the order, consumes recipe stock, posts the sale and marks the
// order SETTLED in one unit of work.
func (s *Service) Settle(ctx context.Context, in SettleInput) (Order, error) {
	if err := s.authorize(in.Actor, "pos.settle", in.BusinessUnitID, in.OrderID); err != nil {
		return Order{}, err
	}
	method := strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
	if method == "" || in.AmountReceived.IsNegative() || !shared.HasMoneyPrecision(in.AmountReceived) {
		return Order{}, ErrInvalidPayment
	}
	var settled Order
	err := s.guarded(ctx, in.BusinessUnitID, in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		at := s.now()
		order, err := tx.GetOrderForUpdate(ctx, in.BusinessUnitID, in.OrderID)
		if err != nil {
			return err
		}
		if order.Status != OrderOpen {
			return ErrOrderClosed
		}
		if len(order.Lines) == 0 {
			return ErrEmptyOrder
		}
		if HasDiscount(in.Discount) {
			if _, err := tx.GetDiscountGrant(ctx, in.BusinessUnitID, order.ID); err != nil {
				if errors.Is(err, ErrGrantNotFound) {
					return ErrDiscountLocked
				}
				return err
			}
		}
		vat := tax.Code{Code: "NONE", Kind: tax.KindVAT, Treatment: tax.TreatmentExempt}
		if order.TaxCode != "" {
			if vat, err = tax.Lookup(ctx, tx, in.BusinessUnitID, order.TaxCode); err != nil {
				return err
			}
		}
		totals, err := Quote(order.Lines, in.Discount, vat)
		if err != nil {
			return err
		}
		change := in.AmountReceived.Sub(totals.Total)
		if change.IsNegative() {
			return fmt.Errorf("%w: total %s, received %s", ErrInsufficientPayment,
				totals.Total.StringFixed(shared.MoneyPlaces), in.AmountReceived.StringFixed(shared.MoneyPlaces))
		}
		if err := s.consume(ctx, tx, order, in.Actor.ID, at); err != nil {
			return err
		}
		entry, err := integration.Post(ctx, tx, integration.Voucher{
			BusinessUnitID: in.BusinessUnitID,
			Date:           at,
			Memo:           "POS order " + order.Number,
			SourceModule:   integration.SourcePOS,
			SourceID:       order.ID,
			ActorID:        in.Actor.ID,
			Legs: integration.SaleSettlement(method, totals.Subtotal, totals.Discount, totals.Total,
				integration.TaxLeg{Key: tax.AccountFor(vat, tax.SideOutput), Amount: totals.Tax}),
		}, at)
		switch {
		case errors.Is(err, integration.ErrNothingToPost):
		case err != nil:
			return err
		default:
			order.JournalEntryID = &entry.ID
		}

		actorID := in.Actor.ID
		order.Subtotal = totals.Subtotal
		order.Discount = totals.Discount
		order.Tax = totals.Tax
		order.Total = totals.Total
		order.AmountReceived = in.AmountReceived
		order.Change = change
		order.PaymentMethod = method
		order.Status = OrderSettled
		order.ClosedBy = &actorID
		order.ClosedAt = &at
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		settled = order
		return nil
	})
	shared.Observe(s.observer, "pos.settle", err)
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, in.BusinessUnitID, in.Actor.ID, "pos.settle", settled.ID, map[string]any{
		"number":   settled.Number,
		"total":    settled.Total.StringFixed(shared.MoneyPlaces),
		"discount": settled.Discount.StringFixed(shared.MoneyPlaces),
		"method":   settled.PaymentMethod,
	})
	return settled, nil
}

// consume books one SALE_CONSUMPTION per ingredient item, summed over the order
// and applied in item id order.
func (s *Service) consume(ctx context.Context, tx TxRepository, order Order, actorID int64, at time.Time) error {
	need := make(map[int64]decimal.Decimal)
	for _, line := range order.Lines {
		recipe, err := tx.GetRecipe(ctx, order.BusinessUnitID, line.MenuItemID)
		if err != nil {
			return err
		}
		for _, ing := range recipe.Ingredients {
			need[ing.ItemID] = need[ing.ItemID].Add(ing.Quantity.Mul(line.Quantity))
		}
	}
	items := make([]int64, 0, len(need))
	for id := range need {
		items = append(items, id)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	for _, id := range items {
		_, err := inventory.RecordInTx(ctx, tx, inventory.RecordInput{
			BusinessUnitID: order.BusinessUnitID,
			ItemID:         id,
			LocationID:     order.LocationID,
			Type:           inventory.MovementSaleConsumption,
			Quantity:       need[id],
			SourceRef:      SourceRef(order),
			ActorID:        actorID,
		}, at)
		if err != nil {
			return fmt.Errorf("pos: consume item %d: %w", id, err)
		}
	}
	return nil
}

// VoidOrder cancels an OPEN order.
func (s *Service) VoidOrder(ctx context.Context, unitID, orderID int64, actor shared.Actor, reason string) (Order, error) {
	if err := s.authorize(actor, "pos.void", unitID, orderID); err != nil {
		return Order{}, err
	}
	var voided Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, unitID, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderOpen {
			return ErrOrderClosed
		}
		at := s.now()
		actorID := actor.ID
		order.Status = OrderVoid
		order.VoidReason = strings.TrimSpace(reason)
		order.ClosedBy = &actorID
		order.ClosedAt = &at
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		voided = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, unitID, actor.ID, "pos.void", orderID, map[string]any{"reason": voided.VoidReason})
	return voided, nil
}

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, unitID, orderID int64) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrder(ctx, unitID, orderID)
		return err
	})
	return order, err
}

// SourceRef is the stock movement reference of an order.
func SourceRef(order Order) string {
	return SeriesOrder + ":" + strconv.FormatInt(order.ID, 10)
}

func (s *Service) guarded(ctx context.Context, unitID int64, key string, fn func(context.Context, TxRepository) error) error {
	return s.idempotency.Guard(ctx, unitID, "pos", key, func() error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) authorize(actor shared.Actor, action string, unitID, orderID int64) error {
	return shared.Authorize(s.authz, actor, action, shared.Resource{Kind: "pos_order", ID: orderID, BusinessUnitID: unitID})
}

func (s *Service) record(ctx context.Context, unitID, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessUnitID: unitID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "pos_order",
		EntityID:       strconv.FormatInt(orderID, 10),
		Meta:           meta,
		At:             s.now(),
	})
}
