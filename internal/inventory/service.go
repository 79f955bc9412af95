package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RecordInTx applies one movement inside the caller's unit of work. Receiving and
// sale-consumption callers pass the originating document as SourceRef. Transfer
// halves are written only by TransferInTx.
func RecordInTx(ctx context.Context, tx TxRepository, in RecordInput, at time.Time) (Movement, error) {
	if in.BusinessUnitID <= 0 || in.ItemID <= 0 || in.LocationID <= 0 {
		return Movement{}, shared.Validationf("inventory: item and location required")
	}
	if in.Type == MovementTransferIn || in.Type == MovementTransferOut {
		return Movement{}, fmt.Errorf("%w: %s is recorded by Transfer", ErrInvalidMovementType, in.Type)
	}
	qty, err := signed(in.Type, in.Quantity)
	if err != nil {
		return Movement{}, err
	}
	if _, err := tx.GetItem(ctx, in.BusinessUnitID, in.ItemID); err != nil {
		return Movement{}, err
	}
	stock, err := tx.EnsureStock(ctx, in.BusinessUnitID, in.ItemID, in.LocationID)
	if err != nil {
		return Movement{}, err
	}
	if stock, err = tx.LockStock(ctx, in.BusinessUnitID, stock.ID); err != nil {
		return Movement{}, err
	}
	return apply(ctx, tx, stock, Movement{
		BusinessUnitID: in.BusinessUnitID,
		Type:           in.Type,
		Quantity:       qty,
		SourceRef:      strings.TrimSpace(in.SourceRef),
		ActorID:        in.ActorID,
		CreatedAt:      at,
	})
}

// TransferInTx writes TRANSFER_OUT and TRANSFER_IN sharing one transfer ref. Both
// stock rows are locked in ascending id order so opposite transfers cannot deadlock.
func TransferInTx(ctx context.Context, tx TxRepository, in TransferInput, at time.Time) (Movement, Movement, error) {
	if in.BusinessUnitID <= 0 || in.ItemID <= 0 || in.FromLocation <= 0 || in.ToLocation <= 0 {
		return Movement{}, Movement{}, shared.Validationf("inventory: item and locations required")
	}
	if in.FromLocation == in.ToLocation {
		return Movement{}, Movement{}, ErrSameLocation
	}
	outQty, err := signed(MovementTransferOut, in.Quantity)
	if err != nil {
		return Movement{}, Movement{}, err
	}
	if _, err := tx.GetItem(ctx, in.BusinessUnitID, in.ItemID); err != nil {
		return Movement{}, Movement{}, err
	}
	src, err := tx.EnsureStock(ctx, in.BusinessUnitID, in.ItemID, in.FromLocation)
	if err != nil {
		return Movement{}, Movement{}, err
	}
	dst, err := tx.EnsureStock(ctx, in.BusinessUnitID, in.ItemID, in.ToLocation)
	if err != nil {
		return Movement{}, Movement{}, err
	}
	first, second := &src, &dst
	if dst.ID < src.ID {
		first, second = &dst, &src
	}
	if *first, err = tx.LockStock(ctx, in.BusinessUnitID, first.ID); err != nil {
		return Movement{}, Movement{}, err
	}
	if *second, err = tx.LockStock(ctx, in.BusinessUnitID, second.ID); err != nil {
		return Movement{}, Movement{}, err
	}

	ref := uuid.New()
	base := Movement{
		BusinessUnitID: in.BusinessUnitID,
		SourceRef:      strings.TrimSpace(in.SourceRef),
		TransferRef:    &ref,
		ActorID:        in.ActorID,
		CreatedAt:      at,
	}
	outMove := base
	outMove.Type = MovementTransferOut
	outMove.Quantity = outQty
	out, err := apply(ctx, tx, src, outMove)
	if err != nil {
		return Movement{}, Movement{}, err
	}
	inMove := base
	inMove.Type = MovementTransferIn
	inMove.Quantity = in.Quantity
	inbound, err := apply(ctx, tx, dst, inMove)
	if err != nil {
		return Movement{}, Movement{}, err
	}
	return out, inbound, nil
}

func apply(ctx context.Context, tx TxRepository, stock Stock, move Movement) (Movement, error) {
	next := stock.QuantityOnHand.Add(move.Quantity)
	if next.IsNegative() {
		return Movement{}, fmt.Errorf("%w: on hand %s, change %s", ErrNegativeStock, stock.QuantityOnHand.String(), move.Quantity.String())
	}
	stock.QuantityOnHand = next
	stock.UpdatedAt = move.CreatedAt
	if err := tx.SaveStock(ctx, stock); err != nil {
		return Movement{}, err
	}
	move.StockID = stock.ID
	move.ItemID = stock.ItemID
	move.LocationID = stock.LocationID
	return tx.InsertMovement(ctx, move)
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	now         func() time.Time
}

// NewService builds Service. The idempotency store is optional.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, now: time.Now}
}

// CreateItem registers an item.
func (s *Service) CreateItem(ctx context.Context, item Item) (Item, error) {
	item.Code = strings.ToUpper(strings.TrimSpace(item.Code))
	item.Name = strings.TrimSpace(item.Name)
	item.UOM = strings.TrimSpace(item.UOM)
	if item.BusinessUnitID <= 0 || item.Code == "" || item.Name == "" || item.UOM == "" || item.StandardCost.IsNegative() {
		return Item{}, ErrInvalidItem
	}
	item.CreatedAt = s.now()
	var created Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertItem(ctx, item)
		return err
	})
	return created, err
}

// Record posts one movement in its own unit of work.
func (s *Service) Record(ctx context.Context, in RecordInput) (Movement, error) {
	var move Movement
	err := s.guarded(ctx, in.BusinessUnitID, in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		var err error
		move, err = RecordInTx(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, in.ActorID, move, nil)
	return move, nil
}

// Transfer moves stock between two locations atomically.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Movement, Movement, error) {
	var out, inbound Movement
	err := s.guarded(ctx, in.BusinessUnitID, in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, inbound, err = TransferInTx(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	meta := map[string]any{"transfer_ref": out.TransferRef.String(), "to_location": in.ToLocation}
	s.record(ctx, in.ActorID, out, meta)
	return out, inbound, nil
}

// SetReorderPoint updates the threshold used by NeedsReorder.
func (s *Service) SetReorderPoint(ctx context.Context, unitID, itemID, locationID int64, point decimal.Decimal) (Stock, error) {
	if point.IsNegative() {
		return Stock{}, ErrInvalidQuantity
	}
	var stock Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetItem(ctx, unitID, itemID); err != nil {
			return err
		}
		current, err := tx.EnsureStock(ctx, unitID, itemID, locationID)
		if err != nil {
			return err
		}
		if current, err = tx.LockStock(ctx, unitID, current.ID); err != nil {
			return err
		}
		current.ReorderPoint = point
		current.UpdatedAt = s.now()
		stock = current
		return tx.SaveStock(ctx, current)
	})
	return stock, err
}

// ListStock returns every stock row of the unit.
func (s *Service) ListStock(ctx context.Context, unitID int64) ([]Stock, error) {
	var out []Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListStock(ctx, unitID)
		return err
	})
	return out, err
}

// StockCard lists the movements of a stock row with the running balance.
func (s *Service) StockCard(ctx context.Context, unitID, stockID int64) ([]StockCardEntry, error) {
	var moves []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetStock(ctx, unitID, stockID); err != nil {
			return err
		}
		var err error
		moves, err = tx.ListMovements(ctx, unitID, stockID)
		return err
	})
	if err != nil {
		return nil, err
	}
	card := make([]StockCardEntry, 0, len(moves))
	balance := decimal.Zero
	for _, m := range moves {
		balance = balance.Add(m.Quantity)
		card = append(card, StockCardEntry{
			MovementID: m.ID,
			Type:       m.Type,
			Quantity:   m.Quantity,
			Balance:    balance,
			SourceRef:  m.SourceRef,
			CreatedAt:  m.CreatedAt,
		})
	}
	return card, nil
}

// Replay recomputes on-hand from the movement history. On drift it returns the
// replayed quantity together with ErrReplayMismatch.
func (s *Service) Replay(ctx context.Context, unitID, stockID int64) (decimal.Decimal, error) {
	var replayed decimal.Decimal
	var stock Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stock, err = tx.GetStock(ctx, unitID, stockID)
		if err != nil {
			return err
		}
		replayed, err = replay(ctx, tx, unitID, stockID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !replayed.Equal(stock.QuantityOnHand) {
		return replayed, fmt.Errorf("%w: stock %d on hand %s, movements %s", ErrReplayMismatch, stockID, stock.QuantityOnHand, replayed)
	}
	return replayed, nil
}

// Verify replays every stock row of the unit and returns the ones that drifted.
func (s *Service) Verify(ctx context.Context, unitID int64) ([]Drift, error) {
	var drifts []Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stocks, err := tx.ListStock(ctx, unitID)
		if err != nil {
			return err
		}
		for _, stock := range stocks {
			replayed, err := replay(ctx, tx, unitID, stock.ID)
			if err != nil {
				return err
			}
			if !replayed.Equal(stock.QuantityOnHand) {
				drifts = append(drifts, Drift{StockID: stock.ID, OnHand: stock.QuantityOnHand, Replayed: replayed})
			}
		}
		return nil
	})
	return drifts, err
}

func replay(ctx context.Context, tx TxRepository, unitID, stockID int64) (decimal.Decimal, error) {
	moves, err := tx.ListMovements(ctx, unitID, stockID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, m := range moves {
		total = total.Add(m.Quantity)
	}
	return total, nil
}

func (s *Service) guarded(ctx context.Context, unitID int64, key string, fn func(context.Context, TxRepository) error) error {
	return s.idempotency.Guard(ctx, unitID, "inventory", key, func() error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) record(ctx context.Context, actorID int64, move Movement, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["item_id"] = move.ItemID
	meta["location_id"] = move.LocationID
	meta["qty"] = move.Quantity.String()
	meta["source_ref"] = move.SourceRef
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessUnitID: move.BusinessUnitID,
		ActorID:        actorID,
		Action:         "inventory." + strings.ToLower(string(move.Type)),
		Entity:         "inventory_movement",
		EntityID:       fmt.Sprintf("%d", move.ID),
		Meta:           meta,
		At:             s.now(),
	})
}
