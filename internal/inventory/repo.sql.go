package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// StockStore implements TxRepository on a pgx transaction.
type StockStore struct {
	tx pgx.Tx
}

// NewStockStore binds the store to tx.
func NewStockStore(tx pgx.Tx) *StockStore {
	return &StockStore{tx: tx}
}

const (
	stockColumns    = `id, business_unit_id, item_id, location_id, quantity_on_hand, reorder_point, updated_at`
	movementColumns = `id, business_unit_id, stock_id, item_id, location_id, type, quantity, source_ref, transfer_ref, actor_id, created_at`
)

func (s *StockStore) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO inventory_items (business_unit_id, code, name, uom, standard_cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, item.BusinessUnitID, item.Code, item.Name, item.UOM, item.StandardCost, item.CreatedAt).Scan(&item.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Item{}, ErrDuplicateItem
		}
		return Item{}, err
	}
	return item, nil
}

func (s *StockStore) GetItem(ctx context.Context, unitID, itemID int64) (Item, error) {
	var item Item
	err := s.tx.QueryRow(ctx, `SELECT id, business_unit_id, code, name, uom, standard_cost, created_at
FROM inventory_items WHERE business_unit_id=$1 AND id=$2`, unitID, itemID).
		Scan(&item.ID, &item.BusinessUnitID, &item.Code, &item.Name, &item.UOM, &item.StandardCost, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (s *StockStore) EnsureStock(ctx context.Context, unitID, itemID, locationID int64) (Stock, error) {
	if _, err := s.tx.Exec(ctx, `INSERT INTO inventory_stock (business_unit_id, item_id, location_id)
VALUES ($1,$2,$3) ON CONFLICT (business_unit_id, item_id, location_id) DO NOTHING`, unitID, itemID, locationID); err != nil {
		return Stock{}, err
	}
	return scanStock(s.tx.QueryRow(ctx, `SELECT `+stockColumns+` FROM inventory_stock
WHERE business_unit_id=$1 AND item_id=$2 AND location_id=$3`, unitID, itemID, locationID))
}

func (s *StockStore) LockStock(ctx context.Context, unitID, stockID int64) (Stock, error) {
	stock, err := scanStock(s.tx.QueryRow(ctx, `SELECT `+stockColumns+` FROM inventory_stock
WHERE business_unit_id=$1 AND id=$2 FOR UPDATE`, unitID, stockID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	return stock, err
}

func (s *StockStore) GetStock(ctx context.Context, unitID, stockID int64) (Stock, error) {
	stock, err := scanStock(s.tx.QueryRow(ctx, `SELECT `+stockColumns+` FROM inventory_stock
WHERE business_unit_id=$1 AND id=$2`, unitID, stockID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	return stock, err
}

func (s *StockStore) SaveStock(ctx context.Context, stock Stock) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE inventory_stock SET quantity_on_hand=$3, reorder_point=$4, updated_at=$5
WHERE business_unit_id=$1 AND id=$2`, stock.BusinessUnitID, stock.ID, stock.QuantityOnHand, stock.ReorderPoint, stock.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (s *StockStore) ListStock(ctx context.Context, unitID int64) ([]Stock, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+stockColumns+` FROM inventory_stock WHERE business_unit_id=$1 ORDER BY id`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stock)
	}
	return out, rows.Err()
}

func (s *StockStore) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO inventory_movements (business_unit_id, stock_id, item_id, location_id, type, quantity, source_ref, transfer_ref, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		m.BusinessUnitID, m.StockID, m.ItemID, m.LocationID, m.Type, m.Quantity, m.SourceRef, m.TransferRef, m.ActorID, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return Movement{}, err
	}
	return m, nil
}

func (s *StockStore) ListMovements(ctx context.Context, unitID, stockID int64) ([]Movement, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+movementColumns+` FROM inventory_movements
WHERE business_unit_id=$1 AND stock_id=$2 ORDER BY id`, unitID, stockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.BusinessUnitID, &m.StockID, &m.ItemID, &m.LocationID, &m.Type, &m.Quantity,
			&m.SourceRef, &m.TransferRef, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanStock(row pgx.Row) (Stock, error) {
	var stock Stock
	err := row.Scan(&stock.ID, &stock.BusinessUnitID, &stock.ItemID, &stock.LocationID, &stock.QuantityOnHand, &stock.ReorderPoint, &stock.UpdatedAt)
	return stock, err
}
