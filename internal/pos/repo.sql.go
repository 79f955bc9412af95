package pos

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// OrderStore implements the POS part of TxRepository on a pgx transaction.
type OrderStore struct {
	tx pgx.Tx
}

// NewOrderStore binds the store to tx.
func NewOrderStore(tx pgx.Tx) *OrderStore {
	return &OrderStore{tx: tx}
}

func (s *OrderStore) InsertMenuItem(ctx context.Context, item MenuItem) (MenuItem, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO pos_menu_items (business_unit_id, code, name, price, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, item.BusinessUnitID, item.Code, item.Name, item.Price, item.IsActive, item.CreatedAt).Scan(&item.ID)
	if err != nil {
		return MenuItem{}, err
	}
	return item, nil
}

func (s *OrderStore) GetMenuItem(ctx context.Context, unitID, menuItemID int64) (MenuItem, error) {
	var item MenuItem
	err := s.tx.QueryRow(ctx, `SELECT id, business_unit_id, code, name, price, is_active, created_at
FROM pos_menu_items WHERE business_unit_id=$1 AND id=$2`, unitID, menuItemID).
		Scan(&item.ID, &item.BusinessUnitID, &item.Code, &item.Name, &item.Price, &item.IsActive, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MenuItem{}, ErrMenuItemNotFound
	}
	return item, err
}

func (s *OrderStore) SaveRecipe(ctx context.Context, unitID int64, recipe Recipe) error {
	if _, err := s.tx.Exec(ctx, `DELETE FROM pos_recipe_ingredients WHERE business_unit_id=$1 AND menu_item_id=$2`, unitID, recipe.MenuItemID); err != nil {
		return err
	}
	if len(recipe.Ingredients) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ing := range recipe.Ingredients {
		batch.Queue(`INSERT INTO pos_recipe_ingredients (business_unit_id, menu_item_id, item_id, quantity) VALUES ($1,$2,$3,$4)`,
			unitID, recipe.MenuItemID, ing.ItemID, ing.Quantity)
	}
	return s.tx.SendBatch(ctx, batch).Close()
}

func (s *OrderStore) GetRecipe(ctx context.Context, unitID, menuItemID int64) (Recipe, error) {
	rows, err := s.tx.Query(ctx, `SELECT item_id, quantity FROM pos_recipe_ingredients
WHERE business_unit_id=$1 AND menu_item_id=$2 ORDER BY item_id`, unitID, menuItemID)
	if err != nil {
		return Recipe{}, err
	}
	defer rows.Close()
	recipe := Recipe{MenuItemID: menuItemID}
	for rows.Next() {
		var ing Ingredient
		if err := rows.Scan(&ing.ItemID, &ing.Quantity); err != nil {
			return Recipe{}, err
		}
		recipe.Ingredients = append(recipe.Ingredients, ing)
	}
	return recipe, rows.Err()
}

const orderColumns = `id, business_unit_id, number, location_id, COALESCE(tax_code, ''), status, subtotal, discount, tax, total,
amount_received, change_due, COALESCE(payment_method, ''), journal_entry_id, void_reason, opened_by, closed_by, created_at, closed_at`

func (s *OrderStore) InsertOrder(ctx context.Context, o Order) (Order, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO pos_orders (business_unit_id, number, location_id, tax_code, status, subtotal, discount, tax, total,
amount_received, change_due, void_reason, opened_by, created_at)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		o.BusinessUnitID, o.Number, o.LocationID, o.TaxCode, o.Status, o.Subtotal, o.Discount, o.Tax, o.Total,
		o.AmountReceived, o.Change, o.VoidReason, o.OpenedBy, o.CreatedAt).Scan(&o.ID)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *OrderStore) GetOrder(ctx context.Context, unitID, orderID int64) (Order, error) {
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM pos_orders WHERE business_unit_id=$1 AND id=$2`, unitID, orderID)
}

func (s *OrderStore) GetOrderForUpdate(ctx context.Context, unitID, orderID int64) (Order, error) {
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM pos_orders WHERE business_unit_id=$1 AND id=$2 FOR UPDATE`, unitID, orderID)
}

func (s *OrderStore) InsertOrderLine(ctx context.Context, l OrderLine) (OrderLine, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO pos_order_lines (order_id, line_no, menu_item_id, name, quantity, unit_price)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, l.OrderID, l.LineNo, l.MenuItemID, l.Name, l.Quantity, l.UnitPrice).Scan(&l.ID)
	if err != nil {
		return OrderLine{}, err
	}
	return l, nil
}

func (s *OrderStore) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := s.tx.Exec(ctx, `UPDATE pos_orders SET status=$3, subtotal=$4, discount=$5, tax=$6, total=$7, amount_received=$8,
change_due=$9, payment_method=NULLIF($10,''), journal_entry_id=$11, void_reason=$12, closed_by=$13, closed_at=$14
WHERE business_unit_id=$1 AND id=$2`,
		o.BusinessUnitID, o.ID, o.Status, o.Subtotal, o.Discount, o.Tax, o.Total, o.AmountReceived,
		o.Change, o.PaymentMethod, o.JournalEntryID, o.VoidReason, o.ClosedBy, o.ClosedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *OrderStore) InsertDiscountGrant(ctx context.Context, g DiscountGrant) (DiscountGrant, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO pos_discount_grants (business_unit_id, order_id, granted_by, method, granted_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, g.BusinessUnitID, g.OrderID, g.GrantedBy, g.Method, g.GrantedAt).Scan(&g.ID)
	if err != nil {
		return DiscountGrant{}, err
	}
	return g, nil
}

func (s *OrderStore) GetDiscountGrant(ctx context.Context, unitID, orderID int64) (DiscountGrant, error) {
	var g DiscountGrant
	err := s.tx.QueryRow(ctx, `SELECT id, business_unit_id, order_id, granted_by, method, granted_at
FROM pos_discount_grants WHERE business_unit_id=$1 AND order_id=$2`, unitID, orderID).
		Scan(&g.ID, &g.BusinessUnitID, &g.OrderID, &g.GrantedBy, &g.Method, &g.GrantedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DiscountGrant{}, ErrGrantNotFound
	}
	return g, err
}

func (s *OrderStore) loadOrder(ctx context.Context, query string, unitID, orderID int64) (Order, error) {
	var o Order
	err := s.tx.QueryRow(ctx, query, unitID, orderID).Scan(&o.ID, &o.BusinessUnitID, &o.Number, &o.LocationID, &o.TaxCode, &o.Status,
		&o.Subtotal, &o.Discount, &o.Tax, &o.Total, &o.AmountReceived, &o.Change, &o.PaymentMethod, &o.JournalEntryID,
		&o.VoidReason, &o.OpenedBy, &o.ClosedBy, &o.CreatedAt, &o.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	rows, err := s.tx.Query(ctx, `SELECT id, order_id, line_no, menu_item_id, name, quantity, unit_price
FROM pos_order_lines WHERE order_id=$1 ORDER BY line_no`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.LineNo, &l.MenuItemID, &l.Name, &l.Quantity, &l.UnitPrice); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}
