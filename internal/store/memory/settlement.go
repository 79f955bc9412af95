package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/pos"
)

func (t *tx) InsertInvoice(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	inv.ID = t.id()
	inv.Lines = slices.Clone(inv.Lines)
	for i := range inv.Lines {
		inv.Lines[i].ID = t.id()
		inv.Lines[i].InvoiceID = inv.ID
	}
	inv.Taxes = slices.Clone(inv.Taxes)
	for i := range inv.Taxes {
		inv.Taxes[i].ID = t.id()
		inv.Taxes[i].InvoiceID = inv.ID
	}
	t.st.invoices[inv.ID] = inv
	return cloneInvoice(inv), nil
}

func (t *tx) GetInvoice(_ context.Context, unitID, invoiceID int64) (billing.Invoice, error) {
	inv, ok := t.st.invoices[invoiceID]
	if !ok || inv.BusinessUnitID != unitID {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (t *tx) GetInvoiceForUpdate(ctx context.Context, unitID, invoiceID int64) (billing.Invoice, error) {
	return t.GetInvoice(ctx, unitID, invoiceID)
}

func (t *tx) UpdateInvoiceSettlement(_ context.Context, inv billing.Invoice) error {
	current, ok := t.st.invoices[inv.ID]
	if !ok || current.BusinessUnitID != inv.BusinessUnitID {
		return billing.ErrInvoiceNotFound
	}
	current.AmountPaid = inv.AmountPaid
	current.SettlementStatus = inv.SettlementStatus
	current.UpdatedAt = inv.UpdatedAt
	t.st.invoices[inv.ID] = current
	return nil
}

func (t *tx) SetInvoiceJournal(_ context.Context, unitID, invoiceID, entryID int64) error {
	current, ok := t.st.invoices[invoiceID]
	if !ok || current.BusinessUnitID != unitID {
		return billing.ErrInvoiceNotFound
	}
	current.JournalEntryID = &entryID
	t.st.invoices[invoiceID] = current
	return nil
}

func (t *tx) ListOutstandingInvoices(_ context.Context, unitID int64, kind billing.InvoiceKind) ([]billing.Invoice, error) {
	out := sortedByID(t.st.invoices, func(inv billing.Invoice) bool {
		return inv.BusinessUnitID == unitID && inv.Kind == kind && inv.SettlementStatus != billing.SettlementPaid
	})
	slices.SortStableFunc(out, func(a, b billing.Invoice) int { return a.DueDate.Compare(b.DueDate) })
	for i := range out {
		out[i] = cloneInvoice(out[i])
	}
	return out, nil
}

func (t *tx) InsertPayment(_ context.Context, payment billing.Payment) (billing.Payment, error) {
	payment.ID = t.id()
	t.st.payments[payment.ID] = payment
	return payment, nil
}

func (t *tx) GetPayment(_ context.Context, unitID, paymentID int64) (billing.Payment, error) {
	payment, ok := t.st.payments[paymentID]
	if !ok || payment.BusinessUnitID != unitID {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return payment, nil
}

func (t *tx) GetPaymentForUpdate(ctx context.Context, unitID, paymentID int64) (billing.Payment, error) {
	return t.GetPayment(ctx, unitID, paymentID)
}

func (t *tx) UpdatePaymentApplied(_ context.Context, payment billing.Payment) error {
	current, ok := t.st.payments[payment.ID]
	if !ok || current.BusinessUnitID != payment.BusinessUnitID {
		return billing.ErrPaymentNotFound
	}
	current.Applied = payment.Applied
	t.st.payments[payment.ID] = current
	return nil
}

func (t *tx) InsertApplication(_ context.Context, app billing.Application) (billing.Application, error) {
	app.ID = t.id()
	t.st.apps[app.ID] = app
	return app, nil
}

func (t *tx) SetApplicationJournal(_ context.Context, unitID, applicationID, entryID int64) error {
	app, ok := t.st.apps[applicationID]
	if !ok || app.BusinessUnitID != unitID {
		return billing.ErrPaymentNotFound
	}
	app.JournalEntryID = &entryID
	t.st.apps[applicationID] = app
	return nil
}

func (t *tx) ListApplications(_ context.Context, unitID, paymentID, invoiceID int64) ([]billing.Application, error) {
	return sortedByID(t.st.apps, func(a billing.Application) bool {
		return a.BusinessUnitID == unitID &&
			(paymentID == 0 || a.PaymentID == paymentID) &&
			(invoiceID == 0 || a.InvoiceID == invoiceID)
	}), nil
}

func cloneInvoice(inv billing.Invoice) billing.Invoice {
	inv.Lines = slices.Clone(inv.Lines)
	inv.Taxes = slices.Clone(inv.Taxes)
	return inv
}

func (t *tx) InsertMenuItem(_ context.Context, item pos.MenuItem) (pos.MenuItem, error) {
	item.ID = t.id()
	t.st.menu[item.ID] = item
	return item, nil
}

func (t *tx) GetMenuItem(_ context.Context, unitID, menuItemID int64) (pos.MenuItem, error) {
	item, ok := t.st.menu[menuItemID]
	if !ok || item.BusinessUnitID != unitID {
		return pos.MenuItem{}, pos.ErrMenuItemNotFound
	}
	return item, nil
}

func (t *tx) SaveRecipe(_ context.Context, _ int64, recipe pos.Recipe) error {
	recipe.Ingredients = slices.Clone(recipe.Ingredients)
	slices.SortFunc(recipe.Ingredients, func(a, b pos.Ingredient) int { return cmp.Compare(a.ItemID, b.ItemID) })
	t.st.recipes[recipe.MenuItemID] = recipe
	return nil
}

func (t *tx) GetRecipe(_ context.Context, unitID, menuItemID int64) (pos.Recipe, error) {
	item, ok := t.st.menu[menuItemID]
	if !ok || item.BusinessUnitID != unitID {
		return pos.Recipe{MenuItemID: menuItemID}, nil
	}
	recipe, ok := t.st.recipes[menuItemID]
	if !ok {
		return pos.Recipe{MenuItemID: menuItemID}, nil
	}
	recipe.Ingredients = slices.Clone(recipe.Ingredients)
	return recipe, nil
}

func (t *tx) InsertOrder(_ context.Context, order pos.Order) (pos.Order, error) {
	order.ID = t.id()
	order.Lines = slices.Clone(order.Lines)
	t.st.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (t *tx) GetOrder(_ context.Context, unitID, orderID int64) (pos.Order, error) {
	order, ok := t.st.orders[orderID]
	if !ok || order.BusinessUnitID != unitID {
		return pos.Order{}, pos.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, unitID, orderID int64) (pos.Order, error) {
	return t.GetOrder(ctx, unitID, orderID)
}

func (t *tx) InsertOrderLine(_ context.Context, line pos.OrderLine) (pos.OrderLine, error) {
	order, ok := t.st.orders[line.OrderID]
	if !ok {
		return pos.OrderLine{}, pos.ErrOrderNotFound
	}
	line.ID = t.id()
	order.Lines = append(slices.Clone(order.Lines), line)
	t.st.orders[order.ID] = order
	return line, nil
}

func (t *tx) UpdateOrder(_ context.Context, order pos.Order) error {
	current, ok := t.st.orders[order.ID]
	if !ok || current.BusinessUnitID != order.BusinessUnitID {
		return pos.ErrOrderNotFound
	}
	order.Lines = current.Lines
	order.Number = current.Number
	order.CreatedAt = current.CreatedAt
	t.st.orders[order.ID] = order
	return nil
}

func (t *tx) InsertDiscountGrant(_ context.Context, grant pos.DiscountGrant) (pos.DiscountGrant, error) {
	grant.ID = t.id()
	t.st.grants[grant.OrderID] = grant
	return grant, nil
}

func (t *tx) GetDiscountGrant(_ context.Context, unitID, orderID int64) (pos.DiscountGrant, error) {
	grant, ok := t.st.grants[orderID]
	if !ok || grant.BusinessUnitID != unitID {
		return pos.DiscountGrant{}, pos.ErrGrantNotFound
	}
	return grant, nil
}

func cloneOrder(order pos.Order) pos.Order {
	order.Lines = slices.Clone(order.Lines)
	return order
}
