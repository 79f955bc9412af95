package memory

import (
	"context"
	"slices"

	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

func (t *tx) InsertItem(_ context.Context, item inventory.Item) (inventory.Item, error) {
	for _, existing := range t.st.items {
		if existing.BusinessUnitID == item.BusinessUnitID && existing.Code == item.Code {
			return inventory.Item{}, inventory.ErrDuplicateItem
		}
	}
	item.ID = t.id()
	t.st.items[item.ID] = item
	return item, nil
}

func (t *tx) GetItem(_ context.Context, unitID, itemID int64) (inventory.Item, error) {
	item, ok := t.st.items[itemID]
	if !ok || item.BusinessUnitID != unitID {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func (t *tx) EnsureStock(_ context.Context, unitID, itemID, locationID int64) (inventory.Stock, error) {
	for _, stock := range t.st.stocks {
		if stock.BusinessUnitID == unitID && stock.ItemID == itemID && stock.LocationID == locationID {
			return stock, nil
		}
	}
	stock := inventory.Stock{ID: t.id(), BusinessUnitID: unitID, ItemID: itemID, LocationID: locationID, UpdatedAt: t.now()}
	t.st.stocks[stock.ID] = stock
	return stock, nil
}

func (t *tx) LockStock(ctx context.Context, unitID, stockID int64) (inventory.Stock, error) {
	return t.GetStock(ctx, unitID, stockID)
}

func (t *tx) GetStock(_ context.Context, unitID, stockID int64) (inventory.Stock, error) {
	stock, ok := t.st.stocks[stockID]
	if !ok || stock.BusinessUnitID != unitID {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	return stock, nil
}

func (t *tx) SaveStock(_ context.Context, stock inventory.Stock) error {
	current, ok := t.st.stocks[stock.ID]
	if !ok || current.BusinessUnitID != stock.BusinessUnitID {
		return inventory.ErrStockNotFound
	}
	t.st.stocks[stock.ID] = stock
	return nil
}

func (t *tx) ListStock(_ context.Context, unitID int64) ([]inventory.Stock, error) {
	return sortedByID(t.st.stocks, func(s inventory.Stock) bool { return s.BusinessUnitID == unitID }), nil
}

func (t *tx) InsertMovement(_ context.Context, movement inventory.Movement) (inventory.Movement, error) {
	movement.ID = t.id()
	t.st.movements = append(t.st.movements, movement)
	return movement, nil
}

func (t *tx) ListMovements(_ context.Context, unitID, stockID int64) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range t.st.movements {
		if m.BusinessUnitID == unitID && m.StockID == stockID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *tx) InsertDocument(_ context.Context, doc documents.Document) (documents.Document, error) {
	doc.ID = t.id()
	doc.Lines = slices.Clone(doc.Lines)
	for i := range doc.Lines {
		doc.Lines[i].ID = t.id()
		doc.Lines[i].DocumentID = doc.ID
	}
	t.st.docs[doc.ID] = doc
	return cloneDocument(doc), nil
}

func (t *tx) GetDocument(_ context.Context, unitID, docID int64) (documents.Document, error) {
	doc, ok := t.st.docs[docID]
	if !ok || doc.BusinessUnitID != unitID {
		return documents.Document{}, documents.ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

func (t *tx) GetDocumentForUpdate(ctx context.Context, unitID, docID int64) (documents.Document, error) {
	return t.GetDocument(ctx, unitID, docID)
}

func (t *tx) UpdateDocumentStatus(_ context.Context, doc documents.Document) error {
	current, ok := t.st.docs[doc.ID]
	if !ok || current.BusinessUnitID != doc.BusinessUnitID {
		return documents.ErrDocumentNotFound
	}
	current.Status = doc.Status
	current.UpdatedAt = doc.UpdatedAt
	t.st.docs[doc.ID] = current
	return nil
}

func (t *tx) UpdateOpenQuantities(_ context.Context, lines []documents.Line) error {
	for _, l := range lines {
		doc, ok := t.st.docs[l.DocumentID]
		if !ok {
			return documents.ErrDocumentNotFound
		}
		doc.Lines = slices.Clone(doc.Lines)
		idx := slices.IndexFunc(doc.Lines, func(existing documents.Line) bool { return existing.ID == l.ID })
		if idx < 0 {
			return documents.ErrUnknownSourceLine
		}
		doc.Lines[idx].OpenQuantity = l.OpenQuantity
		t.st.docs[doc.ID] = doc
	}
	return nil
}

func (t *tx) ListDocumentsBySource(_ context.Context, unitID, sourceID int64) ([]documents.Document, error) {
	docs := sortedByID(t.st.docs, func(d documents.Document) bool {
		return d.BusinessUnitID == unitID && d.SourceID != nil && *d.SourceID == sourceID
	})
	for i := range docs {
		docs[i] = cloneDocument(docs[i])
	}
	return docs, nil
}

func cloneDocument(doc documents.Document) documents.Document {
	doc.Lines = slices.Clone(doc.Lines)
	return doc
}
