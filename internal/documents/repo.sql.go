package documents

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// DocumentStore implements the document part of TxRepository on a pgx transaction.
type DocumentStore struct {
	tx pgx.Tx
}

// NewDocumentStore binds the store to tx.
func NewDocumentStore(tx pgx.Tx) *DocumentStore {
	return &DocumentStore{tx: tx}
}

const documentColumns = `id, business_unit_id, doc_type, number, status, source_id, party_id, location_id, doc_date, memo, created_by, created_at, updated_at`

func (s *DocumentStore) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	var partyID, locationID *int64
	if doc.PartyID > 0 {
		partyID = &doc.PartyID
	}
	if doc.LocationID > 0 {
		locationID = &doc.LocationID
	}
	err := s.tx.QueryRow(ctx, `INSERT INTO documents (business_unit_id, doc_type, number, status, source_id, party_id, location_id, doc_date, memo, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		doc.BusinessUnitID, doc.Type, doc.Number, doc.Status, doc.SourceID, partyID, locationID, doc.Date, doc.Memo, doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt).Scan(&doc.ID)
	if err != nil {
		return Document{}, err
	}
	for i := range doc.Lines {
		l := &doc.Lines[i]
		l.DocumentID = doc.ID
		var itemID *int64
		if l.ItemID > 0 {
			itemID = &l.ItemID
		}
		err := s.tx.QueryRow(ctx, `INSERT INTO document_lines (document_id, line_no, item_id, description, quantity, open_quantity, unit_price, tax_code, source_line_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9) RETURNING id`,
			doc.ID, l.LineNo, itemID, l.Description, l.Quantity, l.OpenQuantity, l.UnitPrice, l.TaxCode, l.SourceLineID).Scan(&l.ID)
		if err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

func (s *DocumentStore) GetDocument(ctx context.Context, unitID, docID int64) (Document, error) {
	return s.loadDocument(ctx, `SELECT `+documentColumns+` FROM documents WHERE business_unit_id=$1 AND id=$2`, unitID, docID)
}

func (s *DocumentStore) GetDocumentForUpdate(ctx context.Context, unitID, docID int64) (Document, error) {
	return s.loadDocument(ctx, `SELECT `+documentColumns+` FROM documents WHERE business_unit_id=$1 AND id=$2 FOR UPDATE`, unitID, docID)
}

func (s *DocumentStore) UpdateDocumentStatus(ctx context.Context, doc Document) error {
	tag, err := s.tx.Exec(ctx, `UPDATE documents SET status=$3, updated_at=$4 WHERE business_unit_id=$1 AND id=$2`,
		doc.BusinessUnitID, doc.ID, doc.Status, doc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *DocumentStore) UpdateOpenQuantities(ctx context.Context, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`UPDATE document_lines SET open_quantity=$2 WHERE id=$1`, l.ID, l.OpenQuantity)
	}
	return s.tx.SendBatch(ctx, batch).Close()
}

func (s *DocumentStore) ListDocumentsBySource(ctx context.Context, unitID, sourceID int64) ([]Document, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE business_unit_id=$1 AND source_id=$2 ORDER BY id`, unitID, sourceID)
	if err != nil {
		return nil, err
	}
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		docs = append(docs, doc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Lines, err = s.loadLines(ctx, docs[i].ID); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (s *DocumentStore) loadDocument(ctx context.Context, query string, args ...any) (Document, error) {
	doc, err := scanDocument(s.tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, err
	}
	doc.Lines, err = s.loadLines(ctx, doc.ID)
	return doc, err
}

func (s *DocumentStore) loadLines(ctx context.Context, docID int64) ([]Line, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, document_id, line_no, COALESCE(item_id, 0), description, quantity, open_quantity, unit_price, COALESCE(tax_code, ''), source_line_id
FROM document_lines WHERE document_id=$1 ORDER BY line_no`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.LineNo, &l.ItemID, &l.Description, &l.Quantity, &l.OpenQuantity, &l.UnitPrice, &l.TaxCode, &l.SourceLineID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var partyID, locationID *int64
	err := row.Scan(&doc.ID, &doc.BusinessUnitID, &doc.Type, &doc.Number, &doc.Status, &doc.SourceID, &partyID, &locationID,
		&doc.Date, &doc.Memo, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if partyID != nil {
		doc.PartyID = *partyID
	}
	if locationID != nil {
		doc.LocationID = *locationID
	}
	return doc, err
}
