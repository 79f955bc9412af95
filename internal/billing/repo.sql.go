package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// SettlementStore implements the invoice and payment part of TxRepository on a pgx transaction.
type SettlementStore struct {
	tx pgx.Tx
}

// NewSettlementStore binds the store to tx.
func NewSettlementStore(tx pgx.Tx) *SettlementStore {
	return &SettlementStore{tx: tx}
}

const invoiceColumns = `id, business_unit_id, kind, number, party_id, document_id, invoice_date, due_date, memo, currency,
subtotal, tax_total, total_amount, amount_paid, settlement_status, journal_entry_id, created_by, created_at, updated_at`

func (s *SettlementStore) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO invoices (business_unit_id, kind, number, party_id, document_id, invoice_date, due_date, memo, currency,
subtotal, tax_total, total_amount, amount_paid, settlement_status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$11,$12,$13,$14,$15,$16,$17) RETURNING id`,
		inv.BusinessUnitID, inv.Kind, inv.Number, inv.PartyID, inv.DocumentID, inv.Date, inv.DueDate, inv.Memo, inv.Currency,
		inv.Subtotal, inv.TaxTotal, inv.TotalAmount, inv.AmountPaid, inv.SettlementStatus, inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt).Scan(&inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	batch := &pgx.Batch{}
	for i := range inv.Lines {
		l := &inv.Lines[i]
		l.InvoiceID = inv.ID
		var itemID *int64
		if l.ItemID > 0 {
			itemID = &l.ItemID
		}
		batch.Queue(`INSERT INTO invoice_lines (invoice_id, line_no, item_id, description, quantity, unit_price, amount, tax_code, source_line_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9)`, inv.ID, l.LineNo, itemID, l.Description, l.Quantity, l.UnitPrice, l.Amount, l.TaxCode, l.SourceLineID)
	}
	for i := range inv.Taxes {
		t := &inv.Taxes[i]
		t.InvoiceID = inv.ID
		batch.Queue(`INSERT INTO invoice_line_taxes (invoice_id, line_no, tax_code, kind, rate, tax_base, tax_amount, account_key)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, inv.ID, t.LineNo, t.Code, t.Kind, t.Rate, t.TaxBase, t.TaxAmount, t.AccountKey)
	}
	if err := s.tx.SendBatch(ctx, batch).Close(); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (s *SettlementStore) GetInvoice(ctx context.Context, unitID, invoiceID int64) (Invoice, error) {
	return s.loadInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE business_unit_id=$1 AND id=$2`, unitID, invoiceID)
}

func (s *SettlementStore) GetInvoiceForUpdate(ctx context.Context, unitID, invoiceID int64) (Invoice, error) {
	return s.loadInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE business_unit_id=$1 AND id=$2 FOR UPDATE`, unitID, invoiceID)
}

func (s *SettlementStore) UpdateInvoiceSettlement(ctx context.Context, inv Invoice) error {
	tag, err := s.tx.Exec(ctx, `UPDATE invoices SET amount_paid=$3, settlement_status=$4, updated_at=$5 WHERE business_unit_id=$1 AND id=$2`,
		inv.BusinessUnitID, inv.ID, inv.AmountPaid, inv.SettlementStatus, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (s *SettlementStore) SetInvoiceJournal(ctx context.Context, unitID, invoiceID, entryID int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE invoices SET journal_entry_id=$3 WHERE business_unit_id=$1 AND id=$2`, unitID, invoiceID, entryID)
	return err
}

func (s *SettlementStore) ListOutstandingInvoices(ctx context.Context, unitID int64, kind InvoiceKind) ([]Invoice, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE business_unit_id=$1 AND kind=$2 AND settlement_status <> 'PAID' ORDER BY due_date, id`, unitID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

const paymentColumns = `id, business_unit_id, number, direction, party_id, method, amount, amount_applied, payment_date, memo, created_by, created_at`

func (s *SettlementStore) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO payments (business_unit_id, number, direction, party_id, method, amount, amount_applied, payment_date, memo, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		p.BusinessUnitID, p.Number, p.Direction, p.PartyID, p.Method, p.Amount, p.Applied, p.Date, p.Memo, p.CreatedBy, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (s *SettlementStore) GetPayment(ctx context.Context, unitID, paymentID int64) (Payment, error) {
	return s.loadPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE business_unit_id=$1 AND id=$2`, unitID, paymentID)
}

func (s *SettlementStore) GetPaymentForUpdate(ctx context.Context, unitID, paymentID int64) (Payment, error) {
	return s.loadPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE business_unit_id=$1 AND id=$2 FOR UPDATE`, unitID, paymentID)
}

func (s *SettlementStore) UpdatePaymentApplied(ctx context.Context, p Payment) error {
	tag, err := s.tx.Exec(ctx, `UPDATE payments SET amount_applied=$3 WHERE business_unit_id=$1 AND id=$2`, p.BusinessUnitID, p.ID, p.Applied)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (s *SettlementStore) InsertApplication(ctx context.Context, a Application) (Application, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO payment_applications (business_unit_id, payment_id, invoice_id, amount, applied_by, applied_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, a.BusinessUnitID, a.PaymentID, a.InvoiceID, a.Amount, a.AppliedBy, a.AppliedAt).Scan(&a.ID)
	if err != nil {
		return Application{}, err
	}
	return a, nil
}

func (s *SettlementStore) SetApplicationJournal(ctx context.Context, unitID, applicationID, entryID int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE payment_applications SET journal_entry_id=$3 WHERE business_unit_id=$1 AND id=$2`, unitID, applicationID, entryID)
	return err
}

func (s *SettlementStore) ListApplications(ctx context.Context, unitID, paymentID, invoiceID int64) ([]Application, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, business_unit_id, payment_id, invoice_id, amount, journal_entry_id, applied_by, applied_at
FROM payment_applications
WHERE business_unit_id=$1 AND ($2::bigint = 0 OR payment_id=$2) AND ($3::bigint = 0 OR invoice_id=$3)
ORDER BY id`, unitID, paymentID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.BusinessUnitID, &a.PaymentID, &a.InvoiceID, &a.Amount, &a.JournalEntryID, &a.AppliedBy, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SettlementStore) loadInvoice(ctx context.Context, query string, unitID, invoiceID int64) (Invoice, error) {
	inv, err := scanInvoice(s.tx.QueryRow(ctx, query, unitID, invoiceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	rows, err := s.tx.Query(ctx, `SELECT id, invoice_id, line_no, COALESCE(item_id, 0), description, quantity, unit_price, amount, COALESCE(tax_code, ''), source_line_id
FROM invoice_lines WHERE invoice_id=$1 ORDER BY line_no`, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineNo, &l.ItemID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount, &l.TaxCode, &l.SourceLineID); err != nil {
			rows.Close()
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Invoice{}, err
	}
	rows, err = s.tx.Query(ctx, `SELECT id, invoice_id, line_no, tax_code, kind, rate, tax_base, tax_amount, account_key
FROM invoice_line_taxes WHERE invoice_id=$1 ORDER BY line_no, id`, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var t LineTax
		if err := rows.Scan(&t.ID, &t.InvoiceID, &t.LineNo, &t.Code, &t.Kind, &t.Rate, &t.TaxBase, &t.TaxAmount, &t.AccountKey); err != nil {
			return Invoice{}, err
		}
		inv.Taxes = append(inv.Taxes, t)
	}
	return inv, rows.Err()
}

func (s *SettlementStore) loadPayment(ctx context.Context, query string, unitID, paymentID int64) (Payment, error) {
	var p Payment
	err := s.tx.QueryRow(ctx, query, unitID, paymentID).Scan(&p.ID, &p.BusinessUnitID, &p.Number, &p.Direction, &p.PartyID, &p.Method,
		&p.Amount, &p.Applied, &p.Date, &p.Memo, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var currency *string
	err := row.Scan(&inv.ID, &inv.BusinessUnitID, &inv.Kind, &inv.Number, &inv.PartyID, &inv.DocumentID, &inv.Date, &inv.DueDate, &inv.Memo, &currency,
		&inv.Subtotal, &inv.TaxTotal, &inv.TotalAmount, &inv.AmountPaid, &inv.SettlementStatus, &inv.JournalEntryID, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if currency != nil {
		inv.Currency = *currency
	}
	return inv, err
}
