package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// LedgerStore implements the ledger half of TxRepository on a pgx transaction.
type LedgerStore struct {
	tx pgx.Tx
}

// NewLedgerStore binds the store to tx.
func NewLedgerStore(tx pgx.Tx) *LedgerStore {
	return &LedgerStore{tx: tx}
}

const (
	accountColumns = `id, business_unit_id, code, name, type, normal_balance, is_control, is_active, created_at`
	periodColumns  = `id, business_unit_id, fiscal_year, period_number, start_date, end_date, status, closed_at, closed_by`
	entryColumns   = `id, business_unit_id, number, date, memo, currency, status, source_module, source_ref, reversal_of,
created_by, approved_by, posted_by, posted_at, created_at, updated_at`
)

func (r *LedgerStore) InsertAccount(ctx context.Context, a Account) (Account, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO gl_accounts (business_unit_id, code, name, type, normal_balance, is_control, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`, a.BusinessUnitID, a.Code, a.Name, a.Type, a.NormalBalance, a.IsControl, a.IsActive).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_gl_accounts_code") {
			return Account{}, ErrDuplicateAccount
		}
		return Account{}, err
	}
	return a, nil
}

func (r *LedgerStore) GetAccount(ctx context.Context, unitID int64, code string) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE business_unit_id=$1 AND code=$2`, unitID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrUnknownAccount
	}
	return a, err
}

func (r *LedgerStore) ListAccounts(ctx context.Context, unitID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE business_unit_id=$1 ORDER BY code`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *LedgerStore) SaveAccountMapping(ctx context.Context, m AccountMapping) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO account_mappings (business_unit_id, key, account_code) VALUES ($1,$2,$3)
ON CONFLICT (business_unit_id, key) DO UPDATE SET account_code=EXCLUDED.account_code, updated_at=NOW()`, m.BusinessUnitID, m.Key, m.AccountCode)
	return err
}

func (r *LedgerStore) GetAccountMapping(ctx context.Context, unitID int64, key string) (AccountMapping, error) {
	m := AccountMapping{BusinessUnitID: unitID, Key: key}
	err := r.tx.QueryRow(ctx, `SELECT account_code FROM account_mappings WHERE business_unit_id=$1 AND key=$2`, unitID, key).Scan(&m.AccountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *LedgerStore) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (business_unit_id, fiscal_year, period_number, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, p.BusinessUnitID, p.FiscalYear, p.PeriodNumber, p.StartDate, p.EndDate, p.Status).Scan(&p.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Period{}, ErrPeriodOverlap
		}
		return Period{}, err
	}
	return p, nil
}

func (r *LedgerStore) ListPeriods(ctx context.Context, unitID int64) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE business_unit_id=$1 ORDER BY start_date`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *LedgerStore) GetPeriodForUpdate(ctx context.Context, unitID, periodID int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE business_unit_id=$1 AND id=$2 FOR UPDATE`, unitID, periodID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrNoPeriod
	}
	return p, err
}

func (r *LedgerStore) FindPeriodByDate(ctx context.Context, unitID int64, date time.Time) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE business_unit_id=$1 AND $2 BETWEEN start_date AND end_date`, unitID, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrNoPeriod
	}
	return p, err
}

func (r *LedgerStore) LockPeriodForDate(ctx context.Context, unitID int64, date time.Time) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE business_unit_id=$1 AND $2 BETWEEN start_date AND end_date FOR SHARE`, unitID, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrNoPeriod
	}
	return p, err
}

func (r *LedgerStore) UpdatePeriod(ctx context.Context, p Period) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status=$3, closed_at=$4, closed_by=$5
WHERE business_unit_id=$1 AND id=$2`, p.BusinessUnitID, p.ID, p.Status, p.ClosedAt, p.ClosedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoPeriod
	}
	return nil
}

func (r *LedgerStore) InsertJournalEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (business_unit_id, number, date, memo, currency, status, source_module, source_ref,
reversal_of, created_by, approved_by, posted_by, posted_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING id`,
		e.BusinessUnitID, e.Number, e.Date, e.Memo, e.Currency, e.Status, e.SourceModule, e.SourceRef,
		e.ReversalOf, e.CreatedBy, e.ApprovedBy, e.PostedBy, e.PostedAt, e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entries_source") {
			return JournalEntry{}, ErrSourceAlreadyLinked
		}
		return JournalEntry{}, err
	}
	if err := r.insertLines(ctx, e.ID, e.Lines); err != nil {
		return JournalEntry{}, err
	}
	for i := range e.Lines {
		e.Lines[i].EntryID = e.ID
	}
	return e, nil
}

func (r *LedgerStore) GetJournalEntry(ctx context.Context, unitID, entryID int64) (JournalEntry, error) {
	return r.loadEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE business_unit_id=$1 AND id=$2`, unitID, entryID)
}

func (r *LedgerStore) GetJournalEntryForUpdate(ctx context.Context, unitID, entryID int64) (JournalEntry, error) {
	return r.loadEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE business_unit_id=$1 AND id=$2 FOR UPDATE`, unitID, entryID)
}

func (r *LedgerStore) UpdateJournalHeader(ctx context.Context, e JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET date=$3, memo=$4, currency=$5, status=$6, approved_by=$7,
posted_by=$8, posted_at=$9, updated_at=$10 WHERE business_unit_id=$1 AND id=$2`,
		e.BusinessUnitID, e.ID, e.Date, e.Memo, e.Currency, e.Status, e.ApprovedBy, e.PostedBy, e.PostedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}

func (r *LedgerStore) ReplaceJournalLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	return r.insertLines(ctx, entryID, lines)
}

func (r *LedgerStore) DeleteJournalEntry(ctx context.Context, unitID, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE business_unit_id=$1 AND id=$2 AND status <> 'POSTED'`, unitID, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}

func (r *LedgerStore) SumPostedLines(ctx context.Context, unitID int64, from, to time.Time) ([]TrialBalanceRow, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.account_code, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.business_unit_id=$1 AND e.status='POSTED' AND e.date BETWEEN $2 AND $3
GROUP BY l.account_code ORDER BY l.account_code`, unitID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountCode, &row.Debit, &row.Credit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *LedgerStore) insertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, line_no, account_code, debit, credit, description, subsidiary_ref)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, entryID, line.LineNo, line.AccountCode, line.Debit, line.Credit, line.Description, line.SubsidiaryRef)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *LedgerStore) loadEntry(ctx context.Context, query string, unitID, entryID int64) (JournalEntry, error) {
	var e JournalEntry
	err := r.tx.QueryRow(ctx, query, unitID, entryID).Scan(&e.ID, &e.BusinessUnitID, &e.Number, &e.Date, &e.Memo, &e.Currency,
		&e.Status, &e.SourceModule, &e.SourceRef, &e.ReversalOf, &e.CreatedBy, &e.ApprovedBy, &e.PostedBy, &e.PostedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, line_no, account_code, debit, credit, description, subsidiary_ref
FROM journal_lines WHERE entry_id=$1 ORDER BY line_no`, e.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.LineNo, &line.AccountCode, &line.Debit, &line.Credit, &line.Description, &line.SubsidiaryRef); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, line)
	}
	return e, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.BusinessUnitID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsControl, &a.IsActive, &a.CreatedAt)
	return a, err
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.BusinessUnitID, &p.FiscalYear, &p.PeriodNumber, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy)
	return p, err
}
