package accounting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PostDirect creates an entry that is POSTED on insert, inside the caller's unit of work.
// Integrations (invoices, payments, POS settlements) use it so the ledger effect commits
// or rolls back together with the business document.
func PostDirect(ctx context.Context, tx TxRepository, in PostingInput, at time.Time) (JournalEntry, error) {
	if in.BusinessUnitID <= 0 || in.Date.IsZero() {
		return JournalEntry{}, ErrInvalidEntry
	}
	if in.SourceModule == "" || in.SourceRef == uuid.Nil {
		return JournalEntry{}, shared.Validationf("accounting: source module and ref required")
	}
	lines, err := buildLines(in.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	currency := in.Currency
	if currency != "" {
		if currency, err = shared.NormalizeCurrency(currency); err != nil {
			return JournalEntry{}, err
		}
	}
	date := dateOnly(in.Date)
	if err := checkPostable(ctx, tx, in.BusinessUnitID, date, lines); err != nil {
		return JournalEntry{}, err
	}
	number, err := numbering.Issue(ctx, tx, in.BusinessUnitID, DocumentTypeJournal)
	if err != nil {
		return JournalEntry{}, err
	}
	actorID := in.ActorID
	entry := JournalEntry{
		BusinessUnitID: in.BusinessUnitID,
		Number:         number,
		Date:           date,
		Memo:           strings.TrimSpace(in.Memo),
		Currency:       currency,
		Status:         JournalStatusPosted,
		SourceModule:   strings.ToUpper(in.SourceModule),
		SourceRef:      in.SourceRef,
		ReversalOf:     in.ReversalOf,
		CreatedBy:      actorID,
		PostedBy:       &actorID,
		PostedAt:       &at,
		CreatedAt:      at,
		UpdatedAt:      at,
		Lines:          lines,
	}
	return tx.InsertJournalEntry(ctx, entry)
}

// SourceRef derives a stable source reference so re-running an integration for the
// same document hits ErrSourceAlreadyLinked instead of double posting.
func SourceRef(module string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", strings.ToUpper(module), id)))
}

// checkPostable runs the period, balance and account checks shared by every posting path.
func checkPostable(ctx context.Context, tx TxRepository, unitID int64, date time.Time, lines []JournalLine) error {
	period, err := tx.LockPeriodForDate(ctx, unitID, date)
	if err != nil {
		return err
	}
	if period.Status != PeriodStatusOpen {
		return ErrPeriodClosed
	}
	debit, credit := JournalEntry{Lines: lines}.Totals()
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	seen := make(map[string]Account, len(lines))
	for _, line := range lines {
		account, ok := seen[line.AccountCode]
		if !ok {
			account, err = tx.GetAccount(ctx, unitID, line.AccountCode)
			if err != nil {
				return fmt.Errorf("%w: %s", err, line.AccountCode)
			}
			seen[line.AccountCode] = account
		}
		if !account.IsActive {
			return fmt.Errorf("%w: %s", ErrInactiveAccount, account.Code)
		}
		if account.IsControl && line.SubsidiaryRef == "" {
			return fmt.Errorf("%w: %s", ErrControlAccountRef, account.Code)
		}
	}
	return nil
}

func buildLines(in []LineInput) ([]JournalLine, error) {
	if len(in) < 2 {
		return nil, ErrTooFewLines
	}
	lines := make([]JournalLine, 0, len(in))
	for i, line := range in {
		code := normalizeCode(line.AccountCode)
		if code == "" {
			return nil, fmt.Errorf("%w: line %d has no account", ErrInvalidLine, i+1)
		}
		debitSet, creditSet := line.Debit.IsPositive(), line.Credit.IsPositive()
		if line.Debit.IsNegative() || line.Credit.IsNegative() || debitSet == creditSet {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidLine, i+1)
		}
		if !shared.HasMoneyPrecision(line.Debit) || !shared.HasMoneyPrecision(line.Credit) {
			return nil, fmt.Errorf("%w: line %d", ErrAmountPrecision, i+1)
		}
		lines = append(lines, JournalLine{
			LineNo:        i + 1,
			AccountCode:   code,
			Debit:         line.Debit,
			Credit:        line.Credit,
			Description:   strings.TrimSpace(line.Description),
			SubsidiaryRef: strings.TrimSpace(line.SubsidiaryRef),
		})
	}
	return lines, nil
}

func reverseLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for i, line := range lines {
		out = append(out, JournalLine{
			LineNo:        i + 1,
			AccountCode:   line.AccountCode,
			Debit:         line.Credit,
			Credit:        line.Debit,
			Description:   line.Description,
			SubsidiaryRef: line.SubsidiaryRef,
		})
	}
	return out
}

func lineInputs(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountCode:   line.AccountCode,
			Debit:         line.Debit,
			Credit:        line.Credit,
			Description:   line.Description,
			SubsidiaryRef: line.SubsidiaryRef,
		})
	}
	return out
}

// sumRows folds trial balance rows into totals.
func sumRows(rows []TrialBalanceRow) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, row := range rows {
		debit = debit.Add(row.Debit)
		credit = credit.Add(row.Credit)
	}
	return debit, credit
}
