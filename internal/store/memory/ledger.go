package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

func (t *tx) GetSeriesForUpdate(_ context.Context, unitID int64, documentType string) (numbering.Series, error) {
	series, ok := t.st.series[seriesKey{unitID, documentType}]
	if !ok {
		return numbering.Series{}, numbering.ErrNotConfigured
	}
	return series, nil
}

func (t *tx) SaveSeries(_ context.Context, series numbering.Series) (numbering.Series, error) {
	key := seriesKey{series.BusinessUnitID, series.DocumentType}
	if current, ok := t.st.series[key]; ok {
		series.ID = current.ID
	} else {
		series.ID = t.id()
	}
	series.UpdatedAt = t.now()
	t.st.series[key] = series
	return series, nil
}

func (t *tx) ListSeries(_ context.Context, unitID int64) ([]numbering.Series, error) {
	var out []numbering.Series
	for key, series := range t.st.series {
		if key.unitID == unitID {
			out = append(out, series)
		}
	}
	slices.SortFunc(out, func(a, b numbering.Series) int { return strings.Compare(a.DocumentType, b.DocumentType) })
	return out, nil
}

func (t *tx) InsertAccount(_ context.Context, account accounting.Account) (accounting.Account, error) {
	key := codeKey{account.BusinessUnitID, account.Code}
	if _, exists := t.st.accounts[key]; exists {
		return accounting.Account{}, accounting.ErrDuplicateAccount
	}
	account.ID = t.id()
	account.CreatedAt = t.now()
	t.st.accounts[key] = account
	return account, nil
}

func (t *tx) GetAccount(_ context.Context, unitID int64, code string) (accounting.Account, error) {
	account, ok := t.st.accounts[codeKey{unitID, code}]
	if !ok {
		return accounting.Account{}, accounting.ErrUnknownAccount
	}
	return account, nil
}

func (t *tx) ListAccounts(_ context.Context, unitID int64) ([]accounting.Account, error) {
	var out []accounting.Account
	for key, account := range t.st.accounts {
		if key.unitID == unitID {
			out = append(out, account)
		}
	}
	slices.SortFunc(out, func(a, b accounting.Account) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (t *tx) SaveAccountMapping(_ context.Context, mapping accounting.AccountMapping) error {
	t.st.mappings[codeKey{mapping.BusinessUnitID, mapping.Key}] = mapping
	return nil
}

func (t *tx) GetAccountMapping(_ context.Context, unitID int64, key string) (accounting.AccountMapping, error) {
	mapping, ok := t.st.mappings[codeKey{unitID, key}]
	if !ok {
		return accounting.AccountMapping{}, accounting.ErrMappingNotFound
	}
	return mapping, nil
}

func (t *tx) InsertPeriod(_ context.Context, period accounting.Period) (accounting.Period, error) {
	for _, p := range t.st.periods {
		if p.BusinessUnitID != period.BusinessUnitID {
			continue
		}
		samePosition := p.FiscalYear == period.FiscalYear && p.PeriodNumber == period.PeriodNumber
		if samePosition || (!period.StartDate.After(p.EndDate) && !p.StartDate.After(period.EndDate)) {
			return accounting.Period{}, accounting.ErrPeriodOverlap
		}
	}
	period.ID = t.id()
	t.st.periods[period.ID] = period
	return period, nil
}

func (t *tx) ListPeriods(_ context.Context, unitID int64) ([]accounting.Period, error) {
	out := sortedByID(t.st.periods, func(p accounting.Period) bool { return p.BusinessUnitID == unitID })
	slices.SortStableFunc(out, func(a, b accounting.Period) int { return a.StartDate.Compare(b.StartDate) })
	return out, nil
}

func (t *tx) GetPeriodForUpdate(_ context.Context, unitID, periodID int64) (accounting.Period, error) {
	p, ok := t.st.periods[periodID]
	if !ok || p.BusinessUnitID != unitID {
		return accounting.Period{}, accounting.ErrNoPeriod
	}
	return p, nil
}

func (t *tx) FindPeriodByDate(_ context.Context, unitID int64, date time.Time) (accounting.Period, error) {
	for _, p := range t.st.periods {
		if p.BusinessUnitID == unitID && p.Covers(date) {
			return p, nil
		}
	}
	return accounting.Period{}, accounting.ErrNoPeriod
}

func (t *tx) LockPeriodForDate(ctx context.Context, unitID int64, date time.Time) (accounting.Period, error) {
	return t.FindPeriodByDate(ctx, unitID, date)
}

func (t *tx) UpdatePeriod(_ context.Context, period accounting.Period) error {
	current, ok := t.st.periods[period.ID]
	if !ok || current.BusinessUnitID != period.BusinessUnitID {
		return accounting.ErrNoPeriod
	}
	current.Status = period.Status
	current.ClosedAt = period.ClosedAt
	current.ClosedBy = period.ClosedBy
	t.st.periods[period.ID] = current
	return nil
}

func (t *tx) InsertJournalEntry(_ context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	key := sourceKey{entry.BusinessUnitID, entry.SourceModule, entry.SourceRef.String()}
	if _, linked := t.st.sources[key]; linked {
		return accounting.JournalEntry{}, accounting.ErrSourceAlreadyLinked
	}
	entry.ID = t.id()
	entry.Lines = t.numberLines(entry.ID, entry.Lines)
	t.st.entries[entry.ID] = entry
	t.st.sources[key] = entry.ID
	return cloneEntry(entry), nil
}

func (t *tx) GetJournalEntry(_ context.Context, unitID, entryID int64) (accounting.JournalEntry, error) {
	entry, ok := t.st.entries[entryID]
	if !ok || entry.BusinessUnitID != unitID {
		return accounting.JournalEntry{}, accounting.ErrJournalNotFound
	}
	return cloneEntry(entry), nil
}

func (t *tx) GetJournalEntryForUpdate(ctx context.Context, unitID, entryID int64) (accounting.JournalEntry, error) {
	return t.GetJournalEntry(ctx, unitID, entryID)
}

func (t *tx) UpdateJournalHeader(_ context.Context, entry accounting.JournalEntry) error {
	current, ok := t.st.entries[entry.ID]
	if !ok || current.BusinessUnitID != entry.BusinessUnitID {
		return accounting.ErrJournalNotFound
	}
	current.Date = entry.Date
	current.Memo = entry.Memo
	current.Currency = entry.Currency
	current.Status = entry.Status
	current.ApprovedBy = entry.ApprovedBy
	current.PostedBy = entry.PostedBy
	current.PostedAt = entry.PostedAt
	current.UpdatedAt = entry.UpdatedAt
	t.st.entries[entry.ID] = current
	return nil
}

func (t *tx) ReplaceJournalLines(_ context.Context, entryID int64, lines []accounting.JournalLine) error {
	current, ok := t.st.entries[entryID]
	if !ok {
		return accounting.ErrJournalNotFound
	}
	current.Lines = t.numberLines(entryID, lines)
	t.st.entries[entryID] = current
	return nil
}

func (t *tx) DeleteJournalEntry(_ context.Context, unitID, entryID int64) error {
	entry, ok := t.st.entries[entryID]
	if !ok || entry.BusinessUnitID != unitID || entry.Status == accounting.JournalStatusPosted {
		return accounting.ErrJournalNotFound
	}
	delete(t.st.entries, entryID)
	delete(t.st.sources, sourceKey{entry.BusinessUnitID, entry.SourceModule, entry.SourceRef.String()})
	return nil
}

func (t *tx) SumPostedLines(_ context.Context, unitID int64, from, to time.Time) ([]accounting.TrialBalanceRow, error) {
	from, to = dateOnly(from), dateOnly(to)
	sums := make(map[string]*accounting.TrialBalanceRow)
	for _, entry := range t.st.entries {
		if entry.BusinessUnitID != unitID || entry.Status != accounting.JournalStatusPosted {
			continue
		}
		d := dateOnly(entry.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		for _, line := range entry.Lines {
			row, ok := sums[line.AccountCode]
			if !ok {
				row = &accounting.TrialBalanceRow{AccountCode: line.AccountCode, Debit: decimal.Zero, Credit: decimal.Zero}
				sums[line.AccountCode] = row
			}
			row.Debit = row.Debit.Add(line.Debit)
			row.Credit = row.Credit.Add(line.Credit)
		}
	}
	out := make([]accounting.TrialBalanceRow, 0, len(sums))
	for _, row := range sums {
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b accounting.TrialBalanceRow) int { return strings.Compare(a.AccountCode, b.AccountCode) })
	return out, nil
}

func (t *tx) numberLines(entryID int64, lines []accounting.JournalLine) []accounting.JournalLine {
	out := slices.Clone(lines)
	for i := range out {
		out[i].ID = t.id()
		out[i].EntryID = entryID
	}
	return out
}

func cloneEntry(entry accounting.JournalEntry) accounting.JournalEntry {
	entry.Lines = slices.Clone(entry.Lines)
	return entry
}

func (t *tx) InsertTaxCode(_ context.Context, code tax.Code) (tax.Code, error) {
	key := codeKey{code.BusinessUnitID, code.Code}
	if _, exists := t.st.taxCodes[key]; exists {
		return tax.Code{}, tax.ErrDuplicateTaxCode
	}
	code.ID = t.id()
	t.st.taxCodes[key] = code
	return code, nil
}

func (t *tx) GetTaxCode(_ context.Context, unitID int64, code string) (tax.Code, error) {
	found, ok := t.st.taxCodes[codeKey{unitID, code}]
	if !ok {
		return tax.Code{}, tax.ErrUnknownTaxCode
	}
	return found, nil
}

func (t *tx) ListTaxCodes(_ context.Context, unitID int64) ([]tax.Code, error) {
	var out []tax.Code
	for key, code := range t.st.taxCodes {
		if key.unitID == unitID {
			out = append(out, code)
		}
	}
	slices.SortFunc(out, func(a, b tax.Code) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}
