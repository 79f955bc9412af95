package accounting

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes ledger persistence inside a unit of work.
type TxRepository interface {
	numbering.TxRepository

	InsertAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, unitID int64, code string) (Account, error)
	ListAccounts(ctx context.Context, unitID int64) ([]Account, error)
	SaveAccountMapping(ctx context.Context, mapping AccountMapping) error
	GetAccountMapping(ctx context.Context, unitID int64, key string) (AccountMapping, error)

	InsertPeriod(ctx context.Context, period Period) (Period, error)
	ListPeriods(ctx context.Context, unitID int64) ([]Period, error)
	GetPeriodForUpdate(ctx context.Context, unitID, periodID int64) (Period, error)
	FindPeriodByDate(ctx context.Context, unitID int64, date time.Time) (Period, error)
	// LockPeriodForDate takes a shared lock so a concurrent close waits for in-flight postings.
	LockPeriodForDate(ctx context.Context, unitID int64, date time.Time) (Period, error)
	UpdatePeriod(ctx context.Context, period Period) error

	// InsertJournalEntry stores the header and lines. It returns ErrSourceAlreadyLinked
	// when (unit, source module, source ref) was used before.
	InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	GetJournalEntry(ctx context.Context, unitID, entryID int64) (JournalEntry, error)
	GetJournalEntryForUpdate(ctx context.Context, unitID, entryID int64) (JournalEntry, error)
	UpdateJournalHeader(ctx context.Context, entry JournalEntry) error
	ReplaceJournalLines(ctx context.Context, entryID int64, lines []JournalLine) error
	DeleteJournalEntry(ctx context.Context, unitID, entryID int64) error
	SumPostedLines(ctx context.Context, unitID int64, from, to time.Time) ([]TrialBalanceRow, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}
