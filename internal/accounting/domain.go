package accounting

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft    JournalStatus = "DRAFT"
	JournalStatusPending  JournalStatus = "PENDING"
	JournalStatusApproved JournalStatus = "APPROVED"
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusRejected JournalStatus = "REJECTED"
)

// DocumentTypeJournal is the numbering series used for journal entries.
const DocumentTypeJournal = "JOURNAL"

// SourceManual marks entries keyed in by users rather than produced by integrations.
const SourceManual = "MANUAL"

// Account models a chart of accounts node.
type Account struct {
	ID             int64
	BusinessUnitID int64
	Code           string
	Name           string
	Type           AccountType
	NormalBalance  NormalBalance
	// IsControl marks AR/AP style accounts whose postings must name a subsidiary ledger party.
	IsControl bool
	IsActive  bool
	CreatedAt time.Time
}

// AccountMapping links integration keys such as "vat.input" to ledger accounts.
type AccountMapping struct {
	BusinessUnitID int64
	Key            string
	AccountCode    string
}

// Period represents a fiscal period window. Dates are inclusive calendar days.
type Period struct {
	ID             int64
	BusinessUnitID int64
	FiscalYear     int
	PeriodNumber   int
	StartDate      time.Time
	EndDate        time.Time
	Status         PeriodStatus
	ClosedAt       *time.Time
	ClosedBy       *int64
}

// Covers reports whether date falls inside the period.
func (p Period) Covers(date time.Time) bool {
	d := dateOnly(date)
	return !d.Before(dateOnly(p.StartDate)) && !d.After(dateOnly(p.EndDate))
}

// JournalEntry captures posting metadata and owns its lines.
type JournalEntry struct {
	ID             int64
	BusinessUnitID int64
	Number         string
	Date           time.Time
	Memo           string
	Currency       string
	Status         JournalStatus
	SourceModule   string
	SourceRef      uuid.UUID
	ReversalOf     *int64
	CreatedBy      int64
	ApprovedBy     *int64
	PostedBy       *int64
	PostedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []JournalLine
}

// Totals sums debit and credit sides.
func (e JournalEntry) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID            int64
	EntryID       int64
	LineNo        int
	AccountCode   string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Description   string
	SubsidiaryRef string
}

// LineInput describes a journal line in a request.
type LineInput struct {
	AccountCode   string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Description   string
	SubsidiaryRef string
}

// DraftInput creates or replaces a manual draft.
type DraftInput struct {
	BusinessUnitID int64
	Date           time.Time
	Memo           string
	Currency       string
	Lines          []LineInput
	Actor          shared.Actor
}

// PostingInput groups fields required to create an already posted system entry.
type PostingInput struct {
	BusinessUnitID int64
	Date           time.Time
	Memo           string
	Currency       string
	SourceModule   string
	SourceRef      uuid.UUID
	ActorID        int64
	ReversalOf     *int64
	Lines          []LineInput
}

// TrialBalanceRow aggregates posted lines of one account.
type TrialBalanceRow struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// TrialBalance is the per-period summary of posted lines.
type TrialBalance struct {
	PeriodID    int64
	Rows        []TrialBalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced reports whether both sides agree.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = shared.Invariant("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = shared.Validation("accounting: journal requires at least two lines")
	// ErrInvalidLine indicates a line with a negative amount, both sides or no amount.
	ErrInvalidLine = shared.Validation("accounting: each line needs exactly one non-negative debit or credit")
	// ErrAmountPrecision indicates an amount finer than the currency minor unit.
	ErrAmountPrecision = shared.Validation("accounting: amounts must not exceed two decimal places")
	// ErrInvalidEntry indicates missing header fields.
	ErrInvalidEntry = shared.Validation("accounting: business unit and date required")
	// ErrNoPeriod indicates no period covers the date.
	ErrNoPeriod = shared.Configuration("accounting: no accounting period covers the date")
	// ErrPeriodClosed indicates posting or closing against a closed period.
	ErrPeriodClosed = shared.Invariant("accounting: period is closed")
	// ErrPeriodOverlap indicates a period colliding with an existing one.
	ErrPeriodOverlap = shared.Invariant("accounting: period overlaps an existing period")
	// ErrInvalidPeriod indicates malformed period fields.
	ErrInvalidPeriod = shared.Validation("accounting: period requires year, number and start <= end")
	// ErrUnknownAccount indicates an account code not in the chart.
	ErrUnknownAccount = shared.Configuration("accounting: unknown account code")
	// ErrInactiveAccount indicates a posting to a deactivated account.
	ErrInactiveAccount = shared.Invariant("accounting: account is inactive")
	// ErrDuplicateAccount indicates the code already exists in the unit.
	ErrDuplicateAccount = shared.Invariant("accounting: account code already exists")
	// ErrInvalidAccount indicates malformed account fields.
	ErrInvalidAccount = shared.Validation("accounting: account requires code, name, type and normal balance")
	// ErrControlAccountRef indicates a control account line without subsidiary reference.
	ErrControlAccountRef = shared.Invariant("accounting: control account postings require a subsidiary reference")
	// ErrMappingNotFound indicates an integration key without account mapping.
	ErrMappingNotFound = shared.Configuration("accounting: account mapping not found")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = shared.NotFound("accounting: journal entry not found")
	// ErrInvalidTransition indicates a lifecycle step not allowed from the current status.
	ErrInvalidTransition = shared.Invariant("accounting: journal status does not allow this operation")
	// ErrImmutable indicates a mutation attempt on a posted entry.
	ErrImmutable = shared.Invariant("accounting: posted journal entries are immutable")
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = shared.Invariant("accounting: journal entry already reversed")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = shared.Invariant("accounting: source already linked")
)

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
