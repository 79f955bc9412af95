package accounting_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	lt "github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

type fixture struct {
	env     *lt.Env
	journal *accounting.Service
	periods *accounting.PeriodService
	chart   *accounting.ChartService
}

func newFixture(t *testing.T) fixture {
	env := lt.New(t)
	repo := store.Accounting(env.Store)
	journal := accounting.NewService(repo, env.Audit, env.Policy)
	journal.WithNow(lt.Now)
	require.NoError(t, journal.WithDefaultCurrency("idr"))
	periods := accounting.NewPeriodService(repo, env.Audit, env.Policy)
	periods.WithNow(lt.Now)
	return fixture{env: env, journal: journal, periods: periods, chart: accounting.NewChartService(repo, env.Audit)}
}

func (f fixture) approved(t *testing.T, debit, credit string, lines ...accounting.LineInput) accounting.JournalEntry {
	t.Helper()
	ctx := context.Background()
	if len(lines) == 0 {
		lines = []accounting.LineInput{
			{AccountCode: lt.Cash, Debit: lt.D(debit)},
			{AccountCode: lt.Equity, Credit: lt.D(credit)},
		}
	}
	draft, err := f.journal.CreateDraft(ctx, accounting.DraftInput{
		BusinessUnitID: lt.Unit,
		Date:           lt.Clock,
		Memo:           "opening float",
		Lines:          lines,
		Actor:          lt.Admin(),
	})
	require.NoError(t, err)
	_, err = f.journal.Submit(ctx, lt.Unit, draft.ID, lt.Admin())
	require.NoError(t, err)
	entry, err := f.journal.Approve(ctx, lt.Unit, draft.ID, lt.Admin())
	require.NoError(t, err)
	return entry
}

func TestJournalLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.approved(t, "100", "100")
	assert.Equal(t, "JOURNAL-0001", entry.Number)
	assert.Equal(t, "IDR", entry.Currency)
	assert.Equal(t, accounting.JournalStatusApproved, entry.Status)
	require.NotNil(t, entry.ApprovedBy)

	posted, err := f.journal.Post(ctx, lt.Unit, entry.ID, lt.Admin())
	require.NoError(t, err)
	assert.Equal(t, accounting.JournalStatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	assert.True(t, lt.D("100").Equal(f.env.Balance(t, lt.Cash)))

	_, err = f.journal.UpdateDraft(ctx, entry.ID, accounting.DraftInput{
		BusinessUnitID: lt.Unit,
		Date:           lt.Clock,
		Lines: []accounting.LineInput{
			{AccountCode: lt.Cash, Debit: lt.D("1")},
			{AccountCode: lt.Equity, Credit: lt.D("1")},
		},
		Actor: lt.Admin(),
	})
	assert.ErrorIs(t, err, accounting.ErrImmutable)
	_, err = f.journal.Post(ctx, lt.Unit, entry.ID, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrImmutable)
	assert.ErrorIs(t, f.journal.Delete(ctx, lt.Unit, entry.ID, lt.Admin()), accounting.ErrImmutable)

	var actions []string
	for _, log := range f.env.Audit.Entries() {
		actions = append(actions, log.Action)
	}
	assert.Equal(t, []string{"journal.create", "journal.pending", "journal.approved", "journal.post"}, actions)
}

func TestPostRejectsUnbalancedEntryAndKeepsItApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.approved(t, "100", "99")
	_, err := f.journal.Post(ctx, lt.Unit, entry.ID, lt.Admin())
	require.ErrorIs(t, err, accounting.ErrUnbalanced)
	assert.ErrorIs(t, err, shared.ErrInvariant)

	current, err := f.journal.Get(ctx, lt.Unit, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, accounting.JournalStatusApproved, current.Status)
	assert.Nil(t, current.PostedAt)
	assert.True(t, f.env.Balance(t, lt.Cash).IsZero())
}

func TestPostRequiresApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.journal.CreateDraft(ctx, accounting.DraftInput{
		BusinessUnitID: lt.Unit,
		Date:           lt.Clock,
		Lines: []accounting.LineInput{
			{AccountCode: lt.Cash, Debit: lt.D("10")},
			{AccountCode: lt.Equity, Credit: lt.D("10")},
		},
		Actor: lt.Admin(),
	})
	require.NoError(t, err)
	_, err = f.journal.Post(ctx, lt.Unit, draft.ID, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrInvalidTransition)

	_, err = f.journal.Approve(ctx, lt.Unit, draft.ID, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrInvalidTransition)

	_, err = f.journal.Submit(ctx, lt.Unit, draft.ID, lt.Admin())
	require.NoError(t, err)
	rejected, err := f.journal.Reject(ctx, lt.Unit, draft.ID, lt.Admin())
	require.NoError(t, err)
	assert.Equal(t, accounting.JournalStatusRejected, rejected.Status)
	_, err = f.journal.Submit(ctx, lt.Unit, draft.ID, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrInvalidTransition)
}

func TestEditingApprovedEntryReturnsItToDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.approved(t, "50", "50")
	updated, err := f.journal.UpdateDraft(ctx, entry.ID, accounting.DraftInput{
		BusinessUnitID: lt.Unit,
		Date:           lt.Clock,
		Memo:           "corrected",
		Lines: []accounting.LineInput{
			{AccountCode: lt.Bank, Debit: lt.D("75")},
			{AccountCode: lt.Equity, Credit: lt.D("75")},
		},
		Actor: lt.Admin(),
	})
	require.NoError(t, err)
	assert.Equal(t, accounting.JournalStatusDraft, updated.Status)
	assert.Nil(t, updated.ApprovedBy)

	stored, err := f.journal.Get(ctx, lt.Unit, entry.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, lt.Bank, stored.Lines[0].AccountCode)
	assert.Equal(t, "corrected", stored.Memo)
}

func TestLineValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]struct {
		lines []accounting.LineInput
		want  error
	}{
		"single line": {
			lines: []accounting.LineInput{{AccountCode: lt.Cash, Debit: lt.D("1")}},
			want:  accounting.ErrTooFewLines,
		},
		"both sides": {
			lines: []accounting.LineInput{
				{AccountCode: lt.Cash, Debit: lt.D("1"), Credit: lt.D("1")},
				{AccountCode: lt.Equity, Credit: lt.D("1")},
			},
			want: accounting.ErrInvalidLine,
		},
		"negative": {
			lines: []accounting.LineInput{
				{AccountCode: lt.Cash, Debit: lt.D("-1")},
				{AccountCode: lt.Equity, Credit: lt.D("1")},
			},
			want: accounting.ErrInvalidLine,
		},
		"three decimals": {
			lines: []accounting.LineInput{
				{AccountCode: lt.Cash, Debit: lt.D("1.005")},
				{AccountCode: lt.Equity, Credit: lt.D("1.005")},
			},
			want: accounting.ErrAmountPrecision,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.journal.CreateDraft(ctx, accounting.DraftInput{
				BusinessUnitID: lt.Unit, Date: lt.Clock, Lines: tc.lines, Actor: lt.Admin(),
			})
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestReverseSwapsSidesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.approved(t, "250.50", "250.50")
	_, err := f.journal.Post(ctx, lt.Unit, entry.ID, lt.Admin())
	require.NoError(t, err)

	reversal, err := f.journal.Reverse(ctx, accounting.ReverseInput{BusinessUnitID: lt.Unit, EntryID: entry.ID, Actor: lt.Admin()})
	require.NoError(t, err)
	assert.Equal(t, accounting.JournalStatusPosted, reversal.Status)
	assert.Equal(t, accounting.SourceReversal, reversal.SourceModule)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, entry.ID, *reversal.ReversalOf)
	require.Len(t, reversal.Lines, 2)
	assert.Equal(t, lt.Cash, reversal.Lines[0].AccountCode)
	assert.True(t, reversal.Lines[0].Credit.Equal(lt.D("250.50")))
	assert.True(t, reversal.Lines[0].Debit.IsZero())
	assert.True(t, f.env.Balance(t, lt.Cash).IsZero())

	_, err = f.journal.Reverse(ctx, accounting.ReverseInput{BusinessUnitID: lt.Unit, EntryID: entry.ID, Actor: lt.Admin()})
	assert.ErrorIs(t, err, accounting.ErrAlreadyReversed)
	_, err = f.journal.Reverse(ctx, accounting.ReverseInput{BusinessUnitID: lt.Unit, EntryID: reversal.ID, Actor: lt.Admin()})
	assert.ErrorIs(t, err, accounting.ErrInvalidTransition)

	original, err := f.journal.Get(ctx, lt.Unit, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, accounting.JournalStatusPosted, original.Status)
}

func TestClosedPeriodRejectsPosting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.approved(t, "10", "10")
	closed, err := f.periods.Close(ctx, lt.Unit, f.env.January.ID, lt.Admin())
	require.NoError(t, err)
	assert.Equal(t, accounting.PeriodStatusClosed, closed.Status)

	_, err = f.journal.Post(ctx, lt.Unit, entry.ID, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrPeriodClosed)

	open, err := f.periods.IsOpen(ctx, lt.Unit, lt.Clock)
	require.NoError(t, err)
	assert.False(t, open)
	open, err = f.periods.IsOpen(ctx, lt.Unit, time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, open)
	open, err = f.periods.IsOpen(ctx, lt.Unit, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, open)

	_, err = f.periods.Close(ctx, lt.Unit, f.env.January.ID, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrPeriodClosed)
}

func TestPeriodsMustNotOverlap(t *testing.T) {
	f := newFixture(t)
	_, err := f.periods.Create(context.Background(), accounting.Period{
		BusinessUnitID: lt.Unit,
		FiscalYear:     2025,
		PeriodNumber:   13,
		StartDate:      time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, accounting.ErrPeriodOverlap)
}

func TestControlAccountNeedsSubsidiary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.approved(t, "", "", accounting.LineInput{AccountCode: lt.Receivable, Debit: lt.D("40")},
		accounting.LineInput{AccountCode: lt.SalesRevenue, Credit: lt.D("40")})
	_, err := f.journal.Post(ctx, lt.Unit, entry.ID, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrControlAccountRef)

	withRef := f.approved(t, "", "", accounting.LineInput{AccountCode: lt.Receivable, Debit: lt.D("40"), SubsidiaryRef: "customer:7"},
		accounting.LineInput{AccountCode: lt.SalesRevenue, Credit: lt.D("40")})
	_, err = f.journal.Post(ctx, lt.Unit, withRef.ID, lt.Admin())
	assert.NoError(t, err)
}

func TestUnknownAccountIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	entry := f.approved(t, "", "", accounting.LineInput{AccountCode: "9999", Debit: lt.D("5")},
		accounting.LineInput{AccountCode: lt.Equity, Credit: lt.D("5")})
	_, err := f.journal.Post(context.Background(), lt.Unit, entry.ID, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrUnknownAccount)
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestTrialBalanceOfPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, amount := range []string{"100", "35.25"} {
		entry := f.approved(t, amount, amount)
		_, err := f.journal.Post(ctx, lt.Unit, entry.ID, lt.Admin())
		require.NoError(t, err)
	}
	f.approved(t, "999", "999")

	tb, err := f.journal.TrialBalance(ctx, lt.Unit, f.env.January.ID)
	require.NoError(t, err)
	assert.True(t, tb.Balanced())
	assert.True(t, tb.TotalDebit.Equal(lt.D("135.25")))
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, lt.Cash, tb.Rows[0].AccountCode)

	feb, err := f.journal.TrialBalance(ctx, lt.Unit, f.env.February.ID)
	require.NoError(t, err)
	assert.Empty(t, feb.Rows)
	assert.True(t, feb.TotalDebit.Equal(decimal.Zero))
}

func TestPolicyDeniesCashierJournals(t *testing.T) {
	f := newFixture(t)
	_, err := f.journal.CreateDraft(context.Background(), accounting.DraftInput{
		BusinessUnitID: lt.Unit,
		Date:           lt.Clock,
		Lines: []accounting.LineInput{
			{AccountCode: lt.Cash, Debit: lt.D("1")},
			{AccountCode: lt.Equity, Credit: lt.D("1")},
		},
		Actor: lt.Actor(5, rbac.RoleCashier),
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestChartRejectsDuplicateCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.chart.Create(context.Background(), accounting.Account{
		BusinessUnitID: lt.Unit, Code: lt.Cash, Name: "Petty cash", Type: accounting.AccountTypeAsset,
	}, lt.Admin())
	assert.ErrorIs(t, err, accounting.ErrDuplicateAccount)

	err = f.chart.SetMapping(context.Background(), accounting.AccountMapping{BusinessUnitID: lt.Unit, Key: "cash.qris", AccountCode: "8888"})
	assert.ErrorIs(t, err, accounting.ErrUnknownAccount)
}
