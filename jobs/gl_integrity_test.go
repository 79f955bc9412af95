package jobs

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	lt "github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

func newChecker(t *testing.T) (*lt.Env, *IntegrityChecker, *prometheus.Registry) {
	env := lt.New(t)
	repo := store.Accounting(env.Store)
	registry := prometheus.NewRegistry()
	return env, &IntegrityChecker{
		Ledger:  accounting.NewService(repo, env.Audit, env.Policy),
		Periods: accounting.NewPeriodService(repo, env.Audit, env.Policy),
		Stock:   inventory.NewService(store.Inventory(env.Store), env.Audit, nil),
		Units:   []int64{lt.Unit},
		Metrics: jobmetrics.NewMetrics(registry),
		Now:     lt.Now,
	}, registry
}

func TestIntegrityCleanLedger(t *testing.T) {
	env, checker, registry := newChecker(t)
	item := env.Item(t, "BEANS", "kg")
	_, err := inventory.NewService(store.Inventory(env.Store), env.Audit, nil).Record(context.Background(), inventory.RecordInput{
		BusinessUnitID: lt.Unit, ItemID: item, LocationID: 1, Type: inventory.MovementReceiving, Quantity: lt.D("3"), ActorID: 1,
	})
	require.NoError(t, err)

	reports, err := checker.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Clean())

	expected := fmt.Sprintf(`
# HELP odyssey_ledger_integrity_last_clean_timestamp_seconds Unix time of the last integrity run that found no drift in a unit.
# TYPE odyssey_ledger_integrity_last_clean_timestamp_seconds gauge
odyssey_ledger_integrity_last_clean_timestamp_seconds{unit="%d"} %d
`, lt.Unit, lt.Clock.Unix())
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "odyssey_ledger_integrity_last_clean_timestamp_seconds"))
}

func TestIntegrityReportsDrift(t *testing.T) {
	env, checker, registry := newChecker(t)
	item := env.Item(t, "MILK", "l")
	err := env.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		stock, err := tx.EnsureStock(ctx, lt.Unit, item, 1)
		if err != nil {
			return err
		}
		stock.QuantityOnHand = lt.D("2")
		if err := tx.SaveStock(ctx, stock); err != nil {
			return err
		}
		_, err = tx.InsertJournalEntry(ctx, accounting.JournalEntry{
			BusinessUnitID: lt.Unit,
			Number:         "JOURNAL-9999",
			Date:           lt.Clock,
			Status:         accounting.JournalStatusPosted,
			SourceModule:   accounting.SourceManual,
			SourceRef:      uuid.New(),
			Lines: []accounting.JournalLine{
				{AccountCode: lt.Cash, Debit: lt.D("10")},
				{AccountCode: lt.Equity, Credit: lt.D("9")},
			},
		})
		return err
	})
	require.NoError(t, err)

	reports, err := checker.Run(context.Background(), []int64{lt.Unit})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	report := reports[0]
	require.Len(t, report.Unbalanced, 1)
	assert.Equal(t, env.January.ID, report.Unbalanced[0].PeriodID)
	require.Len(t, report.Drifts, 1)
	assert.True(t, report.Drifts[0].OnHand.Equal(lt.D("2")))
	assert.True(t, report.Drifts[0].Replayed.IsZero())

	count, err := testutil.GatherAndCount(registry, "odyssey_ledger_integrity_drift_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(registry, "odyssey_ledger_integrity_last_clean_timestamp_seconds")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHandleTaskRejectsBadPayload(t *testing.T) {
	_, checker, _ := newChecker(t)
	err := checker.HandleTask(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewIntegrityTask(IntegrityPayload{Units: []int64{lt.Unit}})
	require.NoError(t, err)
	assert.NoError(t, checker.HandleTask(context.Background(), task))
}
