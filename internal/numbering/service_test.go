package numbering_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

const unit int64 = 4

func TestFormatPadsWithDefaultWidth(t *testing.T) {
	assert.Equal(t, "INV-000042", numbering.Series{Prefix: "INV-"}.Format(42))
	assert.Equal(t, "PO1234567", numbering.Series{Prefix: "PO", Padding: 3}.Format(1234567))
}

func TestIssueIsGapFreeUnderConcurrency(t *testing.T) {
	svc := numbering.NewService(store.Numbering(memory.New()))
	ctx := context.Background()
	_, err := svc.Configure(ctx, numbering.Series{BusinessUnitID: unit, DocumentType: "pos_order", Prefix: "T1-", Padding: 4})
	require.NoError(t, err)

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool, n)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := svc.Issue(ctx, unit, "POS_ORDER")
			assert.NoError(t, err)
			mu.Lock()
			seen[number] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
	assert.True(t, seen["T1-0001"])
	assert.True(t, seen["T1-0050"])

	next, err := svc.Issue(ctx, unit, "POS_ORDER")
	require.NoError(t, err)
	assert.Equal(t, "T1-0051", next)
}

func TestIssueRollsBackWithCaller(t *testing.T) {
	st := memory.New()
	port := store.Numbering(st)
	svc := numbering.NewService(port)
	ctx := context.Background()
	_, err := svc.Configure(ctx, numbering.Series{BusinessUnitID: unit, DocumentType: "JOURNAL", Prefix: "JV", Padding: 3})
	require.NoError(t, err)

	boom := assert.AnError
	err = port.WithTx(ctx, func(ctx context.Context, tx numbering.TxRepository) error {
		number, err := numbering.Issue(ctx, tx, unit, "journal")
		require.NoError(t, err)
		assert.Equal(t, "JV001", number)
		return boom
	})
	require.ErrorIs(t, err, boom)

	number, err := svc.Issue(ctx, unit, "JOURNAL")
	require.NoError(t, err)
	assert.Equal(t, "JV001", number)
}

func TestConfigureRejectsRewindAndUnknownSeries(t *testing.T) {
	svc := numbering.NewService(store.Numbering(memory.New()))
	ctx := context.Background()

	_, err := svc.Issue(ctx, unit, "AR_INVOICE")
	assert.ErrorIs(t, err, numbering.ErrNotConfigured)

	_, err = svc.Configure(ctx, numbering.Series{BusinessUnitID: unit, DocumentType: "AR_INVOICE", NextNumber: 10})
	require.NoError(t, err)
	_, err = svc.Configure(ctx, numbering.Series{BusinessUnitID: unit, DocumentType: "AR_INVOICE", NextNumber: 9})
	assert.ErrorIs(t, err, numbering.ErrSeriesRewind)

	_, err = svc.Configure(ctx, numbering.Series{BusinessUnitID: unit, DocumentType: "AR_INVOICE", Prefix: "AR/", NextNumber: 10})
	require.NoError(t, err)
	list, err := svc.List(ctx, unit)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "AR/", list[0].Prefix)

	_, err = svc.Configure(ctx, numbering.Series{DocumentType: "AR_INVOICE"})
	assert.ErrorIs(t, err, numbering.ErrInvalidSeries)
}
