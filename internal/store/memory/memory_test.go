package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

const unit int64 = 10

func TestFailedUnitOfWorkRestoresState(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.SaveSeries(ctx, numbering.Series{BusinessUnitID: unit, DocumentType: "JOURNAL", Prefix: "JV-", NextNumber: 1})
		return err
	}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		series, err := tx.GetSeriesForUpdate(ctx, unit, "JOURNAL")
		if err != nil {
			return err
		}
		series.NextNumber = 42
		if _, err := tx.SaveSeries(ctx, series); err != nil {
			return err
		}
		if _, err := tx.InsertAccount(ctx, accounting.Account{BusinessUnitID: unit, Code: "1000", Name: "Cash"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		series, err := tx.GetSeriesForUpdate(ctx, unit, "JOURNAL")
		require.NoError(t, err)
		assert.Equal(t, int64(1), series.NextNumber)
		_, err = tx.GetAccount(ctx, unit, "1000")
		assert.ErrorIs(t, err, accounting.ErrUnknownAccount)
		return nil
	}))
}

func TestDuplicateAccountCodeIsRejected(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		first, err := tx.InsertAccount(ctx, accounting.Account{BusinessUnitID: unit, Code: "1000", Name: "Cash"})
		require.NoError(t, err)
		assert.Positive(t, first.ID)
		_, err = tx.InsertAccount(ctx, accounting.Account{BusinessUnitID: unit, Code: "1000", Name: "Petty cash"})
		return err
	})
	assert.ErrorIs(t, err, accounting.ErrDuplicateAccount)

	// Another unit may reuse the code.
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertAccount(ctx, accounting.Account{BusinessUnitID: unit + 1, Code: "1000", Name: "Cash"})
		return err
	}))
}
