package numbering

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// SeriesStore implements TxRepository on a pgx transaction.
type SeriesStore struct {
	tx pgx.Tx
}

// NewSeriesStore binds the store to tx.
func NewSeriesStore(tx pgx.Tx) *SeriesStore {
	return &SeriesStore{tx: tx}
}

const seriesColumns = `id, business_unit_id, document_type, prefix, padding, next_number, updated_at`

func (s *SeriesStore) GetSeriesForUpdate(ctx context.Context, unitID int64, documentType string) (Series, error) {
	var out Series
	err := s.tx.QueryRow(ctx, `SELECT `+seriesColumns+` FROM numbering_series
WHERE business_unit_id=$1 AND document_type=$2 FOR UPDATE`, unitID, documentType).
		Scan(&out.ID, &out.BusinessUnitID, &out.DocumentType, &out.Prefix, &out.Padding, &out.NextNumber, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Series{}, ErrNotConfigured
		}
		return Series{}, err
	}
	return out, nil
}

func (s *SeriesStore) SaveSeries(ctx context.Context, series Series) (Series, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO numbering_series (business_unit_id, document_type, prefix, padding, next_number)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (business_unit_id, document_type) DO UPDATE
SET prefix=EXCLUDED.prefix, padding=EXCLUDED.padding, next_number=EXCLUDED.next_number, updated_at=NOW()
RETURNING id, updated_at`, series.BusinessUnitID, series.DocumentType, series.Prefix, series.Padding, series.NextNumber).
		Scan(&series.ID, &series.UpdatedAt)
	if err != nil {
		return Series{}, err
	}
	return series, nil
}

func (s *SeriesStore) ListSeries(ctx context.Context, unitID int64) ([]Series, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+seriesColumns+` FROM numbering_series WHERE business_unit_id=$1 ORDER BY document_type`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Series
	for rows.Next() {
		var item Series
		if err := rows.Scan(&item.ID, &item.BusinessUnitID, &item.DocumentType, &item.Prefix, &item.Padding, &item.NextNumber, &item.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
