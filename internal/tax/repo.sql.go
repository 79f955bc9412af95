package tax

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// CodeStore implements TxRepository on a pgx transaction.
type CodeStore struct {
	tx pgx.Tx
}

// NewCodeStore binds the store to tx.
func NewCodeStore(tx pgx.Tx) *CodeStore {
	return &CodeStore{tx: tx}
}

const codeColumns = `id, business_unit_id, code, name, kind, rate, treatment, input_account_key, output_account_key, is_active`

func (s *CodeStore) InsertTaxCode(ctx context.Context, c Code) (Code, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO tax_codes (business_unit_id, code, name, kind, rate, treatment, input_account_key, output_account_key, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		c.BusinessUnitID, c.Code, c.Name, c.Kind, c.Rate, c.Treatment, c.InputAccountKey, c.OutputAccountKey, c.IsActive).Scan(&c.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Code{}, ErrDuplicateTaxCode
		}
		return Code{}, err
	}
	return c, nil
}

func (s *CodeStore) GetTaxCode(ctx context.Context, unitID int64, code string) (Code, error) {
	c, err := scanCode(s.tx.QueryRow(ctx, `SELECT `+codeColumns+` FROM tax_codes WHERE business_unit_id=$1 AND code=$2`, unitID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Code{}, ErrUnknownTaxCode
	}
	return c, err
}

func (s *CodeStore) ListTaxCodes(ctx context.Context, unitID int64) ([]Code, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+codeColumns+` FROM tax_codes WHERE business_unit_id=$1 ORDER BY code`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCode(row pgx.Row) (Code, error) {
	var c Code
	err := row.Scan(&c.ID, &c.BusinessUnitID, &c.Code, &c.Name, &c.Kind, &c.Rate, &c.Treatment, &c.InputAccountKey, &c.OutputAccountKey, &c.IsActive)
	return c, err
}
