package tax

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes tax code persistence inside a unit of work.
type TxRepository interface {
	InsertTaxCode(ctx context.Context, code Code) (Code, error)
	GetTaxCode(ctx context.Context, unitID int64, code string) (Code, error)
	ListTaxCodes(ctx context.Context, unitID int64) ([]Code, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Compute applies code to base. The amount is rounded half away from zero to
// the minor unit; zero-rated and exempt codes always yield zero.
func Compute(base decimal.Decimal, code Code) (Line, error) {
	if base.IsNegative() {
		return Line{}, ErrNegativeBase
	}
	line := Line{Code: code.Code, Kind: code.Kind, TaxBase: base, TaxAmount: decimal.Zero}
	if code.Treatment != TreatmentStandard {
		return line, nil
	}
	line.TaxAmount = shared.RoundMoney(base.Mul(code.Rate).Div(decimal.NewFromInt(ratePercentFactor)))
	return line, nil
}

// AccountFor returns the account mapping key a tax line posts to.
func AccountFor(code Code, side Side) string {
	in, out := code.InputAccountKey, code.OutputAccountKey
	if in == "" || out == "" {
		in, out = defaultKeys(code.Kind)
	}
	if side == SideInput {
		return in
	}
	return out
}

// Lookup resolves an active code within the caller's unit of work.
func Lookup(ctx context.Context, tx TxRepository, unitID int64, code string) (Code, error) {
	found, err := tx.GetTaxCode(ctx, unitID, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return Code{}, fmt.Errorf("%w: %s", err, code)
	}
	if !found.IsActive {
		return Code{}, fmt.Errorf("%w: %s inactive", ErrUnknownTaxCode, code)
	}
	return found, nil
}

// Engine is the tax code registry of every business unit.
type Engine struct {
	repo  RepositoryPort
	group singleflight.Group
}

// NewEngine constructs the registry.
func NewEngine(repo RepositoryPort) *Engine {
	return &Engine{repo: repo}
}

// Register stores a new tax code.
func (e *Engine) Register(ctx context.Context, code Code) (Code, error) {
	if err := code.normalize(); err != nil {
		return Code{}, err
	}
	var created Code
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertTaxCode(ctx, code)
		return err
	})
	return created, err
}

// Resolve returns the active code. Concurrent lookups of the same code share one read.
func (e *Engine) Resolve(ctx context.Context, unitID int64, code string) (Code, error) {
	key := fmt.Sprintf("%d:%s", unitID, strings.ToUpper(code))
	v, err, _ := e.group.Do(key, func() (any, error) {
		var found Code
		err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			found, err = Lookup(ctx, tx, unitID, code)
			return err
		})
		return found, err
	})
	if err != nil {
		return Code{}, err
	}
	return v.(Code), nil
}

// List returns the unit's codes ordered by code.
func (e *Engine) List(ctx context.Context, unitID int64) ([]Code, error) {
	var out []Code
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListTaxCodes(ctx, unitID)
		return err
	})
	return out, err
}

// Quote computes the tax of base under the unit's code.
func (e *Engine) Quote(ctx context.Context, unitID int64, code string, base decimal.Decimal) (Line, error) {
	found, err := e.Resolve(ctx, unitID, code)
	if err != nil {
		return Line{}, err
	}
	return Compute(base, found)
}
