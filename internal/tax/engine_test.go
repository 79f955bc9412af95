package tax

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func vat12() Code {
	return Code{Code: "VAT12", Name: "VAT 12%", Kind: KindVAT, Rate: decimal.NewFromInt(12), Treatment: TreatmentStandard}
}

func TestComputeStandardVAT(t *testing.T) {
	line, err := Compute(decimal.NewFromInt(2250), vat12())
	require.NoError(t, err)
	assert.Equal(t, "270.00", line.TaxAmount.StringFixed(2))
	assert.True(t, line.TaxBase.Equal(decimal.NewFromInt(2250)))
	assert.Equal(t, "2520.00", line.TaxBase.Add(line.Signed()).StringFixed(2))
}

func TestComputeRoundsHalfAwayFromZero(t *testing.T) {
	// 0.125 * 12% = 0.015 -> 0.02
	line, err := Compute(decimal.RequireFromString("0.125"), vat12())
	require.NoError(t, err)
	assert.Equal(t, "0.02", line.TaxAmount.StringFixed(2))
}

func TestComputeZeroRatedAndExempt(t *testing.T) {
	for _, treatment := range []Treatment{TreatmentZeroRated, TreatmentExempt} {
		code := vat12()
		code.Treatment = treatment
		line, err := Compute(decimal.NewFromInt(1000), code)
		require.NoError(t, err)
		assert.True(t, line.TaxAmount.IsZero(), treatment)
	}
}

func TestComputeRejectsNegativeBase(t *testing.T) {
	_, err := Compute(decimal.NewFromInt(-1), vat12())
	require.ErrorIs(t, err, ErrNegativeBase)
}

func TestWithholdingReducesTotal(t *testing.T) {
	code := Code{Code: "WC2", Kind: KindWithholding, Rate: decimal.NewFromInt(2), Treatment: TreatmentStandard}
	line, err := Compute(decimal.NewFromInt(1000), code)
	require.NoError(t, err)
	assert.Equal(t, "-20.00", line.Signed().StringFixed(2))
}

func TestAccountFor(t *testing.T) {
	assert.Equal(t, KeyVATInput, AccountFor(vat12(), SideInput))
	assert.Equal(t, KeyVATPayable, AccountFor(vat12(), SideOutput))
	wht := Code{Kind: KindWithholding}
	assert.Equal(t, KeyWHTPayable, AccountFor(wht, SideInput))
	assert.Equal(t, KeyWHTReceivable, AccountFor(wht, SideOutput))
}

type fakeRepo struct {
	mu    sync.Mutex
	codes map[string]Code
	reads atomic.Int32
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) InsertTaxCode(_ context.Context, c Code) (Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.codes[c.Code]; ok {
		return Code{}, ErrDuplicateTaxCode
	}
	c.ID = int64(len(f.codes) + 1)
	f.codes[c.Code] = c
	return c, nil
}

func (f *fakeRepo) GetTaxCode(_ context.Context, unitID int64, code string) (Code, error) {
	f.reads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[code]
	if !ok || c.BusinessUnitID != unitID {
		return Code{}, ErrUnknownTaxCode
	}
	return c, nil
}

func (f *fakeRepo) ListTaxCodes(_ context.Context, unitID int64) ([]Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Code
	for _, c := range f.codes {
		if c.BusinessUnitID == unitID {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestEngineRegisterAndQuote(t *testing.T) {
	repo := &fakeRepo{codes: map[string]Code{}}
	engine := NewEngine(repo)
	ctx := context.Background()

	code := vat12()
	code.BusinessUnitID = 1
	code.Code = " vat12 "
	created, err := engine.Register(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "VAT12", created.Code)
	assert.Equal(t, KeyVATInput, created.InputAccountKey)

	_, err = engine.Register(ctx, code)
	require.ErrorIs(t, err, ErrDuplicateTaxCode)

	line, err := engine.Quote(ctx, 1, "vat12", decimal.NewFromInt(580))
	require.NoError(t, err)
	assert.Equal(t, "69.60", line.TaxAmount.StringFixed(2))

	_, err = engine.Resolve(ctx, 2, "VAT12")
	require.ErrorIs(t, err, ErrUnknownTaxCode)
}

func TestEngineRegisterValidates(t *testing.T) {
	engine := NewEngine(&fakeRepo{codes: map[string]Code{}})
	bad := vat12()
	bad.BusinessUnitID = 1
	bad.Rate = decimal.NewFromInt(101)
	_, err := engine.Register(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidTaxCode)
}

func TestEngineResolveConcurrent(t *testing.T) {
	repo := &fakeRepo{codes: map[string]Code{}}
	engine := NewEngine(repo)
	code := vat12()
	code.BusinessUnitID = 1
	_, err := engine.Register(context.Background(), code)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			found, err := engine.Resolve(context.Background(), 1, "VAT12")
			if err == nil && found.Code != "VAT12" {
				t.Errorf("unexpected code %s", found.Code)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, repo.reads.Load(), int32(20))
}
