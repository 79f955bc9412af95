package tax

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Kind separates value-added taxes from withholding.
type Kind string

const (
	KindVAT         Kind = "VAT"
	KindWithholding Kind = "WITHHOLDING"
)

// Treatment selects how the rate applies.
type Treatment string

const (
	TreatmentStandard  Treatment = "STANDARD"
	TreatmentZeroRated Treatment = "ZERO_RATED"
	TreatmentExempt    Treatment = "EXEMPT"
)

// Side tells whether the tax arises on a purchase (input) or a sale (output).
type Side string

const (
	SideInput  Side = "INPUT"
	SideOutput Side = "OUTPUT"
)

// Default account mapping keys.
const (
	KeyVATInput       = "vat.input"
	KeyVATPayable     = "vat.payable"
	KeyWHTPayable     = "wht.payable"
	KeyWHTReceivable  = "wht.receivable"
	ratePercentFactor = 100
)

// Code is a tax rate definition of a business unit. Rate is a percentage.
type Code struct {
	ID               int64
	BusinessUnitID   int64
	Code             string
	Name             string
	Kind             Kind
	Rate             decimal.Decimal
	Treatment        Treatment
	InputAccountKey  string
	OutputAccountKey string
	IsActive         bool
}

// Line is the computed tax of one base amount.
type Line struct {
	Code      string
	Kind      Kind
	TaxBase   decimal.Decimal
	TaxAmount decimal.Decimal
}

// Signed returns the amount as it affects a document total: withholding reduces it.
func (l Line) Signed() decimal.Decimal {
	if l.Kind == KindWithholding {
		return l.TaxAmount.Neg()
	}
	return l.TaxAmount
}

var (
	// ErrUnknownTaxCode indicates a code not registered for the unit.
	ErrUnknownTaxCode = shared.Configuration("tax: unknown tax code")
	// ErrInvalidTaxCode indicates malformed tax code fields.
	ErrInvalidTaxCode = shared.Validation("tax: code requires name, kind, treatment and a rate between 0 and 100")
	// ErrDuplicateTaxCode indicates the code already exists in the unit.
	ErrDuplicateTaxCode = shared.Invariant("tax: code already exists")
	// ErrNegativeBase indicates a negative taxable amount.
	ErrNegativeBase = shared.Validation("tax: base amount must not be negative")
)

func (c *Code) normalize() error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)
	if c.Kind == "" {
		c.Kind = KindVAT
	}
	if c.Treatment == "" {
		c.Treatment = TreatmentStandard
	}
	if c.BusinessUnitID <= 0 || c.Code == "" || c.Name == "" {
		return ErrInvalidTaxCode
	}
	if c.Kind != KindVAT && c.Kind != KindWithholding {
		return ErrInvalidTaxCode
	}
	switch c.Treatment {
	case TreatmentStandard, TreatmentZeroRated, TreatmentExempt:
	default:
		return ErrInvalidTaxCode
	}
	if c.Rate.IsNegative() || c.Rate.GreaterThan(decimal.NewFromInt(ratePercentFactor)) {
		return ErrInvalidTaxCode
	}
	if c.InputAccountKey == "" || c.OutputAccountKey == "" {
		in, out := defaultKeys(c.Kind)
		if c.InputAccountKey == "" {
			c.InputAccountKey = in
		}
		if c.OutputAccountKey == "" {
			c.OutputAccountKey = out
		}
	}
	c.IsActive = true
	return nil
}

func defaultKeys(kind Kind) (string, string) {
	if kind == KindWithholding {
		return KeyWHTPayable, KeyWHTReceivable
	}
	return KeyVATInput, KeyVATPayable
}
