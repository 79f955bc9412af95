package integration

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMergeNetsLegsPerKeyAndSubsidiary(t *testing.T) {
	legs := merge([]Leg{
		{Key: "Cash.Cash", Debit: dec("100")},
		{Key: KeyARControl, Credit: dec("40"), SubsidiaryRef: "customer:1"},
		{Key: "cash.cash", Credit: dec("30")},
		{Key: KeyARControl, Credit: dec("30"), SubsidiaryRef: "customer:2"},
		{Key: KeyPurchaseExpense, Debit: decimal.Zero},
	})
	require.Len(t, legs, 3)
	assert.Equal(t, "cash.cash", legs[0].Key)
	assert.True(t, legs[0].Debit.Equal(dec("70")))
	assert.Equal(t, "customer:1", legs[1].SubsidiaryRef)
	assert.True(t, legs[1].Credit.Equal(dec("40")))
	assert.Equal(t, "customer:2", legs[2].SubsidiaryRef)
}

func TestMergeFlipsNegativeNet(t *testing.T) {
	legs := merge([]Leg{
		{Key: KeySalesRevenue, Debit: dec("10")},
		{Key: KeySalesRevenue, Credit: dec("25.50")},
	})
	require.Len(t, legs, 1)
	assert.True(t, legs[0].Debit.IsZero())
	assert.True(t, legs[0].Credit.Equal(dec("15.50")))
}

func TestPurchaseInvoiceBalances(t *testing.T) {
	legs := PurchaseInvoice(7, dec("2000"), dec("250"), dec("2475"), []TaxLeg{
		{Key: "vat.input", Amount: dec("270")},
		{Key: "wht.payable", Amount: dec("-45")},
	})
	debit, credit := decimal.Zero, decimal.Zero
	for _, leg := range legs {
		debit = debit.Add(leg.Debit)
		credit = credit.Add(leg.Credit)
	}
	assert.True(t, debit.Equal(credit), "debit %s credit %s", debit, credit)
	last := legs[len(legs)-1]
	assert.Equal(t, KeyAPControl, last.Key)
	assert.Equal(t, "supplier:7", last.SubsidiaryRef)
}

func TestSaleSettlementSkipsZeroDiscount(t *testing.T) {
	legs := SaleSettlement("QRIS", dec("580"), decimal.Zero, dec("649.60"), TaxLeg{Key: "vat.payable", Amount: dec("69.60")})
	require.Len(t, legs, 3)
	assert.Equal(t, "cash.qris", legs[0].Key)
	assert.Equal(t, KeySalesRevenue, legs[1].Key)
	assert.Equal(t, "vat.payable", legs[2].Key)
}
