package integration

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Mapping keys the templates post against. Each unit maps them to its own accounts.
const (
	KeyAPControl         = "ap.control"
	KeyARControl         = "ar.control"
	KeySalesRevenue      = "sales.revenue"
	KeySalesDiscount     = "sales.discount"
	KeyInventoryClearing = "inventory.clearing"
	KeyPurchaseExpense   = "purchase.expense"
)

// Source modules stamped on integration entries.
const (
	SourceAPInvoice = "AP_INVOICE"
	SourceARInvoice = "AR_INVOICE"
	SourcePayment   = "PAYMENT_APPLICATION"
	SourcePOS       = "POS_ORDER"
)

// CashKey is the mapping key of the cash or bank account for a payment method.
func CashKey(method string) string {
	return "cash." + strings.ToLower(strings.TrimSpace(method))
}

// SupplierRef is the AP subsidiary reference of a supplier.
func SupplierRef(id int64) string { return fmt.Sprintf("supplier:%d", id) }

// CustomerRef is the AR subsidiary reference of a customer.
func CustomerRef(id int64) string { return fmt.Sprintf("customer:%d", id) }

// TaxLeg is a computed tax posted against Key. Amount is signed: withholding is negative.
type TaxLeg struct {
	Key    string
	Amount decimal.Decimal
}

// PurchaseInvoice debits stocked goods to the clearing account, services to
// expense and input taxes, then credits the supplier's payable. Withholding
// lowers the payable and is credited to its own key.
func PurchaseInvoice(supplierID int64, goods, services, total decimal.Decimal, taxes []TaxLeg) []Leg {
	legs := []Leg{
		{Key: KeyInventoryClearing, Debit: goods},
		{Key: KeyPurchaseExpense, Debit: services},
	}
	for _, t := range taxes {
		if t.Amount.IsNegative() {
			legs = append(legs, Leg{Key: t.Key, Credit: t.Amount.Neg()})
			continue
		}
		legs = append(legs, Leg{Key: t.Key, Debit: t.Amount})
	}
	return append(legs, Leg{Key: KeyAPControl, Credit: total, SubsidiaryRef: SupplierRef(supplierID)})
}

// SalesInvoice debits the customer's receivable and credits revenue and output taxes.
func SalesInvoice(customerID int64, net, total decimal.Decimal, taxes []TaxLeg) []Leg {
	legs := []Leg{{Key: KeyARControl, Debit: total, SubsidiaryRef: CustomerRef(customerID)}}
	legs = append(legs, Leg{Key: KeySalesRevenue, Credit: net})
	for _, t := range taxes {
		if t.Amount.IsNegative() {
			legs = append(legs, Leg{Key: t.Key, Debit: t.Amount.Neg()})
			continue
		}
		legs = append(legs, Leg{Key: t.Key, Credit: t.Amount})
	}
	return legs
}

// Payment moves cash against the party's control account.
func Payment(incoming bool, method string, partyID int64, amount decimal.Decimal) []Leg {
	if incoming {
		return []Leg{
			{Key: CashKey(method), Debit: amount},
			{Key: KeyARControl, Credit: amount, SubsidiaryRef: CustomerRef(partyID)},
		}
	}
	return []Leg{
		{Key: KeyAPControl, Debit: amount, SubsidiaryRef: SupplierRef(partyID)},
		{Key: CashKey(method), Credit: amount},
	}
}

// SaleSettlement books a settled POS order: cash for the total, the discount,
// revenue at the undiscounted subtotal and the output tax.
func SaleSettlement(method string, subtotal, discount, total decimal.Decimal, tax TaxLeg) []Leg {
	legs := []Leg{{Key: CashKey(method), Debit: total}}
	if discount.IsPositive() {
		legs = append(legs, Leg{Key: KeySalesDiscount, Debit: discount})
	}
	legs = append(legs, Leg{Key: KeySalesRevenue, Credit: subtotal})
	if tax.Amount.IsPositive() {
		legs = append(legs, Leg{Key: tax.Key, Credit: tax.Amount})
	}
	return legs
}
