package nfe

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

var hundred = decimal.NewFromInt(100)

// CalculateTotals calcula los valores por línea (vProd, bases y tributos) y los
// totales del documento. Monedas a 2 decimales, como exige el leiaute.
func CalculateTotals(doc *entity.FiscalDocument, crt string) {
	var t entity.DocumentTotals
	simplified := pkgnfe.IsSimplifiedRegime(crt)

	for i := range doc.Items {
		it := &doc.Items[i]
		it.Total = it.Quantity.Mul(it.UnitPrice).Round(2)
		it.Discount = it.Discount.Round(2)
		net := it.Total.Sub(it.Discount)

		it.ICMSBase, it.ICMSValue = decimal.Zero, decimal.Zero
		if !simplified && it.TaxSituation == pkgnfe.CSTTaxed && it.ICMSRate.IsPositive() {
			it.ICMSBase = net
			it.ICMSValue = net.Mul(it.ICMSRate).Div(hundred).Round(2)
		}
		it.PISBase, it.PISValue = decimal.Zero, decimal.Zero
		if it.PISRate.IsPositive() {
			it.PISBase = net
			it.PISValue = net.Mul(it.PISRate).Div(hundred).Round(2)
		}
		it.COFINSBase, it.COFINSValue = decimal.Zero, decimal.Zero
		if it.COFINSRate.IsPositive() {
			it.COFINSBase = net
			it.COFINSValue = net.Mul(it.COFINSRate).Div(hundred).Round(2)
		}

		t.Products = t.Products.Add(it.Total)
		t.Discount = t.Discount.Add(it.Discount)
		t.ICMSBase = t.ICMSBase.Add(it.ICMSBase)
		t.ICMS = t.ICMS.Add(it.ICMSValue)
		t.PIS = t.PIS.Add(it.PISValue)
		t.COFINS = t.COFINS.Add(it.COFINSValue)
	}
	t.Total = t.Products.Sub(t.Discount)

	for _, p := range doc.Payments {
		t.Paid = t.Paid.Add(p.Amount.Round(2))
	}
	if t.Paid.GreaterThan(t.Total) {
		t.Change = t.Paid.Sub(t.Total)
	}
	doc.Totals = t
}

// DefaultTaxSituation CST/CSOSN por defecto cuando la venta no lo informa.
func DefaultTaxSituation(crt string, icmsRate decimal.Decimal) string {
	if pkgnfe.IsSimplifiedRegime(crt) {
		return pkgnfe.CSOSNWithoutCredit
	}
	if icmsRate.IsPositive() {
		return pkgnfe.CSTTaxed
	}
	return pkgnfe.CSTNotTaxed
}
