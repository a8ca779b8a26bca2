package nfe

import (
	"errors"
	"strings"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// MaxItems límite de ítems (det) por documento.
const MaxItems = 990

// ValidateIssuer verifica la configuración mínima del emisor para poder emitir.
func ValidateIssuer(issuer *entity.Issuer) error {
	if issuer == nil {
		return domain.NewValidationError("issuer", "emisor no configurado")
	}
	var errs []error
	if err := pkgnfe.ValidateCNPJ(issuer.CNPJ); err != nil {
		errs = append(errs, domain.NewValidationError("issuer.cnpj", "%v", err))
	}
	if strings.TrimSpace(issuer.LegalName) == "" {
		errs = append(errs, domain.NewValidationError("issuer.legal_name", "razón social requerida"))
	}
	if strings.TrimSpace(issuer.StateRegistration) == "" {
		errs = append(errs, domain.NewValidationError("issuer.state_registration", "inscripción estatal requerida"))
	}
	switch issuer.TaxRegime {
	case pkgnfe.RegimeSimples, pkgnfe.RegimeSimplesExcess, pkgnfe.RegimeNormal:
	default:
		errs = append(errs, domain.NewValidationError("issuer.tax_regime", "CRT %q no soportado", issuer.TaxRegime))
	}
	if _, ok := pkgnfe.UFCode(issuer.Address.UF); !ok {
		errs = append(errs, domain.NewValidationError("issuer.address.uf", "UF %q desconocida", issuer.Address.UF))
	}
	if len(pkgnfe.OnlyDigits(issuer.Address.CityCode)) != 7 {
		errs = append(errs, domain.NewValidationError("issuer.address.city_code", "código IBGE del municipio debe tener 7 dígitos"))
	}
	return errors.Join(errs...)
}

// ValidateDocument valida el documento ya totalizado. Devuelve los errores
// agrupados con errors.Join; todos responden a errors.Is(err, domain.ErrValidation).
func ValidateDocument(doc *entity.FiscalDocument, issuer *entity.Issuer) error {
	if doc == nil {
		return domain.NewValidationError("document", "documento nulo")
	}
	if issuer == nil {
		return ValidateIssuer(nil)
	}
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, domain.NewValidationError(field, format, args...))
	}

	if doc.Model != pkgnfe.ModelNFe && doc.Model != pkgnfe.ModelNFCe {
		add("model", "modelo %q no soportado", doc.Model)
	}
	if doc.Series < 0 || doc.Series > 999 {
		add("series", "serie %d fuera de rango", doc.Series)
	}

	if len(doc.Items) == 0 {
		add("items", "el documento debe tener al menos un ítem")
	}
	if len(doc.Items) > MaxItems {
		add("items", "máximo %d ítems por documento", MaxItems)
	}
	simplified := pkgnfe.IsSimplifiedRegime(issuer.TaxRegime)
	for i, it := range doc.Items {
		field := func(name string) string { return "items[" + itoa(i) + "]." + name }
		if strings.TrimSpace(it.Code) == "" {
			add(field("code"), "código requerido")
		}
		if strings.TrimSpace(it.Description) == "" {
			add(field("description"), "descripción requerida")
		}
		if ncm := pkgnfe.OnlyDigits(it.NCM); len(ncm) != 8 || ncm != it.NCM {
			add(field("ncm"), "NCM debe tener 8 dígitos")
		}
		if cfop := pkgnfe.OnlyDigits(it.CFOP); it.CFOP != "" && (len(cfop) != 4 || cfop != it.CFOP) {
			add(field("cfop"), "CFOP debe tener 4 dígitos")
		}
		if !it.Quantity.IsPositive() {
			add(field("quantity"), "cantidad debe ser mayor que cero")
		}
		if it.UnitPrice.IsNegative() {
			add(field("unit_price"), "precio unitario no puede ser negativo")
		}
		if it.Discount.IsNegative() || it.Discount.GreaterThan(it.Total) {
			add(field("discount"), "descuento fuera de rango")
		}
		if simplified && !pkgnfe.ValidCSOSN[it.TaxSituation] {
			add(field("tax_situation"), "CSOSN %q no soportado", it.TaxSituation)
		}
		if !simplified && !pkgnfe.ValidCST[it.TaxSituation] {
			add(field("tax_situation"), "CST %q no soportado", it.TaxSituation)
		}
	}

	if len(doc.Payments) == 0 {
		add("payments", "se requiere al menos un medio de pago")
	}
	for i, p := range doc.Payments {
		if !pkgnfe.ValidPaymentCodes[p.Method] {
			add("payments["+itoa(i)+"].method", "medio de pago %q desconocido", p.Method)
		}
		if p.Amount.IsNegative() || (p.Method != pkgnfe.PaymentNone && !p.Amount.IsPositive()) {
			add("payments["+itoa(i)+"].amount", "monto inválido")
		}
	}
	if len(doc.Payments) > 0 && doc.Totals.Paid.LessThan(doc.Totals.Total) && !onlyNoPayment(doc.Payments) {
		add("payments", "pagos (%s) menores que el total (%s)", doc.Totals.Paid.StringFixed(2), doc.Totals.Total.StringFixed(2))
	}

	if b := doc.Buyer; b != nil {
		if b.Document != "" {
			if err := pkgnfe.ValidateTaxID(b.Document); err != nil {
				add("buyer.document", "%v", err)
			}
		}
		if doc.Model == pkgnfe.ModelNFCe && b.UF != "" && b.UF != issuer.Address.UF {
			add("buyer.uf", "NFC-e solo admite operaciones internas")
		}
		if doc.Model == pkgnfe.ModelNFe {
			if b.Document == "" && b.ForeignID == "" {
				add("buyer.document", "NF-e exige CPF, CNPJ o identificación extranjera del destinatario")
			}
			if b.Address == nil {
				add("buyer.address", "NF-e exige dirección del destinatario")
			}
		}
	} else if doc.Model == pkgnfe.ModelNFe {
		add("buyer", "NF-e modelo 55 exige destinatario")
	}

	return errors.Join(errs...)
}

func onlyNoPayment(ps []entity.Payment) bool {
	for _, p := range ps {
		if p.Method != pkgnfe.PaymentNone {
			return false
		}
	}
	return true
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
