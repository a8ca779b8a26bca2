package nfe

import (
	"fmt"
	"unicode"
)

// pesos del primer y segundo dígito verificador del CNPJ (módulo 11).
var (
	cnpjWeights1 = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateCNPJ valida los dos dígitos verificadores de un CNPJ.
// Acepta el número con o sin máscara ("11.222.333/0001-81" o "11222333000181").
func ValidateCNPJ(cnpj string) error {
	digits := OnlyDigits(cnpj)
	if len(digits) != 14 {
		return fmt.Errorf("nfe: CNPJ debe tener 14 dígitos, se encontraron %d", len(digits))
	}
	if allSame(digits) {
		return fmt.Errorf("nfe: CNPJ %s inválido", digits)
	}
	d1 := cnpjDigit(digits[:12], cnpjWeights1[:])
	d2 := cnpjDigit(digits[:12]+string(rune('0'+d1)), cnpjWeights2[:])
	if int(digits[12]-'0') != d1 || int(digits[13]-'0') != d2 {
		return fmt.Errorf("nfe: dígitos verificadores del CNPJ inválidos: esperado %d%d, recibido %s", d1, d2, digits[12:])
	}
	return nil
}

func cnpjDigit(base string, weights []int) int {
	var sum int
	for i := range base {
		sum += int(base[i]-'0') * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

// ValidateCPF valida los dos dígitos verificadores de un CPF.
func ValidateCPF(cpf string) error {
	digits := OnlyDigits(cpf)
	if len(digits) != 11 {
		return fmt.Errorf("nfe: CPF debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	if allSame(digits) {
		return fmt.Errorf("nfe: CPF %s inválido", digits)
	}
	d1 := cpfDigit(digits[:9], 10)
	d2 := cpfDigit(digits[:10], 11)
	if int(digits[9]-'0') != d1 || int(digits[10]-'0') != d2 {
		return fmt.Errorf("nfe: dígitos verificadores del CPF inválidos: esperado %d%d, recibido %s", d1, d2, digits[9:])
	}
	return nil
}

func cpfDigit(base string, firstWeight int) int {
	var sum int
	for i := range base {
		sum += int(base[i]-'0') * (firstWeight - i)
	}
	d := (sum * 10) % 11
	if d == 10 {
		return 0
	}
	return d
}

// ValidateTaxID valida CPF (11 dígitos) o CNPJ (14 dígitos) según la longitud.
func ValidateTaxID(doc string) error {
	switch len(OnlyDigits(doc)) {
	case 11:
		return ValidateCPF(doc)
	case 14:
		return ValidateCNPJ(doc)
	default:
		return fmt.Errorf("nfe: documento %q no es CPF ni CNPJ", doc)
	}
}

// OnlyDigits elimina máscara y separadores.
func OnlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
