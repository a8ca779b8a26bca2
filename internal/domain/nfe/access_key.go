// Package nfe contiene reglas de dominio puras de la NF-e/NFC-e: chave de acesso,
// totales y validación del documento antes de numerarlo.
package nfe

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// AccessKeyLength longitud total de la chave de acesso (43 dígitos + DV).
const AccessKeyLength = 44

var (
	// ErrInvalidKeyLength el prefijo no tiene exactamente 43 dígitos.
	ErrInvalidKeyLength = errors.New("nfe: la chave sin DV debe tener 43 dígitos")
	// ErrInvalidAccessKey la chave no es numérica, no tiene 44 dígitos o el DV no coincide.
	ErrInvalidAccessKey = errors.New("nfe: chave de acesso inválida")
)

// AccessKeyParams campos que componen la chave de acesso.
type AccessKeyParams struct {
	RegionCode   string    // cUF IBGE (2 dígitos)
	IssuedAt     time.Time // se usa AAMM
	IssuerCNPJ   string    // 14 dígitos
	Model        string    // 55 o 65
	Series       int       // 0..999
	Number       int64     // 1..999999999
	EmissionCode string    // tpEmis (1 dígito)
	Seed         int       // cNF (8 dígitos)
}

// AccessKeyParts chave de acesso descompuesta.
type AccessKeyParts struct {
	RegionCode   string
	YearMonth    string
	IssuerCNPJ   string
	Model        string
	Series       int
	Number       int64
	EmissionCode string
	Seed         int
	CheckDigit   int
}

// AccessKeyCodec construye y valida chaves de acesso. Sin estado ni I/O.
type AccessKeyCodec struct{}

// NewAccessKeyCodec crea el codec.
func NewAccessKeyCodec() *AccessKeyCodec {
	return &AccessKeyCodec{}
}

// Build concatena los campos con relleno de ceros y agrega el dígito verificador.
func (c *AccessKeyCodec) Build(p AccessKeyParams) (string, error) {
	switch {
	case len(p.RegionCode) != 2 || !isDigits(p.RegionCode):
		return "", fmt.Errorf("nfe: cUF %q inválido", p.RegionCode)
	case len(p.IssuerCNPJ) != 14 || !isDigits(p.IssuerCNPJ):
		return "", fmt.Errorf("nfe: CNPJ %q inválido para la chave", p.IssuerCNPJ)
	case len(p.Model) != 2 || !isDigits(p.Model):
		return "", fmt.Errorf("nfe: modelo %q inválido", p.Model)
	case p.Series < 0 || p.Series > 999:
		return "", fmt.Errorf("nfe: serie %d fuera de rango", p.Series)
	case p.Number < 1 || p.Number > 999999999:
		return "", fmt.Errorf("nfe: número %d fuera de rango", p.Number)
	case len(p.EmissionCode) != 1 || !isDigits(p.EmissionCode):
		return "", fmt.Errorf("nfe: tpEmis %q inválido", p.EmissionCode)
	case p.Seed < 0 || p.Seed > 99999999:
		return "", fmt.Errorf("nfe: cNF %d fuera de rango", p.Seed)
	case p.IssuedAt.IsZero():
		return "", fmt.Errorf("nfe: fecha de emisión requerida")
	}

	prefix := fmt.Sprintf("%s%s%s%s%03d%09d%s%08d",
		p.RegionCode,
		p.IssuedAt.Format("0601"),
		p.IssuerCNPJ,
		p.Model,
		p.Series,
		p.Number,
		p.EmissionCode,
		p.Seed,
	)
	dv, err := c.CheckDigit(prefix)
	if err != nil {
		return "", err
	}
	return prefix + strconv.Itoa(dv), nil
}

// CheckDigit calcula el DV módulo 11 con pesos 2..9 desde el dígito menos significativo.
func (c *AccessKeyCodec) CheckDigit(prefix string) (int, error) {
	if len(prefix) != AccessKeyLength-1 || !isDigits(prefix) {
		return 0, ErrInvalidKeyLength
	}
	sum, weight := 0, 2
	for i := len(prefix) - 1; i >= 0; i-- {
		sum += int(prefix[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	dv := 11 - sum%11
	if dv >= 10 {
		dv = 0
	}
	return dv, nil
}

// Validate acepta exactamente las chaves de 44 dígitos cuyo último dígito es el DV correcto.
func (c *AccessKeyCodec) Validate(key string) error {
	if len(key) != AccessKeyLength || !isDigits(key) {
		return fmt.Errorf("%w: se esperaban 44 dígitos", ErrInvalidAccessKey)
	}
	dv, err := c.CheckDigit(key[:AccessKeyLength-1])
	if err != nil {
		return err
	}
	if int(key[AccessKeyLength-1]-'0') != dv {
		return fmt.Errorf("%w: DV esperado %d, recibido %c", ErrInvalidAccessKey, dv, key[AccessKeyLength-1])
	}
	return nil
}

// Parse valida y descompone la chave.
func (c *AccessKeyCodec) Parse(key string) (*AccessKeyParts, error) {
	if err := c.Validate(key); err != nil {
		return nil, err
	}
	series, _ := strconv.Atoi(key[22:25])
	number, _ := strconv.ParseInt(key[25:34], 10, 64)
	seed, _ := strconv.Atoi(key[35:43])
	return &AccessKeyParts{
		RegionCode:   key[0:2],
		YearMonth:    key[2:6],
		IssuerCNPJ:   key[6:20],
		Model:        key[20:22],
		Series:       series,
		Number:       number,
		EmissionCode: key[34:35],
		Seed:         seed,
		CheckDigit:   int(key[43] - '0'),
	}, nil
}

// RandomSeed genera el cNF de 8 dígitos; la SEFAZ rechaza cNF igual al número del documento.
func RandomSeed(number int64) (int, error) {
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(100000000))
		if err != nil {
			return 0, fmt.Errorf("nfe: generar cNF: %w", err)
		}
		seed := int(n.Int64())
		if int64(seed) != number {
			return seed, nil
		}
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
