package nfe

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Límites de longitud (en caracteres) de los campos de texto del leiaute.
const (
	MaxLegalName                = 60
	MaxTradeName                = 60
	MaxStreet                   = 60
	MaxStreetNumber             = 60
	MaxDistrict                 = 60
	MaxCityName                 = 60
	MaxProductCode              = 60
	MaxDescription              = 120
	MaxUnit                     = 6
	MaxOperation                = 60
	MaxAdditionalInfo           = 5000
	MaxJustification            = 255
	MaxContingencyJustification = 256
	MaxEmail                    = 60

	// MinJustification es el mínimo exigido para xJust (cancelamento, inutilização, contingência).
	MinJustification = 15
)

// SanitizeText normaliza a NFC, elimina caracteres de control, colapsa
// espacios y recorta a max runas. El escape XML queda a cargo del encoder.
func SanitizeText(s string, max int) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if max > 0 {
		if runes := []rune(out); len(runes) > max {
			out = strings.TrimSpace(string(runes[:max]))
		}
	}
	return out
}

// TextLength cuenta caracteres (runas) tras la normalización, como lo hace la SEFAZ.
func TextLength(s string) int {
	return len([]rune(SanitizeText(s, 0)))
}
