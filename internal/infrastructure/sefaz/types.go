// Package sefaz implementa la generación de XML del leiaute NF-e/NFC-e 4.00 y el
// cliente SOAP 1.2 de los web services de la SEFAZ.
package sefaz

import (
	"fmt"
	"time"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// BrazilTime huso fijo UTC-3 usado en todas las fechas del leiaute.
var BrazilTime = time.FixedZone("BRT", -3*60*60)

// HomologationName xNome obligatorio del destinatario (y del primer ítem de la
// NFC-e) en ambiente de homologación.
const HomologationName = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"

// InvoiceBuildContext datos necesarios para construir <NFe>.
type InvoiceBuildContext struct {
	Document    *entity.FiscalDocument
	Issuer      *entity.Issuer
	Environment string // tpAmb
}

// CancellationBuildContext datos del evento de cancelamento.
type CancellationBuildContext struct {
	Issuer        *entity.Issuer
	AccessKey     string
	Protocol      string // nProt de la autorización
	Justification string
	Sequence      int
	At            time.Time
	Environment   string
}

// InutilizationBuildContext datos del pedido de inutilização.
type InutilizationBuildContext struct {
	Issuer        *entity.Issuer
	Model         string
	Series        int
	Year          int // dos dígitos
	Start         int64
	End           int64
	Justification string
	Environment   string
}

// InvoiceElementID Id de infNFe.
func InvoiceElementID(key string) string { return "NFe" + key }

// EventElementID Id de infEvento: "ID" + tpEvento + chave + nSeqEvento (2 dígitos).
func EventElementID(eventType, key string, seq int) string {
	return fmt.Sprintf("ID%s%s%02d", eventType, key, seq)
}

// InutilizationElementID Id de infInut.
func InutilizationElementID(ufCode string, year int, cnpj, model string, series int, start, end int64) string {
	return fmt.Sprintf("ID%s%02d%s%s%03d%09d%09d", ufCode, year%100, cnpj, model, series, start, end)
}

// FormatDateTime fecha ISO-8601 con offset -03:00.
func FormatDateTime(t time.Time) string {
	return t.In(BrazilTime).Format("2006-01-02T15:04:05-07:00")
}
