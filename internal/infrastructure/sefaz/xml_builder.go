package sefaz

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// Valores fijos del leiaute.
const (
	countryCodeBrazil = "1058"
	countryNameBrazil = "BRASIL"
	noGTIN            = "SEM GTIN"
	defaultOperation  = "VENDA"
	softwareVersion   = pkgnfe.SoftwareVendor + " 1.0"
	freightNone       = "9" // modFrete: sem ocorrência de transporte
	icmsBaseByValue   = "3" // modBC: valor da operação
	nonContributor    = "9" // indIEDest: não contribuinte
)

var declaration = regexp.MustCompile(`^\s*<\?xml[^>]*\?>\s*`)

// XMLBuilderService construye los XML del leiaute 4.00 (sin firma).
// Transformación pura: no hace I/O.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// xmlWriter acumula el primer error del encoder; los write posteriores son no-op.
type xmlWriter struct {
	buf bytes.Buffer
	enc *xml.Encoder
	err error
}

func newXMLWriter() *xmlWriter {
	w := &xmlWriter{}
	w.enc = xml.NewEncoder(&w.buf)
	return w
}

func (w *xmlWriter) start(local string, attrs ...xml.Attr) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}, Attr: attrs})
	}
}

func (w *xmlWriter) end(local string) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
	}
}

func (w *xmlWriter) leaf(local, value string) {
	w.start(local)
	if w.err == nil {
		w.err = w.enc.EncodeToken(xml.CharData(value))
	}
	w.end(local)
}

// optional escribe el elemento solo si value no está vacío.
func (w *xmlWriter) optional(local, value string) {
	if value != "" {
		w.leaf(local, value)
	}
}

func (w *xmlWriter) bytes() ([]byte, error) {
	if w.err == nil {
		w.err = w.enc.Flush()
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func money(d decimal.Decimal) string    { return d.StringFixed(2) }
func quantity(d decimal.Decimal) string { return d.StringFixed(4) }
func rate(d decimal.Decimal) string     { return d.StringFixed(4) }

// =============================================================================
// NF-e / NFC-e
// =============================================================================

// BuildInvoice genera <NFe><infNFe Id="NFe{chave}" versao="4.00">…</NFe> en el
// orden del schema. Requiere AccessKey, Number, Seed e IssuedAt ya asignados.
func (s *XMLBuilderService) BuildInvoice(ctx *InvoiceBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Document == nil || ctx.Issuer == nil {
		return nil, fmt.Errorf("sefaz: faltan documento o emisor en el contexto")
	}
	doc, issuer := ctx.Document, ctx.Issuer
	if len(doc.AccessKey) != 44 {
		return nil, fmt.Errorf("sefaz: documento sin chave de acesso")
	}
	ufCode, ok := pkgnfe.UFCode(issuer.Address.UF)
	if !ok {
		return nil, fmt.Errorf("sefaz: UF del emisor %q desconocida", issuer.Address.UF)
	}

	w := newXMLWriter()
	w.start("NFe", attr("xmlns", pkgnfe.Namespace))
	w.start("infNFe", attr("Id", InvoiceElementID(doc.AccessKey)), attr("versao", pkgnfe.LayoutVersion))

	dest := destinationOf(doc, issuer)
	s.writeIde(w, ctx, ufCode, dest)
	s.writeEmit(w, issuer)
	s.writeDest(w, ctx)
	for i := range doc.Items {
		s.writeDet(w, ctx, i, dest)
	}
	s.writeTotal(w, doc)
	w.start("transp")
	w.leaf("modFrete", freightNone)
	w.end("transp")
	s.writePag(w, doc)
	if info := pkgnfe.SanitizeText(doc.AdditionalInfo, pkgnfe.MaxAdditionalInfo); info != "" {
		w.start("infAdic")
		w.leaf("infCpl", info)
		w.end("infAdic")
	}

	w.end("infNFe")
	w.end("NFe")
	return w.bytes()
}

// destinationOf deriva idDest de la UF del comprador.
func destinationOf(doc *entity.FiscalDocument, issuer *entity.Issuer) string {
	if doc.Buyer == nil || doc.Buyer.UF == "" || doc.Buyer.UF == issuer.Address.UF {
		return pkgnfe.DestinationInternal
	}
	if doc.Buyer.UF == pkgnfe.ForeignUF {
		return pkgnfe.DestinationForeign
	}
	return pkgnfe.DestinationInterstate
}

func (s *XMLBuilderService) writeIde(w *xmlWriter, ctx *InvoiceBuildContext, ufCode, dest string) {
	doc := ctx.Document
	printType, finalConsumer := "1", "0"
	if doc.Model == pkgnfe.ModelNFCe {
		printType, finalConsumer = "4", "1"
	} else if doc.Buyer != nil && len(pkgnfe.OnlyDigits(doc.Buyer.Document)) == 11 {
		finalConsumer = "1"
	}
	operation := pkgnfe.SanitizeText(doc.Operation, pkgnfe.MaxOperation)
	if operation == "" {
		operation = defaultOperation
	}

	w.start("ide")
	w.leaf("cUF", ufCode)
	w.leaf("cNF", fmt.Sprintf("%08d", doc.Seed))
	w.leaf("natOp", operation)
	w.leaf("mod", doc.Model)
	w.leaf("serie", strconv.Itoa(doc.Series))
	w.leaf("nNF", strconv.FormatInt(doc.Number, 10))
	w.leaf("dhEmi", FormatDateTime(doc.IssuedAt))
	w.leaf("tpNF", "1")
	w.leaf("idDest", dest)
	w.leaf("cMunFG", ctx.Issuer.Address.CityCode)
	w.leaf("tpImp", printType)
	w.leaf("tpEmis", doc.EmissionMode.Code())
	w.leaf("cDV", doc.AccessKey[43:])
	w.leaf("tpAmb", ctx.Environment)
	w.leaf("finNFe", "1")
	w.leaf("indFinal", finalConsumer)
	w.leaf("indPres", "1")
	w.leaf("procEmi", "0")
	w.leaf("verProc", softwareVersion)
	if doc.EmissionMode.IsContingency() && doc.ContingencyAt != nil {
		w.leaf("dhCont", FormatDateTime(*doc.ContingencyAt))
		w.leaf("xJust", pkgnfe.SanitizeText(doc.ContingencyReason, pkgnfe.MaxContingencyJustification))
	}
	w.end("ide")
}

func (s *XMLBuilderService) writeEmit(w *xmlWriter, issuer *entity.Issuer) {
	w.start("emit")
	w.leaf("CNPJ", pkgnfe.OnlyDigits(issuer.CNPJ))
	w.leaf("xNome", pkgnfe.SanitizeText(issuer.LegalName, pkgnfe.MaxLegalName))
	w.optional("xFant", pkgnfe.SanitizeText(issuer.TradeName, pkgnfe.MaxTradeName))
	writeAddress(w, "enderEmit", &issuer.Address)
	w.leaf("IE", pkgnfe.OnlyDigits(issuer.StateRegistration))
	w.leaf("CRT", issuer.TaxRegime)
	w.end("emit")
}

func writeAddress(w *xmlWriter, local string, a *entity.Address) {
	w.start(local)
	w.leaf("xLgr", pkgnfe.SanitizeText(a.Street, pkgnfe.MaxStreet))
	w.leaf("nro", pkgnfe.SanitizeText(a.Number, pkgnfe.MaxStreetNumber))
	w.optional("xCpl", pkgnfe.SanitizeText(a.Complement, pkgnfe.MaxStreet))
	w.leaf("xBairro", pkgnfe.SanitizeText(a.District, pkgnfe.MaxDistrict))
	w.leaf("cMun", a.CityCode)
	w.leaf("xMun", pkgnfe.SanitizeText(a.CityName, pkgnfe.MaxCityName))
	w.leaf("UF", a.UF)
	w.optional("CEP", pkgnfe.OnlyDigits(a.ZipCode))
	w.leaf("cPais", countryCodeBrazil)
	w.leaf("xPais", countryNameBrazil)
	w.optional("fone", pkgnfe.OnlyDigits(a.Phone))
	w.end(local)
}

func (s *XMLBuilderService) writeDest(w *xmlWriter, ctx *InvoiceBuildContext) {
	b := ctx.Document.Buyer
	if b == nil || (b.Document == "" && b.ForeignID == "") {
		return
	}
	w.start("dest")
	switch digits := pkgnfe.OnlyDigits(b.Document); {
	case len(digits) == 14:
		w.leaf("CNPJ", digits)
	case len(digits) == 11:
		w.leaf("CPF", digits)
	default:
		w.leaf("idEstrangeiro", pkgnfe.SanitizeText(b.ForeignID, 20))
	}
	name := pkgnfe.SanitizeText(b.Name, pkgnfe.MaxLegalName)
	if ctx.Environment == pkgnfe.EnvironmentHomologation {
		name = HomologationName
	}
	w.optional("xNome", name)
	if b.Address != nil {
		writeAddress(w, "enderDest", b.Address)
	}
	w.leaf("indIEDest", nonContributor)
	w.optional("email", pkgnfe.SanitizeText(b.Email, pkgnfe.MaxEmail))
	w.end("dest")
}

// cfopFor ajusta el primer dígito del CFOP al destino (5 interno, 6 interestadual, 7 exterior).
func cfopFor(cfop, dest string) string {
	if cfop == "" {
		cfop = "5102"
	}
	prefix := map[string]string{
		pkgnfe.DestinationInternal:   "5",
		pkgnfe.DestinationInterstate: "6",
		pkgnfe.DestinationForeign:    "7",
	}[dest]
	if prefix == "" || (cfop[0] != '5' && cfop[0] != '6' && cfop[0] != '7') {
		return cfop
	}
	return prefix + cfop[1:]
}

func (s *XMLBuilderService) writeDet(w *xmlWriter, ctx *InvoiceBuildContext, i int, dest string) {
	doc := ctx.Document
	it := doc.Items[i]
	description := pkgnfe.SanitizeText(it.Description, pkgnfe.MaxDescription)
	if i == 0 && doc.Model == pkgnfe.ModelNFCe && ctx.Environment == pkgnfe.EnvironmentHomologation {
		description = "NOTA FISCAL EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
	}
	ean := it.EAN
	if ean == "" {
		ean = noGTIN
	}
	unit := pkgnfe.SanitizeText(it.Unit, pkgnfe.MaxUnit)
	if unit == "" {
		unit = "UN"
	}

	w.start("det", attr("nItem", strconv.Itoa(i+1)))
	w.start("prod")
	w.leaf("cProd", pkgnfe.SanitizeText(it.Code, pkgnfe.MaxProductCode))
	w.leaf("cEAN", ean)
	w.leaf("xProd", description)
	w.leaf("NCM", it.NCM)
	w.optional("CEST", it.CEST)
	w.leaf("CFOP", cfopFor(it.CFOP, dest))
	w.leaf("uCom", unit)
	w.leaf("qCom", quantity(it.Quantity))
	w.leaf("vUnCom", quantity(it.UnitPrice))
	w.leaf("vProd", money(it.Total))
	w.leaf("cEANTrib", ean)
	w.leaf("uTrib", unit)
	w.leaf("qTrib", quantity(it.Quantity))
	w.leaf("vUnTrib", quantity(it.UnitPrice))
	if it.Discount.IsPositive() {
		w.leaf("vDesc", money(it.Discount))
	}
	w.leaf("indTot", "1")
	w.end("prod")

	w.start("imposto")
	s.writeICMS(w, ctx.Issuer.TaxRegime, it)
	writeContribution(w, "PIS", it.PISRate, it.PISBase, it.PISValue)
	writeContribution(w, "COFINS", it.COFINSRate, it.COFINSBase, it.COFINSValue)
	w.end("imposto")
	w.end("det")
}

// writeICMS elige el grupo de ICMS según régimen y situación tributaria.
func (s *XMLBuilderService) writeICMS(w *xmlWriter, crt string, it entity.FiscalItem) {
	origin := it.Origin
	if origin == "" {
		origin = "0"
	}
	w.start("ICMS")
	if pkgnfe.IsSimplifiedRegime(crt) {
		group := "ICMSSN102"
		switch it.TaxSituation {
		case pkgnfe.CSOSNChargedBeforeST:
			group = "ICMSSN500"
		case pkgnfe.CSOSNOther:
			group = "ICMSSN900"
		}
		w.start(group)
		w.leaf("orig", origin)
		w.leaf("CSOSN", it.TaxSituation)
		w.end(group)
	} else {
		switch it.TaxSituation {
		case pkgnfe.CSTTaxed:
			w.start("ICMS00")
			w.leaf("orig", origin)
			w.leaf("CST", it.TaxSituation)
			w.leaf("modBC", icmsBaseByValue)
			w.leaf("vBC", money(it.ICMSBase))
			w.leaf("pICMS", rate(it.ICMSRate))
			w.leaf("vICMS", money(it.ICMSValue))
			w.end("ICMS00")
		case pkgnfe.CSTChargedBeforeST:
			w.start("ICMS60")
			w.leaf("orig", origin)
			w.leaf("CST", it.TaxSituation)
			w.end("ICMS60")
		default:
			w.start("ICMS40")
			w.leaf("orig", origin)
			w.leaf("CST", it.TaxSituation)
			w.end("ICMS40")
		}
	}
	w.end("ICMS")
}

// writeContribution escribe PIS o COFINS: grupo Aliq (CST 01) con alícuota, NT (CST 07) sin ella.
func writeContribution(w *xmlWriter, tax string, r, base, value decimal.Decimal) {
	w.start(tax)
	if r.IsPositive() {
		w.start(tax + "Aliq")
		w.leaf("CST", pkgnfe.PISCOFINSTaxedRate)
		w.leaf("vBC", money(base))
		w.leaf("p"+tax, rate(r))
		w.leaf("v"+tax, money(value))
		w.end(tax + "Aliq")
	} else {
		w.start(tax + "NT")
		w.leaf("CST", pkgnfe.PISCOFINSNotTaxed)
		w.end(tax + "NT")
	}
	w.end(tax)
}

func (s *XMLBuilderService) writeTotal(w *xmlWriter, doc *entity.FiscalDocument) {
	t := doc.Totals
	zero := money(decimal.Zero)
	w.start("total")
	w.start("ICMSTot")
	w.leaf("vBC", money(t.ICMSBase))
	w.leaf("vICMS", money(t.ICMS))
	w.leaf("vICMSDeson", zero)
	w.leaf("vFCP", zero)
	w.leaf("vBCST", zero)
	w.leaf("vST", zero)
	w.leaf("vFCPST", zero)
	w.leaf("vFCPSTRet", zero)
	w.leaf("vProd", money(t.Products))
	w.leaf("vFrete", zero)
	w.leaf("vSeg", zero)
	w.leaf("vDesc", money(t.Discount))
	w.leaf("vII", zero)
	w.leaf("vIPI", zero)
	w.leaf("vIPIDevol", zero)
	w.leaf("vPIS", money(t.PIS))
	w.leaf("vCOFINS", money(t.COFINS))
	w.leaf("vOutro", zero)
	w.leaf("vNF", money(t.Total))
	w.end("ICMSTot")
	w.end("total")
}

func (s *XMLBuilderService) writePag(w *xmlWriter, doc *entity.FiscalDocument) {
	w.start("pag")
	for _, p := range doc.Payments {
		w.start("detPag")
		w.leaf("tPag", p.Method)
		w.leaf("vPag", money(p.Amount))
		w.end("detPag")
	}
	if doc.Totals.Change.IsPositive() {
		w.leaf("vTroco", money(doc.Totals.Change))
	}
	w.end("pag")
}

// =============================================================================
// Evento de cancelamento (110111)
// =============================================================================

// BuildCancellationEvent genera <evento> y devuelve también el Id de infEvento a firmar.
func (s *XMLBuilderService) BuildCancellationEvent(ctx *CancellationBuildContext) ([]byte, string, error) {
	if ctx == nil || ctx.Issuer == nil || len(ctx.AccessKey) != 44 {
		return nil, "", fmt.Errorf("sefaz: evento sin emisor o chave")
	}
	if ctx.Protocol == "" {
		return nil, "", fmt.Errorf("sefaz: cancelamento requiere el protocolo de autorización")
	}
	seq := ctx.Sequence
	if seq < 1 {
		seq = 1
	}
	id := EventElementID(pkgnfe.EventCancellation, ctx.AccessKey, seq)

	w := newXMLWriter()
	w.start("evento", attr("xmlns", pkgnfe.Namespace), attr("versao", pkgnfe.EventVersion))
	w.start("infEvento", attr("Id", id))
	w.leaf("cOrgao", ctx.AccessKey[:2])
	w.leaf("tpAmb", ctx.Environment)
	w.leaf("CNPJ", pkgnfe.OnlyDigits(ctx.Issuer.CNPJ))
	w.leaf("chNFe", ctx.AccessKey)
	w.leaf("dhEvento", FormatDateTime(ctx.At))
	w.leaf("tpEvento", pkgnfe.EventCancellation)
	w.leaf("nSeqEvento", strconv.Itoa(seq))
	w.leaf("verEvento", pkgnfe.EventVersion)
	w.start("detEvento", attr("versao", pkgnfe.EventVersion))
	w.leaf("descEvento", pkgnfe.EventCancellationDescription)
	w.leaf("nProt", ctx.Protocol)
	w.leaf("xJust", pkgnfe.SanitizeText(ctx.Justification, pkgnfe.MaxJustification))
	w.end("detEvento")
	w.end("infEvento")
	w.end("evento")
	out, err := w.bytes()
	return out, id, err
}

// =============================================================================
// Inutilização
// =============================================================================

// BuildInutilization genera <inutNFe> y devuelve el Id de infInut a firmar.
func (s *XMLBuilderService) BuildInutilization(ctx *InutilizationBuildContext) ([]byte, string, error) {
	if ctx == nil || ctx.Issuer == nil {
		return nil, "", fmt.Errorf("sefaz: inutilização sin emisor")
	}
	if ctx.Start < 1 || ctx.Start > ctx.End {
		return nil, "", fmt.Errorf("sefaz: faja %d-%d inválida", ctx.Start, ctx.End)
	}
	ufCode, ok := pkgnfe.UFCode(ctx.Issuer.Address.UF)
	if !ok {
		return nil, "", fmt.Errorf("sefaz: UF del emisor %q desconocida", ctx.Issuer.Address.UF)
	}
	cnpj := pkgnfe.OnlyDigits(ctx.Issuer.CNPJ)
	id := InutilizationElementID(ufCode, ctx.Year, cnpj, ctx.Model, ctx.Series, ctx.Start, ctx.End)

	w := newXMLWriter()
	w.start("inutNFe", attr("xmlns", pkgnfe.Namespace), attr("versao", pkgnfe.LayoutVersion))
	w.start("infInut", attr("Id", id))
	w.leaf("tpAmb", ctx.Environment)
	w.leaf("xServ", "INUTILIZAR")
	w.leaf("cUF", ufCode)
	w.leaf("ano", fmt.Sprintf("%02d", ctx.Year%100))
	w.leaf("CNPJ", cnpj)
	w.leaf("mod", ctx.Model)
	w.leaf("serie", strconv.Itoa(ctx.Series))
	w.leaf("nNFIni", strconv.FormatInt(ctx.Start, 10))
	w.leaf("nNFFin", strconv.FormatInt(ctx.End, 10))
	w.leaf("xJust", pkgnfe.SanitizeText(ctx.Justification, pkgnfe.MaxJustification))
	w.end("infInut")
	w.end("inutNFe")
	out, err := w.bytes()
	return out, id, err
}

// =============================================================================
// Consultas
// =============================================================================

// BuildStatusQuery genera <consStatServ>.
func (s *XMLBuilderService) BuildStatusQuery(environment, ufCode string) ([]byte, error) {
	w := newXMLWriter()
	w.start("consStatServ", attr("xmlns", pkgnfe.Namespace), attr("versao", pkgnfe.LayoutVersion))
	w.leaf("tpAmb", environment)
	w.leaf("cUF", ufCode)
	w.leaf("xServ", "STATUS")
	w.end("consStatServ")
	return w.bytes()
}

// BuildProtocolQuery genera <consSitNFe> para consultar la situación de una chave.
func (s *XMLBuilderService) BuildProtocolQuery(environment, key string) ([]byte, error) {
	w := newXMLWriter()
	w.start("consSitNFe", attr("xmlns", pkgnfe.Namespace), attr("versao", pkgnfe.LayoutVersion))
	w.leaf("tpAmb", environment)
	w.leaf("xServ", "CONSULTAR")
	w.leaf("chNFe", key)
	w.end("consSitNFe")
	return w.bytes()
}

// =============================================================================
// Envoltorios de lote y XML autorizado
// =============================================================================

// El contenido firmado se concatena como texto: re-codificarlo alteraría el digest.

// WrapBatch genera <enviNFe> síncrono (indSinc=1) con una única NF-e firmada.
func (s *XMLBuilderService) WrapBatch(batchID string, signedNFe []byte) []byte {
	var b strings.Builder
	b.WriteString(`<enviNFe xmlns="` + pkgnfe.Namespace + `" versao="` + pkgnfe.LayoutVersion + `">`)
	b.WriteString(`<idLote>` + batchID + `</idLote><indSinc>1</indSinc>`)
	b.Write(stripDeclaration(signedNFe))
	b.WriteString(`</enviNFe>`)
	return []byte(b.String())
}

// WrapEventBatch genera <envEvento> con un único evento firmado.
func (s *XMLBuilderService) WrapEventBatch(batchID string, signedEvent []byte) []byte {
	var b strings.Builder
	b.WriteString(`<envEvento xmlns="` + pkgnfe.Namespace + `" versao="` + pkgnfe.EventVersion + `">`)
	b.WriteString(`<idLote>` + batchID + `</idLote>`)
	b.Write(stripDeclaration(signedEvent))
	b.WriteString(`</envEvento>`)
	return []byte(b.String())
}

// BuildAuthorizedProc compone <nfeProc> (NF-e firmada + protNFe), el XML que se archiva.
func (s *XMLBuilderService) BuildAuthorizedProc(signedNFe []byte, protNFe string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<nfeProc xmlns="` + pkgnfe.Namespace + `" versao="` + pkgnfe.LayoutVersion + `">`)
	b.Write(stripDeclaration(signedNFe))
	b.Write(stripDeclaration([]byte(protNFe)))
	b.WriteString(`</nfeProc>`)
	return []byte(b.String())
}

// BuildEventProc compone <procEventoNFe> (evento firmado + retEvento).
func (s *XMLBuilderService) BuildEventProc(signedEvent []byte, retEvento string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<procEventoNFe xmlns="` + pkgnfe.Namespace + `" versao="` + pkgnfe.EventVersion + `">`)
	b.Write(stripDeclaration(signedEvent))
	b.Write(stripDeclaration([]byte(retEvento)))
	b.WriteString(`</procEventoNFe>`)
	return []byte(b.String())
}

func stripDeclaration(b []byte) []byte {
	return bytes.TrimSpace(declaration.ReplaceAll(b, nil))
}
