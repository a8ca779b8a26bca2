package sefaz_test

import (
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/nfe"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

const testKey = "35261011222333000181650010000000011123456783"

func testIssuer(crt string) *entity.Issuer {
	return &entity.Issuer{
		CNPJ:              "11.222.333/0001-81",
		LegalName:         "EMPRESA TESTE LTDA",
		TradeName:         "Mercado Teste",
		StateRegistration: "110042490114",
		TaxRegime:         crt,
		Active:            true,
		Address: entity.Address{
			Street: "Rua das Flores", Number: "100", District: "Centro",
			CityCode: "3550308", CityName: "Sao Paulo", UF: "SP", ZipCode: "01001-000",
		},
	}
}

func testDocument(model, crt string) *entity.FiscalDocument {
	doc := &entity.FiscalDocument{
		Model:        model,
		Series:       1,
		Number:       1,
		AccessKey:    testKey,
		Seed:         12345678,
		IssuedAt:     time.Date(2026, 10, 16, 13, 30, 0, 0, time.UTC),
		EmissionMode: entity.EmissionNormal,
		Items: []entity.FiscalItem{{
			Code:         "P001",
			Description:  "Cerveja   long neck",
			NCM:          "22030000",
			CFOP:         "5102",
			TaxSituation: pkgnfe.CSOSNWithoutCredit,
			Quantity:     decimal.NewFromInt(2),
			UnitPrice:    decimal.RequireFromString("10.00"),
		}},
		Payments: []entity.Payment{{Method: pkgnfe.PaymentCash, Amount: decimal.RequireFromString("50.00")}},
	}
	nfe.CalculateTotals(doc, crt)
	return doc
}

func buildInvoice(t *testing.T, doc *entity.FiscalDocument, issuer *entity.Issuer, env string) *etree.Element {
	t.Helper()
	out, err := sefaz.NewXMLBuilderService().BuildInvoice(&sefaz.InvoiceBuildContext{
		Document: doc, Issuer: issuer, Environment: env,
	})
	require.NoError(t, err)

	parsed := etree.NewDocument()
	require.NoError(t, parsed.ReadFromBytes(out))
	root := parsed.Root()
	require.Equal(t, "NFe", root.Tag)
	assert.Equal(t, pkgnfe.Namespace, root.SelectAttrValue("xmlns", ""))
	inf := root.SelectElement("infNFe")
	require.NotNil(t, inf)
	return inf
}

func text(t *testing.T, el *etree.Element, path string) string {
	t.Helper()
	found := el.FindElement(path)
	require.NotNil(t, found, "falta %s", path)
	return found.Text()
}

// ──── BuildInvoice ────

func TestBuildInvoice_OrdenDelSchema(t *testing.T) {
	inf := buildInvoice(t, testDocument(pkgnfe.ModelNFCe, pkgnfe.RegimeSimples), testIssuer(pkgnfe.RegimeSimples), pkgnfe.EnvironmentProduction)

	var tags []string
	for _, child := range inf.ChildElements() {
		tags = append(tags, child.Tag)
	}
	assert.Equal(t, []string{"ide", "emit", "det", "total", "transp", "pag"}, tags)
	assert.Equal(t, "NFe"+testKey, inf.SelectAttrValue("Id", ""))
	assert.Equal(t, "4.00", inf.SelectAttrValue("versao", ""))
}

func TestBuildInvoice_IdentificacionNFCe(t *testing.T) {
	inf := buildInvoice(t, testDocument(pkgnfe.ModelNFCe, pkgnfe.RegimeSimples), testIssuer(pkgnfe.RegimeSimples), pkgnfe.EnvironmentProduction)

	assert.Equal(t, "35", text(t, inf, "ide/cUF"))
	assert.Equal(t, "12345678", text(t, inf, "ide/cNF"))
	assert.Equal(t, "VENDA", text(t, inf, "ide/natOp"))
	assert.Equal(t, "65", text(t, inf, "ide/mod"))
	assert.Equal(t, "2026-10-16T10:30:00-03:00", text(t, inf, "ide/dhEmi"))
	assert.Equal(t, "4", text(t, inf, "ide/tpImp"))
	assert.Equal(t, "1", text(t, inf, "ide/tpEmis"))
	assert.Equal(t, "3", text(t, inf, "ide/cDV"))
	assert.Equal(t, "1", text(t, inf, "ide/indFinal"))
	assert.Nil(t, inf.FindElement("ide/dhCont"), "sin contingencia no hay dhCont")
	assert.Equal(t, "11222333000181", text(t, inf, "emit/CNPJ"))
	assert.Equal(t, "01001000", text(t, inf, "emit/enderEmit/CEP"))
}

func TestBuildInvoice_ValoresYDecimales(t *testing.T) {
	inf := buildInvoice(t, testDocument(pkgnfe.ModelNFCe, pkgnfe.RegimeSimples), testIssuer(pkgnfe.RegimeSimples), pkgnfe.EnvironmentProduction)

	assert.Equal(t, "Cerveja long neck", text(t, inf, "det/prod/xProd"))
	assert.Equal(t, "SEM GTIN", text(t, inf, "det/prod/cEAN"))
	assert.Equal(t, "UN", text(t, inf, "det/prod/uCom"))
	assert.Equal(t, "2.0000", text(t, inf, "det/prod/qCom"))
	assert.Equal(t, "10.0000", text(t, inf, "det/prod/vUnCom"))
	assert.Equal(t, "20.00", text(t, inf, "det/prod/vProd"))
	assert.Equal(t, "102", text(t, inf, "det/imposto/ICMS/ICMSSN102/CSOSN"))
	assert.Equal(t, "07", text(t, inf, "det/imposto/PIS/PISNT/CST"))
	assert.Equal(t, "20.00", text(t, inf, "total/ICMSTot/vNF"))
	assert.Equal(t, "50.00", text(t, inf, "pag/detPag/vPag"))
	assert.Equal(t, "30.00", text(t, inf, "pag/vTroco"))
}

func TestBuildInvoice_RegimeNormalICMS00(t *testing.T) {
	doc := testDocument(pkgnfe.ModelNFCe, pkgnfe.RegimeNormal)
	doc.Items[0].TaxSituation = pkgnfe.CSTTaxed
	doc.Items[0].ICMSRate = decimal.NewFromInt(18)
	doc.Items[0].PISRate = decimal.RequireFromString("1.65")
	nfe.CalculateTotals(doc, pkgnfe.RegimeNormal)

	inf := buildInvoice(t, doc, testIssuer(pkgnfe.RegimeNormal), pkgnfe.EnvironmentProduction)

	assert.Equal(t, "20.00", text(t, inf, "det/imposto/ICMS/ICMS00/vBC"))
	assert.Equal(t, "18.0000", text(t, inf, "det/imposto/ICMS/ICMS00/pICMS"))
	assert.Equal(t, "3.60", text(t, inf, "det/imposto/ICMS/ICMS00/vICMS"))
	assert.Equal(t, "0.33", text(t, inf, "det/imposto/PIS/PISAliq/vPIS"))
	assert.Equal(t, "3.60", text(t, inf, "total/ICMSTot/vICMS"))
}

func TestBuildInvoice_HomologacionFuerzaTextos(t *testing.T) {
	doc := testDocument(pkgnfe.ModelNFCe, pkgnfe.RegimeSimples)
	doc.Buyer = &entity.Buyer{Document: "52998224725", Name: "Fulano"}

	inf := buildInvoice(t, doc, testIssuer(pkgnfe.RegimeSimples), pkgnfe.EnvironmentHomologation)

	assert.Equal(t, "2", text(t, inf, "ide/tpAmb"))
	assert.Equal(t, sefaz.HomologationName, text(t, inf, "dest/xNome"))
	assert.Equal(t, "52998224725", text(t, inf, "dest/CPF"))
	assert.True(t, strings.Contains(text(t, inf, "det/prod/xProd"), "HOMOLOGACAO"))
}

func TestBuildInvoice_InterestadualAjustaCFOP(t *testing.T) {
	doc := testDocument(pkgnfe.ModelNFe, pkgnfe.RegimeSimples)
	doc.Buyer = &entity.Buyer{
		Document: "11222333000181", Name: "Cliente RJ", UF: "RJ",
		Address: &entity.Address{Street: "Av Rio Branco", Number: "1", District: "Centro", CityCode: "3304557", CityName: "Rio de Janeiro", UF: "RJ"},
	}

	inf := buildInvoice(t, doc, testIssuer(pkgnfe.RegimeSimples), pkgnfe.EnvironmentProduction)

	assert.Equal(t, "2", text(t, inf, "ide/idDest"))
	assert.Equal(t, "6102", text(t, inf, "det/prod/CFOP"))
	assert.Equal(t, "1", text(t, inf, "ide/tpImp"))
	assert.Equal(t, "0", text(t, inf, "ide/indFinal"), "comprador CNPJ no es consumidor final")
	assert.Equal(t, "RJ", text(t, inf, "dest/enderDest/UF"))
}

func TestBuildInvoice_ContingenciaIncluyeDhContYJustificativa(t *testing.T) {
	doc := testDocument(pkgnfe.ModelNFCe, pkgnfe.RegimeSimples)
	at := time.Date(2026, 10, 16, 13, 0, 0, 0, time.UTC)
	doc.EmissionMode = entity.EmissionOffline
	doc.ContingencyAt = &at
	doc.ContingencyReason = "SEFAZ sem resposta no prazo"

	inf := buildInvoice(t, doc, testIssuer(pkgnfe.RegimeSimples), pkgnfe.EnvironmentProduction)

	assert.Equal(t, "9", text(t, inf, "ide/tpEmis"))
	assert.Equal(t, "2026-10-16T10:00:00-03:00", text(t, inf, "ide/dhCont"))
	assert.Equal(t, "SEFAZ sem resposta no prazo", text(t, inf, "ide/xJust"))
}

func TestBuildInvoice_SinChaveFalla(t *testing.T) {
	doc := testDocument(pkgnfe.ModelNFCe, pkgnfe.RegimeSimples)
	doc.AccessKey = ""
	_, err := sefaz.NewXMLBuilderService().BuildInvoice(&sefaz.InvoiceBuildContext{
		Document: doc, Issuer: testIssuer(pkgnfe.RegimeSimples), Environment: pkgnfe.EnvironmentProduction,
	})
	require.Error(t, err)
}

// ──── Eventos e inutilização ────

func TestBuildCancellationEvent_IdYCampos(t *testing.T) {
	out, id, err := sefaz.NewXMLBuilderService().BuildCancellationEvent(&sefaz.CancellationBuildContext{
		Issuer:        testIssuer(pkgnfe.RegimeSimples),
		AccessKey:     testKey,
		Protocol:      "135260000000001",
		Justification: "Venda cancelada pelo cliente na loja",
		Sequence:      1,
		At:            time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC),
		Environment:   pkgnfe.EnvironmentHomologation,
	})
	require.NoError(t, err)
	assert.Equal(t, "ID110111"+testKey+"01", id)
	assert.Len(t, id, 54)

	parsed := etree.NewDocument()
	require.NoError(t, parsed.ReadFromBytes(out))
	inf := parsed.FindElement("//infEvento")
	require.NotNil(t, inf)
	assert.Equal(t, id, inf.SelectAttrValue("Id", ""))
	assert.Equal(t, "35", text(t, inf, "cOrgao"))
	assert.Equal(t, "110111", text(t, inf, "tpEvento"))
	assert.Equal(t, "135260000000001", text(t, inf, "detEvento/nProt"))
	assert.Equal(t, "Cancelamento", text(t, inf, "detEvento/descEvento"))
}

func TestBuildCancellationEvent_SinProtocoloFalla(t *testing.T) {
	_, _, err := sefaz.NewXMLBuilderService().BuildCancellationEvent(&sefaz.CancellationBuildContext{
		Issuer: testIssuer(pkgnfe.RegimeSimples), AccessKey: testKey,
	})
	require.Error(t, err)
}

func TestBuildInutilization_IdConRelleno(t *testing.T) {
	out, id, err := sefaz.NewXMLBuilderService().BuildInutilization(&sefaz.InutilizationBuildContext{
		Issuer:        testIssuer(pkgnfe.RegimeSimples),
		Model:         pkgnfe.ModelNFCe,
		Series:        1,
		Year:          2026,
		Start:         5,
		End:           10,
		Justification: "Falha no sistema de numeracao",
		Environment:   pkgnfe.EnvironmentHomologation,
	})
	require.NoError(t, err)
	assert.Equal(t, "ID352611222333000181650010000000050000000010", id)

	parsed := etree.NewDocument()
	require.NoError(t, parsed.ReadFromBytes(out))
	inf := parsed.FindElement("//infInut")
	require.NotNil(t, inf)
	assert.Equal(t, "26", text(t, inf, "ano"))
	assert.Equal(t, "5", text(t, inf, "nNFIni"))
	assert.Equal(t, "10", text(t, inf, "nNFFin"))
}

func TestBuildInutilization_FajaInvertida(t *testing.T) {
	_, _, err := sefaz.NewXMLBuilderService().BuildInutilization(&sefaz.InutilizationBuildContext{
		Issuer: testIssuer(pkgnfe.RegimeSimples), Model: pkgnfe.ModelNFCe, Series: 1, Year: 26, Start: 10, End: 5,
	})
	require.Error(t, err)
}

// ──── Envoltorios ────

func TestWrapBatch_ConservaElXMLFirmado(t *testing.T) {
	signed := []byte(`<?xml version="1.0"?><NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe1"/></NFe>`)
	out := string(sefaz.NewXMLBuilderService().WrapBatch("123", signed))

	assert.True(t, strings.HasPrefix(out, `<enviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><idLote>123</idLote><indSinc>1</indSinc><NFe`))
	assert.NotContains(t, out, "<?xml")
	assert.True(t, strings.HasSuffix(out, "</NFe></enviNFe>"))
}

func TestBuildAuthorizedProc(t *testing.T) {
	out := string(sefaz.NewXMLBuilderService().BuildAuthorizedProc([]byte(`<NFe/>`), `<protNFe versao="4.00"><infProt/></protNFe>`))
	assert.Contains(t, out, `<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><NFe/><protNFe versao="4.00">`)
}
