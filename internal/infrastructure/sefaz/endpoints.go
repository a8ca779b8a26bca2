package sefaz

import (
	"fmt"
	"strings"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// Service web service de la SEFAZ (nombre del WSDL 4.00).
type Service string

const (
	ServiceAuthorization Service = "NFeAutorizacao4"
	ServiceEvent         Service = "NFeRecepcaoEvento4"
	ServiceInutilization Service = "NFeInutilizacao4"
	ServiceStatus        Service = "NFeStatusServico4"
	ServiceProtocol      Service = "NFeConsultaProtocolo4"
)

// Namespace del elemento nfeDadosMsg del servicio.
func (s Service) Namespace() string {
	return "http://www.portalfiscal.inf.br/nfe/wsdl/" + string(s)
}

// Method operación SOAP del servicio.
func (s Service) Method() string {
	switch s {
	case ServiceAuthorization:
		return "nfeAutorizacaoLote"
	case ServiceEvent:
		return "nfeRecepcaoEvento"
	case ServiceInutilization:
		return "nfeInutilizacaoNF"
	case ServiceStatus:
		return "nfeStatusServicoNF"
	case ServiceProtocol:
		return "nfeConsultaNF"
	}
	return ""
}

// Action valor del parámetro action del Content-Type SOAP 1.2.
func (s Service) Action() string {
	return s.Namespace() + "/" + s.Method()
}

// Authorizer autorizador que atiende al emisor.
type Authorizer string

const (
	AuthorizerSP    Authorizer = "SP"
	AuthorizerSVRS  Authorizer = "SVRS"
	AuthorizerSVCAN Authorizer = "SVC-AN"
	AuthorizerSVCRS Authorizer = "SVC-RS"
)

// ufsOnSVCRS UFs cuya contingencia SVC es atendida por SVC-RS; el resto usa SVC-AN.
var ufsOnSVCRS = map[string]bool{
	"AM": true, "BA": true, "CE": true, "GO": true, "MA": true,
	"MS": true, "MT": true, "PE": true, "PR": true,
}

// ContingencyModeFor modo de contingencia de la UF y modelo: la NFC-e usa
// off-line (tpEmis 9); la NF-e usa el SVC que corresponde a la UF.
func ContingencyModeFor(uf, model string) entity.EmissionMode {
	if model == pkgnfe.ModelNFCe {
		return entity.EmissionOffline
	}
	if ufsOnSVCRS[uf] {
		return entity.EmissionSVCRS
	}
	return entity.EmissionSVCAN
}

// AuthorizerFor autorizador de la UF en el modo dado. UFs con autorizador
// propio distinto de SP se configuran con overrides.
func AuthorizerFor(uf string, mode entity.EmissionMode) Authorizer {
	switch mode {
	case entity.EmissionSVCAN:
		return AuthorizerSVCAN
	case entity.EmissionSVCRS:
		return AuthorizerSVCRS
	}
	if uf == "SP" {
		return AuthorizerSP
	}
	return AuthorizerSVRS
}

type endpointKey struct {
	authorizer  Authorizer
	model       string
	environment string
	service     Service
}

// EndpointTable URLs fijas por autorizador, modelo, ambiente y servicio.
type EndpointTable struct {
	urls      map[endpointKey]string
	overrides map[Service]string
}

// DefaultEndpoints tabla con los endpoints publicados para SP, SVRS, SVC-AN y SVC-RS.
func DefaultEndpoints() *EndpointTable {
	t := &EndpointTable{urls: map[endpointKey]string{}, overrides: map[Service]string{}}

	spPaths := map[Service]string{
		ServiceAuthorization: "/ws/nfeautorizacao4.asmx",
		ServiceEvent:         "/ws/nferecepcaoevento4.asmx",
		ServiceInutilization: "/ws/nfeinutilizacao4.asmx",
		ServiceStatus:        "/ws/nfestatusservico4.asmx",
		ServiceProtocol:      "/ws/nfeconsultaprotocolo4.asmx",
	}
	spNFCePaths := map[Service]string{
		ServiceAuthorization: "/ws/NFeAutorizacao4.asmx",
		ServiceEvent:         "/ws/NFeRecepcaoEvento4.asmx",
		ServiceInutilization: "/ws/NFeInutilizacao4.asmx",
		ServiceStatus:        "/ws/NFeStatusServico4.asmx",
		ServiceProtocol:      "/ws/NFeConsultaProtocolo4.asmx",
	}
	svrsPaths := map[Service]string{
		ServiceAuthorization: "/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		ServiceEvent:         "/ws/recepcaoevento/recepcaoevento4.asmx",
		ServiceInutilization: "/ws/nfeinutilizacao/nfeinutilizacao4.asmx",
		ServiceStatus:        "/ws/NfeStatusServico/NfeStatusServico4.asmx",
		ServiceProtocol:      "/ws/NfeConsulta/NfeConsulta4.asmx",
	}
	svcANPaths := map[Service]string{
		ServiceAuthorization: "/NFeAutorizacao4/NFeAutorizacao4.asmx",
		ServiceEvent:         "/NFeRecepcaoEvento4/NFeRecepcaoEvento4.asmx",
		ServiceStatus:        "/NFeStatusServico4/NFeStatusServico4.asmx",
		ServiceProtocol:      "/NFeConsultaProtocolo4/NFeConsultaProtocolo4.asmx",
	}

	hosts := []struct {
		authorizer Authorizer
		model      string
		homolog    string
		production string
		paths      map[Service]string
	}{
		{AuthorizerSP, pkgnfe.ModelNFe, "https://homologacao.nfe.fazenda.sp.gov.br", "https://nfe.fazenda.sp.gov.br", spPaths},
		{AuthorizerSP, pkgnfe.ModelNFCe, "https://homologacao.nfce.fazenda.sp.gov.br", "https://nfce.fazenda.sp.gov.br", spNFCePaths},
		{AuthorizerSVRS, pkgnfe.ModelNFe, "https://nfe-homologacao.svrs.rs.gov.br", "https://nfe.svrs.rs.gov.br", svrsPaths},
		{AuthorizerSVRS, pkgnfe.ModelNFCe, "https://nfce-homologacao.svrs.rs.gov.br", "https://nfce.svrs.rs.gov.br", svrsPaths},
		{AuthorizerSVCAN, pkgnfe.ModelNFe, "https://hom.svc.fazenda.gov.br", "https://www.svc.fazenda.gov.br", svcANPaths},
		{AuthorizerSVCRS, pkgnfe.ModelNFe, "https://nfe-homologacao.svrs.rs.gov.br", "https://nfe.svrs.rs.gov.br", svrsPaths},
	}
	for _, h := range hosts {
		for svc, path := range h.paths {
			t.urls[endpointKey{h.authorizer, h.model, pkgnfe.EnvironmentHomologation, svc}] = h.homolog + path
			t.urls[endpointKey{h.authorizer, h.model, pkgnfe.EnvironmentProduction, svc}] = h.production + path
		}
	}
	// SVC no ofrece inutilização.
	delete(t.urls, endpointKey{AuthorizerSVCRS, pkgnfe.ModelNFe, pkgnfe.EnvironmentHomologation, ServiceInutilization})
	delete(t.urls, endpointKey{AuthorizerSVCRS, pkgnfe.ModelNFe, pkgnfe.EnvironmentProduction, ServiceInutilization})
	return t
}

// Override fija la URL de un servicio para cualquier autorizador (SEFAZ_URL_*).
func (t *EndpointTable) Override(service Service, url string) {
	if url = strings.TrimSpace(url); url != "" {
		t.overrides[service] = url
	}
}

// Resolve devuelve la URL del servicio.
func (t *EndpointTable) Resolve(authorizer Authorizer, model, environment string, service Service) (string, error) {
	isContingency := authorizer == AuthorizerSVCAN || authorizer == AuthorizerSVCRS
	if url, ok := t.overrides[service]; ok && !isContingency {
		return url, nil
	}
	if url, ok := t.urls[endpointKey{authorizer, model, environment, service}]; ok {
		return url, nil
	}
	return "", fmt.Errorf("sefaz: sin endpoint para %s modelo %s ambiente %s servicio %s", authorizer, model, environment, service)
}

// URLs de consulta de la NFC-e (QR-Code y urlChave) publicadas por SP.
const (
	spQRCodeHomologation  = "https://www.homologacao.nfce.fazenda.sp.gov.br/qrcode"
	spQRCodeProduction    = "https://www.nfce.fazenda.sp.gov.br/qrcode"
	spConsultHomologation = "https://www.homologacao.nfce.fazenda.sp.gov.br/consulta"
	spConsultProduction   = "https://www.nfce.fazenda.sp.gov.br/consulta"
)

// NFCeURLs devuelve las URLs de QR-Code y consulta por chave; vacías si la UF
// no tiene valores por defecto (configurar NFCE_QR_URL y NFCE_CONSULT_URL).
func NFCeURLs(uf, environment string) (qrCode, consult string) {
	if uf != "SP" {
		return "", ""
	}
	if environment == pkgnfe.EnvironmentProduction {
		return spQRCodeProduction, spConsultProduction
	}
	return spQRCodeHomologation, spConsultHomologation
}
