package sefaz

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// QRCodeParams datos del QR-Code v2 de la NFC-e.
type QRCodeParams struct {
	BaseURL     string // URL de consulta por QR de la UF
	AccessKey   string
	Environment string
	CSCID       string
	CSCToken    string

	// Solo contingencia off-line
	Offline     bool
	Document    *entity.FiscalDocument
	DigestValue string // DigestValue de la firma (base64)
}

// BuildQRCodeURL arma la URL del QR-Code v2 con el hash SHA-1 del CSC.
func BuildQRCodeURL(p QRCodeParams) (string, error) {
	if p.CSCID == "" || p.CSCToken == "" {
		return "", fmt.Errorf("sefaz: NFC-e requiere CSC configurado")
	}
	cscID := strings.TrimLeft(p.CSCID, "0")
	if cscID == "" {
		cscID = "0"
	}

	var fields []string
	if p.Offline {
		if p.Document == nil || p.DigestValue == "" {
			return "", fmt.Errorf("sefaz: QR off-line requiere documento y DigestValue")
		}
		fields = []string{
			p.AccessKey,
			pkgnfe.QRCodeVersion,
			p.Environment,
			p.Document.IssuedAt.In(BrazilTime).Format("02"),
			money(p.Document.Totals.Total),
			hex.EncodeToString([]byte(p.DigestValue)),
			cscID,
		}
	} else {
		fields = []string{p.AccessKey, pkgnfe.QRCodeVersion, p.Environment, cscID}
	}
	payload := strings.Join(fields, "|")
	sum := sha1.Sum([]byte(payload + p.CSCToken))
	hash := strings.ToUpper(hex.EncodeToString(sum[:]))

	sep := "?"
	if strings.Contains(p.BaseURL, "?") {
		sep = "&"
	}
	return p.BaseURL + sep + "p=" + payload + "|" + hash, nil
}

// DigestValueOf extrae el DigestValue de la firma de un XML firmado.
func DigestValueOf(signed []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return "", fmt.Errorf("sefaz: parsear XML firmado: %w", err)
	}
	el := doc.FindElement("//Signature/SignedInfo/Reference/DigestValue")
	if el == nil {
		return "", fmt.Errorf("sefaz: XML sin DigestValue")
	}
	return strings.TrimSpace(el.Text()), nil
}

// AttachQRCode inserta <infNFeSupl> entre infNFe y Signature. No altera el
// contenido firmado: infNFeSupl queda fuera del elemento referenciado.
func AttachQRCode(signed []byte, qrCode, consultURL string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return nil, fmt.Errorf("sefaz: parsear XML firmado: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "NFe" {
		return nil, fmt.Errorf("sefaz: se esperaba <NFe> como raíz")
	}
	inf := root.SelectElement("infNFe")
	if inf == nil {
		return nil, fmt.Errorf("sefaz: <NFe> sin infNFe")
	}
	if old := root.SelectElement("infNFeSupl"); old != nil {
		root.RemoveChild(old)
	}

	supl := etree.NewElement("infNFeSupl")
	supl.CreateElement("qrCode").CreateCData(qrCode)
	supl.CreateElement("urlChave").SetText(consultURL)
	root.InsertChildAt(inf.Index()+1, supl)

	return doc.WriteToBytes()
}
