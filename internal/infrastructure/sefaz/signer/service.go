// Firma XMLDSig enveloped de la NF-e: <Signature> como hermano posterior del
// elemento firmado (infNFe, infEvento, infInut), referenciado por su Id.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

var (
	xmlDeclaration = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)
	interTagSpace  = regexp.MustCompile(`>\s+<`)
)

// Sign firma el elemento cuyo atributo Id es elementID y devuelve un XML nuevo
// con la firma insertada. Ante cualquier fallo no devuelve firma parcial.
func (s *CertificateStore) Sign(xmlBytes []byte, elementID string) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, signingError(errors.New("XML vacío"))
	}
	if elementID == "" {
		return nil, signingError(errors.New("Id del elemento requerido"))
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(Normalize(xmlBytes)); err != nil {
		return nil, signingError(fmt.Errorf("parsear XML: %w", err))
	}
	target := FindByID(doc.Root(), elementID)
	if target == nil {
		return nil, signingError(fmt.Errorf("elemento con Id %q no encontrado", elementID))
	}
	parent := target.Parent()
	if parent == nil || parent.Tag == "" {
		return nil, signingError(errors.New("el elemento firmado no puede ser la raíz"))
	}

	canonical, err := CanonicalizeElement(target)
	if err != nil {
		return nil, signingError(fmt.Errorf("C14N del elemento: %w", err))
	}
	digest := sha1.Sum(canonical)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	var signatureXML string
	err = s.signWithCredential(func(key crypto.Signer, leaf *x509.Certificate) error {
		canonicalSI, err := canonicalizeBytes([]byte(signedInfoXML(elementID, digestB64, true)))
		if err != nil {
			return signingError(fmt.Errorf("C14N de SignedInfo: %w", err))
		}
		h := sha1.Sum(canonicalSI)
		sig, err := key.Sign(rand.Reader, h[:], crypto.SHA1)
		if err != nil {
			return signingError(fmt.Errorf("RSA-SHA1: %w", err))
		}
		signatureXML = signatureElementXML(
			signedInfoXML(elementID, digestB64, false),
			base64.StdEncoding.EncodeToString(sig),
			base64.StdEncoding.EncodeToString(leaf.Raw),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, signingError(fmt.Errorf("parsear Signature: %w", err))
	}
	parent.InsertChildAt(target.Index()+1, sigDoc.Root())

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, signingError(fmt.Errorf("serializar: %w", err))
	}
	return out, nil
}

func signingError(err error) error {
	return domain.NewCredentialError(domain.CredentialSigningFailed, err)
}

func signedInfoXML(elementID, digestB64 string, withNamespace bool) string {
	var sb strings.Builder
	if withNamespace {
		sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	} else {
		sb.WriteString(`<SignedInfo>`)
	}
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="#` + elementID + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14N + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func signatureElementXML(signedInfo, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfo)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

// Normalize quita la declaración XML y los espacios entre etiquetas.
func Normalize(xmlBytes []byte) []byte {
	out := xmlDeclaration.ReplaceAll(bytes.TrimSpace(xmlBytes), nil)
	return interTagSpace.ReplaceAll(bytes.TrimSpace(out), []byte("><"))
}

// FindByID busca en profundidad el elemento con atributo Id igual a id.
func FindByID(el *etree.Element, id string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.SelectAttrValue("Id", "") == id {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := FindByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// CanonicalizeElement aplica C14N inclusiva al elemento como subárbol del
// documento: las declaraciones de namespace heredadas de los ancestros se
// copian al elemento antes de canonicalizar.
func CanonicalizeElement(el *etree.Element) ([]byte, error) {
	cp := el.Copy()
	declared := map[string]bool{}
	for _, a := range cp.Attr {
		if a.Space == "" && a.Key == "xmlns" {
			declared[""] = true
		}
		if a.Space == "xmlns" {
			declared[a.Key] = true
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			switch {
			case a.Space == "" && a.Key == "xmlns" && !declared[""]:
				declared[""] = true
				cp.CreateAttr("xmlns", a.Value)
			case a.Space == "xmlns" && !declared[a.Key]:
				declared[a.Key] = true
				cp.CreateAttr("xmlns:"+a.Key, a.Value)
			}
		}
	}
	d := etree.NewDocument()
	d.SetRoot(cp)
	raw, err := d.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalizeBytes(raw)
}

func canonicalizeBytes(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

var _ pkgnfe.Signer = (*CertificateStore)(nil)
