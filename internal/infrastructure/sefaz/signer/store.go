// Carga del certificado e-CNPJ (A1) desde PKCS#12 o PEM y exposición de su
// identidad, vigencia y credencial mTLS.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// credential certificado hoja + cadena + llave; inmutable una vez cargado.
type credential struct {
	leaf     *x509.Certificate
	chain    [][]byte // DER: hoja primero
	key      *rsa.PrivateKey
	identity entity.CertificateIdentity
}

// CertificateStore mantiene en memoria la credencial vigente. Las firmas toman
// el lock de lectura; una recarga toma el de escritura.
type CertificateStore struct {
	mu   sync.RWMutex
	cred *credential
	now  func() time.Time
	log  zerolog.Logger
}

// NewCertificateStore crea un store vacío.
func NewCertificateStore(log zerolog.Logger) *CertificateStore {
	return &CertificateStore{
		now: time.Now,
		log: log.With().Str("component", "certificate_store").Logger(),
	}
}

// WithClock reemplaza el reloj (tests de vencimiento).
func (s *CertificateStore) WithClock(now func() time.Time) *CertificateStore {
	s.now = now
	return s
}

// Load decodifica un bundle PKCS#12 y reemplaza la credencial vigente.
func (s *CertificateStore) Load(bundle []byte, password string) (*entity.CertificateIdentity, error) {
	if len(bundle) == 0 {
		return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, errors.New("bundle vacío"))
	}
	blocks, err := pkcs12.ToPEM(bundle, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, domain.NewCredentialError(domain.CredentialWrongPassword, nil)
		}
		return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, err)
	}
	cred, err := credentialFromBlocks(blocks)
	if err != nil {
		return nil, err
	}
	return s.replace(cred), nil
}

// LoadFile lee el .pfx/.p12 del disco y lo carga.
func (s *CertificateStore) LoadFile(path, password string) (*entity.CertificateIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, fmt.Errorf("leer %s: %w", path, err))
	}
	return s.Load(data, password)
}

// LoadPEM carga certificado (con cadena opcional) y llave en PEM.
// keyPEM puede ir vacío si certPEM ya contiene la llave.
func (s *CertificateStore) LoadPEM(certPEM, keyPEM []byte) (*entity.CertificateIdentity, error) {
	var blocks []*pem.Block
	for _, data := range [][]byte{certPEM, keyPEM} {
		for {
			var b *pem.Block
			b, data = pem.Decode(data)
			if b == nil {
				break
			}
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, errors.New("PEM sin bloques"))
	}
	cred, err := credentialFromBlocks(blocks)
	if err != nil {
		return nil, err
	}
	return s.replace(cred), nil
}

func (s *CertificateStore) replace(cred *credential) *entity.CertificateIdentity {
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	id := cred.identity
	s.log.Info().
		Str("subject", id.Subject).
		Str("cnpj", id.TaxID).
		Str("serial", id.SerialNumber).
		Time("not_after", id.NotAfter).
		Msg("certificado cargado")
	return &id
}

func credentialFromBlocks(blocks []*pem.Block) (*credential, error) {
	var (
		key   *rsa.PrivateKey
		certs []*x509.Certificate
	)
	for _, b := range blocks {
		switch b.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, err)
			}
			certs = append(certs, c)
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(b.Bytes)
			if err != nil {
				return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, err)
			}
			key = k
		case "PRIVATE KEY":
			k, err := x509.ParsePKCS8PrivateKey(b.Bytes)
			if err != nil {
				return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, err)
			}
			rk, ok := k.(*rsa.PrivateKey)
			if !ok {
				return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, errors.New("la NF-e exige llave RSA"))
			}
			key = rk
		}
	}
	if key == nil {
		return nil, domain.NewCredentialError(domain.CredentialMissingPrivateKey, nil)
	}
	if len(certs) == 0 {
		return nil, domain.NewCredentialError(domain.CredentialMalformedBundle, errors.New("bundle sin certificado"))
	}

	// La hoja es el certificado cuya llave pública corresponde a la privada.
	var leaf *x509.Certificate
	for _, c := range certs {
		if pub, ok := c.PublicKey.(*rsa.PublicKey); ok && pub.Equal(key.Public()) {
			leaf = c
			break
		}
	}
	if leaf == nil {
		return nil, domain.NewCredentialError(domain.CredentialMissingPrivateKey, errors.New("ningún certificado corresponde a la llave privada"))
	}
	chain := [][]byte{leaf.Raw}
	for _, c := range certs {
		if c != leaf {
			chain = append(chain, c.Raw)
		}
	}
	return &credential{
		leaf:     leaf,
		chain:    chain,
		key:      key,
		identity: identityOf(leaf),
	}, nil
}

func identityOf(c *x509.Certificate) entity.CertificateIdentity {
	return entity.CertificateIdentity{
		Subject:      c.Subject.CommonName,
		TaxID:        taxIDOf(c),
		SerialNumber: c.SerialNumber.Text(16),
		Issuer:       c.Issuer.CommonName,
		NotBefore:    c.NotBefore,
		NotAfter:     c.NotAfter,
	}
}

// taxIDOf extrae el CNPJ del otherName ICP-Brasil o, en su defecto, del sufijo ":<cnpj>" del CN.
func taxIDOf(c *x509.Certificate) string {
	if cnpj := cnpjFromSAN(c); cnpj != "" {
		return cnpj
	}
	if i := strings.LastIndex(c.Subject.CommonName, ":"); i >= 0 {
		if d := pkgnfe.OnlyDigits(c.Subject.CommonName[i+1:]); len(d) == 14 {
			return d
		}
	}
	return ""
}

func cnpjFromSAN(c *x509.Certificate) string {
	for _, ext := range c.Extensions {
		if !ext.Id.Equal(asn1.ObjectIdentifier{2, 5, 29, 17}) {
			continue
		}
		var names []asn1.RawValue
		if _, err := asn1.Unmarshal(ext.Value, &names); err != nil {
			return ""
		}
		for _, n := range names {
			if n.Class != asn1.ClassContextSpecific || n.Tag != 0 {
				continue
			}
			var other struct {
				ID    asn1.ObjectIdentifier
				Value asn1.RawValue `asn1:"explicit,tag:0"`
			}
			if _, err := asn1.UnmarshalWithParams(n.FullBytes, &other, "tag:0"); err != nil {
				continue
			}
			if other.ID.Equal(oidICPBrasilCNPJ) {
				if d := pkgnfe.OnlyDigits(string(other.Value.Bytes)); len(d) == 14 {
					return d
				}
			}
		}
	}
	return ""
}

// Identity devuelve la identidad del certificado cargado; false si no hay ninguno.
func (s *CertificateStore) Identity() (*entity.CertificateIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil, false
	}
	id := s.cred.identity
	return &id, true
}

// Validity informa si hay credencial vigente y cuántos días le quedan.
func (s *CertificateStore) Validity() entity.CertificateValidity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return entity.CertificateValidity{}
	}
	now := s.now()
	leaf := s.cred.leaf
	days := int(math.Floor(leaf.NotAfter.Sub(now).Hours() / 24))
	return entity.CertificateValidity{
		Loaded:        true,
		Valid:         !now.Before(leaf.NotBefore) && now.Before(leaf.NotAfter),
		DaysRemaining: days,
		NotAfter:      leaf.NotAfter,
	}
}

// Check devuelve un CredentialError si no hay credencial utilizable.
func (s *CertificateStore) Check() error {
	v := s.Validity()
	switch {
	case !v.Loaded:
		return domain.NewCredentialError(domain.CredentialNotLoaded, nil)
	case !v.Valid:
		return domain.NewCredentialError(domain.CredentialExpired, fmt.Errorf("vigencia hasta %s", v.NotAfter.Format(time.DateOnly)))
	}
	return nil
}

// ClientCertificate entrega la credencial para el handshake mTLS con la SEFAZ.
// Se consulta en cada conexión, así una recarga aplica sin reiniciar el cliente.
func (s *CertificateStore) ClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil, domain.NewCredentialError(domain.CredentialNotLoaded, nil)
	}
	return &tls.Certificate{
		Certificate: s.cred.chain,
		PrivateKey:  s.cred.key,
		Leaf:        s.cred.leaf,
	}, nil
}

// signWithCredential ejecuta fn con la credencial vigente bajo el lock de lectura.
func (s *CertificateStore) signWithCredential(fn func(signer crypto.Signer, leaf *x509.Certificate) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return domain.NewCredentialError(domain.CredentialNotLoaded, nil)
	}
	now := s.now()
	if now.After(s.cred.leaf.NotAfter) || now.Before(s.cred.leaf.NotBefore) {
		return domain.NewCredentialError(domain.CredentialExpired, fmt.Errorf("vigencia hasta %s", s.cred.leaf.NotAfter.Format(time.DateOnly)))
	}
	return fn(s.cred.key, s.cred.leaf)
}

// CertificatePEM devuelve la hoja en PEM (inspección desde la CLI).
func (s *CertificateStore) CertificatePEM() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil
	}
	var buf bytes.Buffer
	_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: s.cred.leaf.Raw})
	return buf.Bytes()
}
