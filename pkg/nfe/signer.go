package nfe

// Signer firma un fragmento XML con assinatura enveloped (XMLDSig).
type Signer interface {
	// Sign recibe el XML sin firma y el Id del elemento a firmar (ej. "NFe3526...")
	// y devuelve un XML nuevo con <Signature> insertado después del elemento.
	Sign(xmlBytes []byte, elementID string) ([]byte, error)
}
