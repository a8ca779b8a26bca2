// Constantes XMLDSig usadas por la NF-e (assinatura enveloped, RSA-SHA1).

package signer

// Namespaces y algoritmos XMLDSig exigidos por el leiaute 4.00.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// oidICPBrasilCNPJ otherName del SAN con el CNPJ del titular (e-CNPJ ICP-Brasil).
var oidICPBrasilCNPJ = []int{2, 16, 76, 1, 3, 3}
