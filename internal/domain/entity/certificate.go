package entity

import "time"

// CertificateIdentity datos del certificado e-CNPJ cargado. Solo lectura; se recalcula en cada carga.
type CertificateIdentity struct {
	Subject      string
	TaxID        string // CNPJ extraído del certificado (vacío si no se pudo determinar)
	SerialNumber string
	Issuer       string
	NotBefore    time.Time
	NotAfter     time.Time
}

// CertificateValidity vigencia del certificado cargado.
type CertificateValidity struct {
	Loaded        bool
	Valid         bool
	DaysRemaining int
	NotAfter      time.Time
}
