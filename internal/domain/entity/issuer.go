package entity

import "time"

// Address dirección fiscal (enderEmit / enderDest).
type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	CityCode   string // código IBGE del municipio (7 dígitos)
	CityName   string
	UF         string
	ZipCode    string
	Phone      string
}

// Issuer emisor de los documentos fiscales (un emisor por proceso).
type Issuer struct {
	ID                string
	CNPJ              string
	LegalName         string
	TradeName         string
	StateRegistration string // Inscrição Estadual
	TaxRegime         string // CRT: 1 Simples, 2 Simples excesso, 3 normal
	Address           Address
	Active            bool
	CSCID             string // identificador del CSC (NFC-e)
	CSCToken          string // Código de Segurança do Contribuinte (NFC-e)
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
