package entity

import "time"

// Inutilization inutilização de una faja de numeración [Start, End] de una serie y año.
type Inutilization struct {
	ID            string
	IssuerID      string
	Model         string
	Series        int
	Year          int // dos dígitos (ej. 26)
	Start         int64
	End           int64
	Justification string
	Status        EventStatus
	StatusCode    string
	StatusReason  string
	Protocol      string
	RequestXML    string
	ResponseXML   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
