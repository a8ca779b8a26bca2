package entity

import "time"

// Roles válidos para User.
const (
	RoleAdmin    = "admin"    // configura emisor, certificado, inutiliza y reintenta cola
	RoleOperator = "operador" // emite, cancela y consulta
)

// User operador del backend fiscal.
type User struct {
	ID           string
	Email        string
	PasswordHash string // bcrypt hash, nunca plano en dominio después de persistir
	Name         string
	Role         string
	Status       string // active, inactive
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
