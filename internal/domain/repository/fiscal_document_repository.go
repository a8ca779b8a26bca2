package repository

import (
	"context"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// FiscalDocumentRepository define el puerto de persistencia para FiscalDocument.
type FiscalDocumentRepository interface {
	// Create persiste el documento recién numerado (estado PENDING) con sus ítems y pagos.
	Create(ctx context.Context, doc *entity.FiscalDocument) error
	// Update actualiza estado, protocolo y artefactos XML; ítems y pagos son inmutables.
	Update(ctx context.Context, doc *entity.FiscalDocument) error
	GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error)
	GetByAccessKey(ctx context.Context, key string) (*entity.FiscalDocument, error)
	ListByStatus(ctx context.Context, status entity.DocumentStatus, limit int) ([]*entity.FiscalDocument, error)
}
