package repository

import (
	"context"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// AuthorityAttemptRepository bitácora de auditoría de llamadas a la SEFAZ.
type AuthorityAttemptRepository interface {
	Record(ctx context.Context, attempt *entity.AuthorityAttempt) error
	ListByAccessKey(ctx context.Context, key string) ([]*entity.AuthorityAttempt, error)
}
