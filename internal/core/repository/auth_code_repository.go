package repository

import (
	"context"

	"github.com/acredita/respaldo/internal/core/domain"
)

type AuthCodeRepository interface {
	Create(ctx context.Context, code *domain.AuthCode) error
	FindByCode(ctx context.Context, code string) (*domain.AuthCode, error)
	Delete(ctx context.Context, code string) error
	DeleteExpired(ctx context.Context) error
}
