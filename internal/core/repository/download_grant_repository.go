package repository

import (
	"context"

	"github.com/acredita/respaldo/internal/core/domain"
)

type DownloadGrantRepository interface {
	Create(ctx context.Context, grant *domain.DownloadGrant) error
	FindByToken(ctx context.Context, token string) (*domain.DownloadGrant, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
}
