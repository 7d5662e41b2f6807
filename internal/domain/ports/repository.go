package ports

import (
	"context"

	"streamgate/internal/domain"
)

type WatchProgressRepository interface {
	Save(ctx context.Context, w domain.WatchProgress) error
	Get(ctx context.Context, infoHash string, fileIndex int) (domain.WatchProgress, error)
	Remove(ctx context.Context, infoHash string, fileIndex int) error
	Clear(ctx context.Context) error
	ListRecent(ctx context.Context, limit int) ([]domain.WatchProgress, error)
}
