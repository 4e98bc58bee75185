package port

import (
	"context"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, order *domain.Order) error
	Close() error
}
