package ports

import (
	"context"

	"github.com/mkalas/sessionkeeper/internal/domain"
)

type StateRepository interface {
	Load(ctx context.Context) (domain.RunState, error)
	Save(ctx context.Context, state domain.RunState) error
}
