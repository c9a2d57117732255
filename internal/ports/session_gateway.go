package ports

import (
	"context"

	"github.com/mkalas/sessionkeeper/internal/domain"
)

// SessionGateway is the external registry that owns session lifecycle.
// ListSessions enumerates all active sessions with token counts; Rotate
// terminates one session cleanly and returns the successor's rotating
// identifier.
type SessionGateway interface {
	ListSessions(ctx context.Context) ([]domain.Session, error)
	Rotate(ctx context.Context, key domain.SessionKey) (string, error)
}
