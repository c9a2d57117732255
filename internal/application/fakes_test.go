package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/mkalas/sessionkeeper/internal/ports"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type fakeState struct {
	mu    sync.Mutex
	state domain.RunState
	saves int
}

var _ ports.StateRepository = (*fakeState)(nil)

func newFakeState() *fakeState {
	return &fakeState{state: domain.NewRunState()}
}

func (f *fakeState) Load(_ context.Context) (domain.RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeState) Save(_ context.Context, state domain.RunState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.saves++
	return nil
}

type fakeGateway struct {
	sessions []domain.Session
	listErr  error

	rotateErr map[domain.SessionKey]error
	rotated   []domain.SessionKey
}

var _ ports.SessionGateway = (*fakeGateway)(nil)

func (f *fakeGateway) ListSessions(_ context.Context) ([]domain.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sessions, nil
}

func (f *fakeGateway) Rotate(_ context.Context, key domain.SessionKey) (string, error) {
	if err := f.rotateErr[key]; err != nil {
		return "", err
	}
	f.rotated = append(f.rotated, key)
	return "rotated-" + string(key), nil
}
