package fixture

import (
	"context"
	"sync"

	"github.com/strefethen/heos-hub-go/internal/heos"
)

// Session is a dialer that keeps the controller it opened, so development
// tooling can drive the fleet after the platform has connected.
type Session struct {
	dial heos.Dialer

	mu         sync.Mutex
	controller *Controller
}

// NewSession dials the fleet at path.
func NewSession(path string) *Session {
	return &Session{dial: Dialer(path)}
}

// Dial implements heos.Dialer.
func (s *Session) Dial(ctx context.Context, opts heos.ConnectOptions) (heos.Controller, error) {
	controller, err := s.dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.controller = controller.(*Controller)
	s.mu.Unlock()
	return controller, nil
}

// Controller returns the last controller opened, if any.
func (s *Session) Controller() (*Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller, s.controller != nil
}
