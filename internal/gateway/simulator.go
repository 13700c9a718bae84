package gateway

import (
	"context"
	"sync"
	"time"

	"esim-service/internal/model"
	"esim-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Simulator is an in-process gateway for development without Intune
// credentials and for tests. Failures and delays are scripted.
type Simulator struct {
	mu        sync.Mutex
	deployErr error
	assignErr error
	statusErr error
	status    *Status
	delay     time.Duration
	calls     map[string]int
	assigned  map[string]Target
}

// NewSimulator returns a simulator whose deployments succeed on every device
func NewSimulator() *Simulator {
	return &Simulator{
		calls:    map[string]int{},
		assigned: map[string]Target{},
	}
}

// FailDeploy makes subsequent Deploy calls return err; nil restores success
func (s *Simulator) FailDeploy(err error) {
	s.mu.Lock()
	s.deployErr = err
	s.mu.Unlock()
}

// FailAssign makes subsequent Assign calls return err
func (s *Simulator) FailAssign(err error) {
	s.mu.Lock()
	s.assignErr = err
	s.mu.Unlock()
}

// FailStatus makes subsequent GetStatus calls return err
func (s *Simulator) FailStatus(err error) {
	s.mu.Lock()
	s.statusErr = err
	s.mu.Unlock()
}

// SetStatus fixes the overview returned by GetStatus
func (s *Simulator) SetStatus(status Status) {
	s.mu.Lock()
	s.status = &status
	s.mu.Unlock()
}

// SetDelay makes every call wait; a context deadline turns the wait into a timeout
func (s *Simulator) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Calls returns how many times the named call reached the simulator
func (s *Simulator) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// AssignedTo returns the last assignment target for a configuration
func (s *Simulator) AssignedTo(graphID string) (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.assigned[graphID]
	return t, ok
}

func (s *Simulator) enter(ctx context.Context, name string) error {
	s.mu.Lock()
	s.calls[name]++
	delay := s.delay
	s.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return &model.GatewayError{Call: name, Timeout: true, Err: ctx.Err()}
	}
}

// Deploy records the call and returns a fresh configuration id
func (s *Simulator) Deploy(ctx context.Context, profile *model.Profile) (*DeployResult, error) {
	if err := s.enter(ctx, CallDeploy); err != nil {
		return nil, err
	}
	s.mu.Lock()
	err := s.deployErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	graphID := "sim-" + uuid.NewString()
	s.mu.Lock()
	s.assigned[graphID] = Target{DeviceID: profile.DeviceID}
	s.mu.Unlock()

	logger.FromContext(ctx).Info("Simulated deployment accepted",
		zap.String("profile_id", profile.ID),
		zap.String("graph_id", graphID))
	return &DeployResult{GraphID: graphID, Accepted: true}, nil
}

// Assign records the new target
func (s *Simulator) Assign(ctx context.Context, graphID string, target Target) error {
	if err := s.enter(ctx, CallAssign); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignErr != nil {
		return s.assignErr
	}
	s.assigned[graphID] = target
	return nil
}

// GetStatus returns the scripted overview, or one succeeded device
func (s *Simulator) GetStatus(ctx context.Context, graphID string) (*Status, error) {
	if err := s.enter(ctx, CallGetStatus); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	if s.status != nil {
		st := *s.status
		return &st, nil
	}
	return &Status{Total: 1, Succeeded: 1}, nil
}
