package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/domain/simulate"
	"github.com/AppLock-Forge/applockforge/internal/domain/validation"
)

// SimulationService evaluates hypothetical file accesses and validates the
// stored policy as a whole.
type SimulationService struct {
	store  rule.Store
	logger *slog.Logger
}

// NewSimulationService creates a new SimulationService.
func NewSimulationService(store rule.Store, logger *slog.Logger) *SimulationService {
	return &SimulationService{store: store, logger: logger}
}

// Test evaluates one input against the stored policy.
func (s *SimulationService) Test(ctx context.Context, in rule.TestInput) (*simulate.Result, error) {
	rules, err := s.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	result := simulate.TestPolicy(rules, in)
	return &result, nil
}

// Simulate evaluates a batch of inputs against the stored policy.
func (s *SimulationService) Simulate(ctx context.Context, cases []rule.TestInput) ([]simulate.Result, error) {
	rules, err := s.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	results := simulate.Simulate(rules, cases)
	s.logger.Debug("simulation completed", "cases", len(cases), "rules", len(rules))
	return results, nil
}

// Validate checks every stored rule and reports structural errors, warnings,
// and Allow/Deny conflicts across the policy.
func (s *SimulationService) Validate(ctx context.Context) (*validation.Report, error) {
	rules, err := s.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	report := validation.ValidateAll(rules)
	return &report, nil
}
