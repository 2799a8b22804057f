// Package service contains application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AppLock-Forge/applockforge/internal/domain/audit"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/domain/validation"
)

// ErrInvalidRule is returned when a rule fails structural validation.
var ErrInvalidRule = errors.New("invalid rule")

// ErrRuleNotFound is returned when a rule is not found.
var ErrRuleNotFound = errors.New("rule not found")

// invalidRule wraps field errors into an ErrInvalidRule chain.
func invalidRule(errs []validation.FieldError) error {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Field + ": " + e.Message
	}
	return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(parts, "; "))
}

// CreateResult reports the outcome of a create request. Created is false
// when an equivalent rule already existed and was returned instead.
type CreateResult struct {
	Rule    *rule.Rule
	Created bool
}

// RuleService provides CRUD operations on rules with validation,
// duplicate suppression, and change journaling.
type RuleService struct {
	store   rule.Store
	journal audit.Journal
	logger  *slog.Logger
}

// NewRuleService creates a new RuleService.
func NewRuleService(store rule.Store, journal audit.Journal, logger *slog.Logger) *RuleService {
	return &RuleService{
		store:   store,
		journal: journal,
		logger:  logger,
	}
}

// List returns rules in insertion order, optionally filtered to one
// collection.
func (s *RuleService) List(ctx context.Context, collection rule.Collection) ([]rule.Rule, error) {
	return s.store.List(ctx, collection)
}

// Get returns a single rule by ID.
// Returns ErrRuleNotFound if the rule does not exist.
func (s *RuleService) Get(ctx context.Context, id string) (*rule.Rule, error) {
	r, err := s.store.Get(ctx, id)
	if errors.Is(err, rule.ErrRuleNotFound) {
		return nil, ErrRuleNotFound
	}
	return r, err
}

// Create validates and stores a new rule. Creating a rule equivalent to an
// existing one is idempotent: the stored rule is returned unchanged with
// Created=false and no new rule is added.
func (s *RuleService) Create(ctx context.Context, r *rule.Rule, actor string) (*CreateResult, error) {
	if report := validation.ValidateRule(r); len(report.Errors) > 0 {
		return nil, invalidRule(report.Errors)
	}

	existing, err := s.store.FindEquivalent(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("check for duplicate: %w", err)
	}
	if existing != nil {
		s.logger.Info("duplicate rule suppressed",
			"rule_id", existing.ID,
			"name", r.Name,
			"collection", r.Collection)
		return &CreateResult{Rule: existing, Created: false}, nil
	}

	now := time.Now().UTC()
	r.ID = uuid.New().String()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.store.Insert(ctx, r); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}

	s.record(ctx, audit.ChangeRecord{
		Timestamp:  now,
		Change:     audit.ChangeCreated,
		Actor:      actor,
		RuleID:     r.ID,
		RuleName:   r.Name,
		Collection: r.Collection,
	})
	s.logger.Info("rule created", "rule_id", r.ID, "name", r.Name, "collection", r.Collection)

	return &CreateResult{Rule: r, Created: true}, nil
}

// UpdateRuleInput holds the input for updating a rule. Nil fields keep the
// stored value.
type UpdateRuleInput struct {
	Name           *string             `json:"name,omitempty"`
	Description    *string             `json:"description,omitempty"`
	Collection     *rule.Collection    `json:"collection,omitempty"`
	Action         *rule.Action        `json:"action,omitempty"`
	UserOrGroupSid *string             `json:"user_or_group_sid,omitempty"`
	Conditions     *rule.ConditionList `json:"conditions,omitempty"`
	Exceptions     *rule.ConditionList `json:"exceptions,omitempty"`
}

func (u UpdateRuleInput) apply(r *rule.Rule) {
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Collection != nil {
		r.Collection = *u.Collection
	}
	if u.Action != nil {
		r.Action = *u.Action
	}
	if u.UserOrGroupSid != nil {
		r.UserOrGroupSid = *u.UserOrGroupSid
	}
	if u.Conditions != nil {
		r.Conditions = *u.Conditions
	}
	if u.Exceptions != nil {
		r.Exceptions = *u.Exceptions
	}
}

// Update merges the provided fields into an existing rule, validates the
// result, and persists it. The creation timestamp is preserved.
func (s *RuleService) Update(ctx context.Context, id string, input UpdateRuleInput, actor string) (*rule.Rule, error) {
	current, err := s.store.Get(ctx, id)
	if errors.Is(err, rule.ErrRuleNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load rule: %w", err)
	}

	r := current
	input.apply(r)

	if report := validation.ValidateRule(r); len(report.Errors) > 0 {
		return nil, invalidRule(report.Errors)
	}

	now := time.Now().UTC()
	r.UpdatedAt = now

	if err := s.store.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}

	s.record(ctx, audit.ChangeRecord{
		Timestamp:  now,
		Change:     audit.ChangeUpdated,
		Actor:      actor,
		RuleID:     r.ID,
		RuleName:   r.Name,
		Collection: r.Collection,
	})
	s.logger.Info("rule updated", "rule_id", r.ID, "name", r.Name)

	return r, nil
}

// Delete removes a rule by ID.
// Returns ErrRuleNotFound if the rule does not exist.
func (s *RuleService) Delete(ctx context.Context, id, actor string) error {
	current, err := s.store.Get(ctx, id)
	if errors.Is(err, rule.ErrRuleNotFound) {
		return ErrRuleNotFound
	}
	if err != nil {
		return fmt.Errorf("load rule: %w", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, rule.ErrRuleNotFound) {
			return ErrRuleNotFound
		}
		return fmt.Errorf("delete rule: %w", err)
	}

	s.record(ctx, audit.ChangeRecord{
		Timestamp:  time.Now().UTC(),
		Change:     audit.ChangeDeleted,
		Actor:      actor,
		RuleID:     id,
		RuleName:   current.Name,
		Collection: current.Collection,
	})
	s.logger.Info("rule deleted", "rule_id", id, "name", current.Name)

	return nil
}

// DeleteAll removes every rule, or every rule in one collection.
func (s *RuleService) DeleteAll(ctx context.Context, collection rule.Collection, actor string) error {
	if err := s.store.DeleteAll(ctx, collection); err != nil {
		return fmt.Errorf("delete rules: %w", err)
	}

	detail := "all collections"
	if collection != "" {
		detail = string(collection)
	}
	s.record(ctx, audit.ChangeRecord{
		Timestamp:  time.Now().UTC(),
		Change:     audit.ChangeDeleted,
		Actor:      actor,
		Collection: collection,
		Detail:     "cleared " + detail,
	})
	s.logger.Info("rules cleared", "collection", detail)

	return nil
}

// RecentChanges returns the last n journal entries, newest first.
func (s *RuleService) RecentChanges(n int) []audit.ChangeRecord {
	return s.journal.Recent(n)
}

// record appends to the journal, logging instead of failing the mutation
// when the journal write errors.
func (s *RuleService) record(ctx context.Context, rec audit.ChangeRecord) {
	if err := s.journal.Append(ctx, rec); err != nil {
		s.logger.Error("journal append failed", "change", rec.Change, "rule_id", rec.RuleID, "error", err)
	}
}
