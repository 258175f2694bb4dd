package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// Seed is the optional YAML file of SLA policies and assignment rules applied at startup.
type Seed struct {
	SLAConfigurations []SeedSLAConfiguration `yaml:"sla_configurations"`
	AssignmentRules   []SeedAssignmentRule   `yaml:"assignment_rules"`
}

// SeedSLAConfiguration is one policy entry.
type SeedSLAConfiguration struct {
	Name                string  `yaml:"name"`
	Category            string  `yaml:"category"`
	Priority            string  `yaml:"priority"`
	ResponseTimeHours   float64 `yaml:"response_time_hours"`
	ResolutionTimeHours float64 `yaml:"resolution_time_hours"`
	AutoAssignToRole    string  `yaml:"auto_assign_to_role"`
	Active              *bool   `yaml:"is_active"`
}

// SeedAssignmentRule is one rule entry. Conditions use the {field: value | [values]} form.
type SeedAssignmentRule struct {
	Name           string         `yaml:"name"`
	Priority       int            `yaml:"priority"`
	Conditions     map[string]any `yaml:"conditions"`
	AssignToUserID string         `yaml:"assign_to_user_id"`
	AssignToRole   string         `yaml:"assign_to_role"`
	Active         *bool          `yaml:"is_active"`
}

// LoadSeed reads and validates the seed file at path.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &seed, nil
}

// Policies converts the seed entries into domain configurations.
func (s *Seed) Policies() ([]domain.SLAConfiguration, error) {
	out := make([]domain.SLAConfiguration, 0, len(s.SLAConfigurations))
	for i, entry := range s.SLAConfigurations {
		priority := domain.TicketPriority(entry.Priority)
		if !priority.Valid() {
			return nil, fmt.Errorf("sla_configurations[%d]: unknown priority %q", i, entry.Priority)
		}
		if entry.ResponseTimeHours <= 0 || entry.ResolutionTimeHours <= 0 {
			return nil, fmt.Errorf("sla_configurations[%d]: time budgets must be positive", i)
		}
		cfg := domain.SLAConfiguration{
			Name:                entry.Name,
			Category:            entry.Category,
			Priority:            priority,
			ResponseTimeHours:   entry.ResponseTimeHours,
			ResolutionTimeHours: entry.ResolutionTimeHours,
			IsActive:            entry.Active == nil || *entry.Active,
		}
		if entry.AutoAssignToRole != "" {
			role := domain.UserRole(entry.AutoAssignToRole)
			if !role.Valid() {
				return nil, fmt.Errorf("sla_configurations[%d]: unknown role %q", i, entry.AutoAssignToRole)
			}
			cfg.AutoAssignToRole = &role
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Rules converts the seed entries into domain assignment rules.
func (s *Seed) Rules() ([]domain.AssignmentRule, error) {
	out := make([]domain.AssignmentRule, 0, len(s.AssignmentRules))
	for i, entry := range s.AssignmentRules {
		conds, err := domain.ParseConditions(entry.Conditions)
		if err != nil {
			return nil, fmt.Errorf("assignment_rules[%d]: %w", i, err)
		}
		rule := domain.AssignmentRule{
			Name:       entry.Name,
			Priority:   entry.Priority,
			Conditions: conds,
			IsActive:   entry.Active == nil || *entry.Active,
		}
		if entry.AssignToUserID != "" {
			userID := entry.AssignToUserID
			rule.AssignToUserID = &userID
		}
		if entry.AssignToRole != "" {
			role := domain.UserRole(entry.AssignToRole)
			rule.AssignToRole = &role
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("assignment_rules[%d]: %w", i, err)
		}
		out = append(out, rule)
	}
	return out, nil
}
