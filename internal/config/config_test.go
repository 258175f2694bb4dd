package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// chdir mirrors testing.T.Chdir (Go 1.24+): it changes the working
// directory and restores the previous one when the test ends.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SLA_SCAN_INTERVAL", "")
	t.Setenv("SLA_WARNING_RATIO", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, 60*time.Second, cfg.SLA.ScanInterval)
	assert.Equal(t, 0.8, cfg.SLA.WarningRatio)
	assert.Equal(t, 5, cfg.SLA.RebalanceThreshold)
	assert.Equal(t, "*/15 * * * *", cfg.SLA.RebalanceSchedule)
	assert.Equal(t, "internal", cfg.Notification.DefaultChannel)
	assert.False(t, cfg.Notification.SlackConfigured())
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SLA_SCAN_INTERVAL", "15s")
	t.Setenv("SLA_WARNING_RATIO", "0.75")
	t.Setenv("SLA_REBALANCE_THRESHOLD", "8")
	t.Setenv("NOTIFY_SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("POSTGRES_APPLICATION_NAME", "sla-worker")
	t.Setenv("POSTGRES_STATEMENT_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.SLA.ScanInterval)
	assert.Equal(t, 0.75, cfg.SLA.WarningRatio)
	assert.Equal(t, 8, cfg.SLA.RebalanceThreshold)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "sla-worker", cfg.Postgres.ApplicationName)
	assert.Equal(t, 2*time.Second, cfg.Postgres.StatementTimeout)
	assert.True(t, cfg.Notification.SlackConfigured())
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("REDIS_DB", "zero")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("REDIS_DB", "0")
	t.Setenv("SLA_WARNING_RATIO", "1.5")
	_, err = Load()
	assert.Error(t, err)
}

const seedYAML = `
sla_configurations:
  - name: Urgent support
    category: Support
    priority: urgent
    response_time_hours: 1
    resolution_time_hours: 8
    auto_assign_to_role: agent
  - name: Low anything
    priority: low
    response_time_hours: 24
    resolution_time_hours: 120
    is_active: false
assignment_rules:
  - name: Support escalations
    priority: 10
    conditions:
      category: Support
      priority: [urgent, high]
    assign_to_role: agent
`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	policies, err := seed.Policies()
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, domain.TicketPriorityUrgent, policies[0].Priority)
	assert.True(t, policies[0].IsActive)
	require.NotNil(t, policies[0].AutoAssignToRole)
	assert.Equal(t, domain.RoleAgent, *policies[0].AutoAssignToRole)
	assert.False(t, policies[1].IsActive)

	rules, err := seed.Rules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Conditions.Match(domain.TicketCandidate{Category: "Support", Priority: domain.TicketPriorityHigh}))
	assert.False(t, rules[0].Conditions.Match(domain.TicketCandidate{Category: "Support", Priority: domain.TicketPriorityLow}))
}

func TestSeedValidation(t *testing.T) {
	seed := &Seed{SLAConfigurations: []SeedSLAConfiguration{{Name: "bad", Priority: "asap", ResponseTimeHours: 1, ResolutionTimeHours: 2}}}
	_, err := seed.Policies()
	assert.Error(t, err)

	seed = &Seed{AssignmentRules: []SeedAssignmentRule{{Name: "no target", Conditions: map[string]any{"category": "x"}}}}
	_, err = seed.Rules()
	assert.Error(t, err)

	seed = &Seed{AssignmentRules: []SeedAssignmentRule{{Name: "bad field", AssignToRole: "agent", Conditions: map[string]any{"mood": "x"}}}}
	_, err = seed.Rules()
	assert.Error(t, err)
}
