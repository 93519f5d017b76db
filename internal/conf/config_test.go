package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
pagerduty:
  address: https://acme.pagerduty.com/api/v1
  token: pd-token
jira:
  address: https://jira.acme.com/rest/api/2
  username: bridge
  password: secret
  application: com.acme.opsbridge
checkpoint:
  directory: /tmp/opsbridge
  lock_timeout: 5s
actions:
  trigger:
    create: true
    comment: true
    link: true
  acknowledge:
    comment: true
    transition: Start Progress
    match_status: [triggered, acknowledged]
  resolve:
    transition: Resolve Issue
    match_status: [Resolved, Closed]
services:
  production:
    project: OPS
    issue_type: Incident
    create_priority: Critical
  staging:
    project: OPS
    issue_type: Incident
users:
  alice: a@x.com
  bob: b@x.com
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opsbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	settings, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://acme.pagerduty.com/api/v1", settings.PagerDuty.Address)
	assert.Equal(t, "pd-token", settings.PagerDuty.Token)
	assert.Equal(t, "bridge", settings.Jira.Username)
	assert.Equal(t, "com.acme.opsbridge", settings.Jira.Application)

	assert.Equal(t, 5*time.Second, settings.Checkpoint.LockTimeout.Std())
	assert.Equal(t, 300*time.Second, settings.Checkpoint.RunTimeout.Std(), "run timeout should default to 300s")
	assert.Equal(t, "/tmp/opsbridge/pagerduty.ts", settings.Checkpoint.PagerDutyFile())
	assert.Equal(t, "/tmp/opsbridge/jira.ts", settings.Checkpoint.JiraFile())

	trigger := settings.Actions["trigger"]
	assert.True(t, trigger.Create)
	assert.True(t, trigger.Comment)
	assert.True(t, trigger.Link)
	assert.False(t, trigger.Assign)

	acknowledge := settings.Actions["acknowledge"]
	assert.Equal(t, "Start Progress", acknowledge.Transition)
	assert.Equal(t, []string{"triggered", "acknowledged"}, acknowledge.MatchStatus)

	assert.Equal(t, "Critical", settings.Services["production"].CreatePriority)
	assert.Equal(t, "a@x.com", settings.Users["alice"])
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"missing pagerduty address", func(s *Settings) { s.PagerDuty.Address = "" }},
		{"missing pagerduty token", func(s *Settings) { s.PagerDuty.Token = "" }},
		{"missing jira address", func(s *Settings) { s.Jira.Address = "" }},
		{"missing jira credentials", func(s *Settings) { s.Jira.Password = "" }},
		{"missing application", func(s *Settings) { s.Jira.Application = "" }},
		{"zero lock timeout", func(s *Settings) { s.Checkpoint.LockTimeout = 0 }},
		{"service without project", func(s *Settings) {
			s.Services["broken"] = ServiceMapping{IssueType: "Incident"}
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings, err := Load(writeConfig(t, testConfig))
			require.NoError(t, err)
			tt.mutate(settings)
			assert.Error(t, settings.Validate())
		})
	}
}

func TestActionRule_MatchesStatus(t *testing.T) {
	t.Parallel()

	rule := ActionRule{MatchStatus: []string{"triggered", "acknowledged"}}
	assert.True(t, rule.MatchesStatus("triggered"))
	assert.False(t, rule.MatchesStatus("resolved"))

	empty := ActionRule{}
	assert.True(t, empty.MatchesStatus("resolved"), "empty filter should match any status")
}

func TestActionRule_MatchesIssue(t *testing.T) {
	t.Parallel()

	rule := ActionRule{MatchStatus: []string{"Resolved"}, MatchPriority: []string{"Blocker"}}
	assert.True(t, rule.MatchesIssue("Resolved", "Major"), "status filter should match")
	assert.True(t, rule.MatchesIssue("Open", "Blocker"), "priority filter should match")
	assert.False(t, rule.MatchesIssue("Open", "Major"))

	empty := ActionRule{}
	assert.False(t, empty.MatchesIssue("Resolved", "Blocker"), "a rule with no filters should never push incident updates")
}

func TestSettings_UsernameForEmail(t *testing.T) {
	t.Parallel()

	settings, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	username, ok := settings.UsernameForEmail("a@x.com")
	assert.True(t, ok)
	assert.Equal(t, "alice", username)

	_, ok = settings.UsernameForEmail("nobody@x.com")
	assert.False(t, ok)
}

func TestSettings_ProjectIssueTypePairs(t *testing.T) {
	t.Parallel()

	settings, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	// production and staging map to the same pair; it must appear once.
	pairs := settings.ProjectIssueTypePairs()
	assert.Equal(t, [][2]string{{"OPS", "Incident"}}, pairs)
}
