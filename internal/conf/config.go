// Package conf loads and validates the opsbridge configuration: API
// credentials for the two remote services, checkpoint storage settings,
// and the three rule tables that drive the bridge (actions, services,
// users).
package conf

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

const defaultCheckpointDir = "/var/lib/opsbridge"

// Settings is the full application configuration.
type Settings struct {
	PagerDuty  PagerDutySettings         `mapstructure:"pagerduty"`
	Jira       JiraSettings              `mapstructure:"jira"`
	Checkpoint CheckpointSettings        `mapstructure:"checkpoint"`
	Actions    map[string]ActionRule     `mapstructure:"actions"`
	Services   map[string]ServiceMapping `mapstructure:"services"`
	Users      map[string]string         `mapstructure:"users"` // username → email
}

// PagerDutySettings holds PagerDuty API access configuration.
type PagerDutySettings struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

// JiraSettings holds JIRA API access configuration. Application names the
// remote-link application type used to tag and recognize our own links.
type JiraSettings struct {
	Address     string `mapstructure:"address"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Application string `mapstructure:"application"`
}

// CheckpointSettings holds checkpoint storage configuration. Each sync
// direction keeps its own timestamp file under Directory.
type CheckpointSettings struct {
	Directory   string   `mapstructure:"directory"`
	LockTimeout Duration `mapstructure:"lock_timeout"`
	RunTimeout  Duration `mapstructure:"run_timeout"`
}

// PagerDutyFile returns the checkpoint file path for the PagerDuty→JIRA
// direction.
func (c CheckpointSettings) PagerDutyFile() string {
	return filepath.Join(c.Directory, "pagerduty.ts")
}

// JiraFile returns the checkpoint file path for the JIRA→PagerDuty
// direction.
func (c CheckpointSettings) JiraFile() string {
	return filepath.Join(c.Directory, "jira.ts")
}

// ActionRule describes what to do in the ticket system when a log entry of
// a given type arrives, and (in the reverse direction) which issue states
// push an incident status update of the same name.
type ActionRule struct {
	Create        bool     `mapstructure:"create"`
	Assign        bool     `mapstructure:"assign"`
	Comment       bool     `mapstructure:"comment"`
	Link          bool     `mapstructure:"link"`
	Transition    string   `mapstructure:"transition"`
	MatchStatus   []string `mapstructure:"match_status"`
	MatchPriority []string `mapstructure:"match_priority"`
}

// MatchesStatus reports whether the rule applies to the given status.
// An empty filter matches everything.
func (r ActionRule) MatchesStatus(status string) bool {
	if len(r.MatchStatus) == 0 {
		return true
	}
	return contains(r.MatchStatus, status)
}

// MatchesIssue reports whether the rule's reverse-direction filters accept
// an issue in the given status and priority. Unlike MatchesStatus, at
// least one filter must name the value: a rule with no filters never
// pushes incident updates.
func (r ActionRule) MatchesIssue(status, priority string) bool {
	if contains(r.MatchStatus, status) {
		return true
	}
	return contains(r.MatchPriority, priority)
}

func contains(values []string, item string) bool {
	for _, v := range values {
		if v == item {
			return true
		}
	}
	return false
}

// ServiceMapping maps a PagerDuty service to a JIRA project and issue
// type. CreatePriority, when set, overrides the default priority on
// created issues.
type ServiceMapping struct {
	Project        string `mapstructure:"project"`
	IssueType      string `mapstructure:"issue_type"`
	CreatePriority string `mapstructure:"create_priority"`
}

// UsernameForEmail looks up the JIRA username mapped to an email address.
func (s *Settings) UsernameForEmail(email string) (string, bool) {
	for username, mapped := range s.Users {
		if mapped == email {
			return username, true
		}
	}
	return "", false
}

// ProjectIssueTypePairs returns the distinct project/issue-type pairs of
// all configured service mappings, for the reverse-direction issue query.
func (s *Settings) ProjectIssueTypePairs() [][2]string {
	seen := make(map[[2]string]struct{}, len(s.Services))
	pairs := make([][2]string, 0, len(s.Services))
	for _, mapping := range s.Services {
		pair := [2]string{mapping.Project, mapping.IssueType}
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}
	return pairs
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("checkpoint.directory", defaultCheckpointDir)
	v.SetDefault("checkpoint.lock_timeout", "10s")
	v.SetDefault("checkpoint.run_timeout", "300s")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &settings, nil
}

// Validate checks that the settings are complete enough to run.
func (s *Settings) Validate() error {
	if s.PagerDuty.Address == "" {
		return fmt.Errorf("pagerduty.address is required")
	}
	if s.PagerDuty.Token == "" {
		return fmt.Errorf("pagerduty.token is required")
	}
	if s.Jira.Address == "" {
		return fmt.Errorf("jira.address is required")
	}
	if s.Jira.Username == "" || s.Jira.Password == "" {
		return fmt.Errorf("jira.username and jira.password are required")
	}
	if s.Jira.Application == "" {
		return fmt.Errorf("jira.application is required")
	}
	if s.Checkpoint.LockTimeout <= 0 {
		return fmt.Errorf("checkpoint.lock_timeout must be positive")
	}
	if s.Checkpoint.RunTimeout <= 0 {
		return fmt.Errorf("checkpoint.run_timeout must be positive")
	}
	for name, mapping := range s.Services {
		if mapping.Project == "" || mapping.IssueType == "" {
			return fmt.Errorf("service %q needs both project and issue_type", name)
		}
	}
	return nil
}
