package pagerduty

import (
	"fmt"
	"time"
)

// Incident statuses.
const (
	StatusTriggered    = "triggered"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Incident update actions accepted by the incidents PUT endpoint.
const (
	ActionTrigger     = "trigger"
	ActionAcknowledge = "acknowledge"
	ActionResolve     = "resolve"
)

// Log entry types with irregular comment phrasing. Regular types
// (trigger, acknowledge, resolve, notify, assign, escalate, ...) arrive
// as free-form strings and are inflected mechanically.
const (
	TypeNotify                = "notify"
	TypeReachTriggerLimit     = "reach_trigger_limit"
	TypeRepeatEscalationPath  = "repeat_escalation_path"
	TypeExhaustEscalationPath = "exhaust_escalation_path"
)

// Channel types identifying where a log entry originated.
const (
	ChannelAuto    = "auto"
	ChannelAPI     = "api"
	ChannelWebsite = "website"
	ChannelNagios  = "nagios"
	ChannelNote    = "note"
	ChannelTimeout = "timeout"
)

// Notification delivery statuses.
const (
	NotificationSuccess    = "success"
	NotificationNoAnswer   = "no_answer"
	NotificationInProgress = "in_progress"
)

// Actor identifies a user or automation referenced by a log entry.
type Actor struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Channel describes the origin of a log entry. Details carries the
// free-form monitoring fields (HOSTNAME, SERVICEDESC, ...) used to derive
// issue summaries and descriptions. Content is set for note channels.
type Channel struct {
	Type    string            `json:"type"`
	Details map[string]string `json:"details"`
	Content string            `json:"content"`
}

// Notification describes a delivery attempt attached to a notify entry.
type Notification struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Address string `json:"address"`
}

// Service names the PagerDuty service an incident belongs to.
type Service struct {
	Name string `json:"name"`
}

// Incident is a PagerDuty incident as embedded in log entries or fetched
// directly.
type Incident struct {
	ID                 string            `json:"id"`
	IncidentNumber     int               `json:"incident_number"`
	Status             string            `json:"status"`
	HTMLURL            string            `json:"html_url"`
	TriggerSummaryData map[string]string `json:"trigger_summary_data"`
	AssignedToUser     *Actor            `json:"assigned_to_user"`
}

// LogEntry is an immutable incident event record. Optional associations
// are pointers; absence means the event did not carry them.
type LogEntry struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	CreatedAt    string        `json:"created_at"`
	Agent        *Actor        `json:"agent"`
	User         *Actor        `json:"user"`
	AssignedUser *Actor        `json:"assigned_user"`
	Channel      *Channel      `json:"channel"`
	Notification *Notification `json:"notification"`
	Service      Service       `json:"service"`
	Incident     *Incident     `json:"incident"`
}

// Created parses the entry's creation timestamp.
func (e *LogEntry) Created() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, e.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("pagerduty: log entry %s: invalid created_at %q: %w", e.ID, e.CreatedAt, err)
	}
	return t, nil
}

// Validate checks the fields every downstream consumer relies on. Remote
// records are validated here, at the boundary where they are constructed,
// so the processor can use them without re-checking.
func (e *LogEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("pagerduty: log entry missing id")
	}
	if e.Type == "" {
		return fmt.Errorf("pagerduty: log entry %s missing type", e.ID)
	}
	if _, err := e.Created(); err != nil {
		return err
	}
	if e.Incident == nil {
		return fmt.Errorf("pagerduty: log entry %s missing incident", e.ID)
	}
	if e.Incident.ID == "" {
		return fmt.Errorf("pagerduty: log entry %s incident missing id", e.ID)
	}
	return nil
}
