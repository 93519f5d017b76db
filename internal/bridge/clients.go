// Package bridge contains the event-to-action core: it decides, for each
// incoming PagerDuty log entry, which JIRA actions to take, synthesizes
// the comment text, and runs the two sync directions against their
// checkpoints.
package bridge

import (
	"context"
	"errors"

	"github.com/opsbridge/opsbridge/internal/jira"
	"github.com/opsbridge/opsbridge/internal/pagerduty"
)

// ErrNotificationPending signals that a log entry carries a notification
// whose delivery has not settled yet. Not an error condition: the run
// stops before this entry without advancing the checkpoint, and the next
// run picks it up once the delivery status is final.
var ErrNotificationPending = errors.New("bridge: notification delivery still in progress")

// PagerClient is the PagerDuty surface the bridge depends on.
type PagerClient interface {
	ListLogEntries(ctx context.Context, since string) ([]pagerduty.LogEntry, error)
	GetIncident(ctx context.Context, incidentID string) (*pagerduty.Incident, error)
	UpdateIncidentStatus(ctx context.Context, incidentID, action string) error
}

// TicketClient is the JIRA surface the bridge depends on.
type TicketClient interface {
	SearchIssue(ctx context.Context, project, issuetype, summary string) (*jira.Issue, error)
	UpdatedIssues(ctx context.Context, pairs [][2]string, since string) ([]jira.Issue, error)
	CreateIssue(ctx context.Context, fields jira.CreateIssueFields) (*jira.Issue, error)
	Transitions(ctx context.Context, issueKey string) ([]jira.Transition, error)
	ApplyTransition(ctx context.Context, issueKey string, transition jira.Transition, comment string) error
	AddComment(ctx context.Context, issueKey, body string) error
	SetAssignee(ctx context.Context, issueKey, username string) error
	UnresolvedRemoteLinks(ctx context.Context, issueKey string) ([]jira.RemoteLink, error)
	AddRemoteLink(ctx context.Context, issueKey, globalID, linkURL, title string, resolved bool) error
}

// CheckpointStore is the open checkpoint handle the run loops use.
// Satisfied by *checkpoint.Store.
type CheckpointStore interface {
	Read() (string, error)
	Write(value string) error
	Close() error
}

// StoreOpener opens a checkpoint store at the given path, acquiring its
// exclusive lock within the context deadline.
type StoreOpener func(ctx context.Context, path string) (CheckpointStore, error)
