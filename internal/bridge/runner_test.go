package bridge

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsbridge/opsbridge/internal/conf"
	"github.com/opsbridge/opsbridge/internal/jira"
	"github.com/opsbridge/opsbridge/internal/logger"
	"github.com/opsbridge/opsbridge/internal/pagerduty"
)

// fakePager is a PagerClient stub answering from canned data.
type fakePager struct {
	entries    []pagerduty.LogEntry
	listErr    error
	listedWith []string

	incidents map[string]*pagerduty.Incident
	updates   []string
}

func (f *fakePager) ListLogEntries(_ context.Context, since string) ([]pagerduty.LogEntry, error) {
	f.listedWith = append(f.listedWith, since)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

func (f *fakePager) GetIncident(_ context.Context, incidentID string) (*pagerduty.Incident, error) {
	incident, ok := f.incidents[incidentID]
	if !ok {
		return nil, errors.New("no such incident")
	}
	return incident, nil
}

func (f *fakePager) UpdateIncidentStatus(_ context.Context, incidentID, action string) error {
	f.updates = append(f.updates, incidentID+": "+action)
	return nil
}

// memoryStore is an in-memory CheckpointStore recording every write.
type memoryStore struct {
	value  string
	writes []string
	closed bool
}

func (m *memoryStore) Read() (string, error) {
	return m.value, nil
}

func (m *memoryStore) Write(value string) error {
	m.value = value
	m.writes = append(m.writes, value)
	return nil
}

func (m *memoryStore) Close() error {
	m.closed = true
	return nil
}

func bridgeSettings() *conf.Settings {
	settings := processorSettings()
	settings.Checkpoint = conf.CheckpointSettings{
		Directory:   "/unused",
		LockTimeout: conf.Duration(10 * time.Second),
		RunTimeout:  conf.Duration(5 * time.Minute),
	}
	return settings
}

func newTestBridge(t *testing.T, pager *fakePager, tickets *recordingTickets, store *memoryStore) *Bridge {
	t.Helper()
	return New(Config{
		Settings: bridgeSettings(),
		Pager:    pager,
		Tickets:  tickets,
		OpenStore: func(_ context.Context, _ string) (CheckpointStore, error) {
			return store, nil
		},
		Logger: logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
	})
}

func entryAt(id, createdAt string) pagerduty.LogEntry {
	entry := *triggerEntry()
	entry.ID = id
	entry.CreatedAt = createdAt
	return entry
}

func TestCheckPagerDuty_ProcessesOldestFirstAndAdvancesCheckpoint(t *testing.T) {
	t.Parallel()

	// Newest-first, as the service returns them.
	pager := &fakePager{entries: []pagerduty.LogEntry{
		entryAt("LOG3", "2026-08-30T10:03:00Z"),
		entryAt("LOG2", "2026-08-30T10:02:00Z"),
		entryAt("LOG1", "2026-08-30T10:01:00Z"),
	}}
	tickets := &recordingTickets{searchResult: &jira.Issue{Key: "OPS-9"}}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}

	b := newTestBridge(t, pager, tickets, store)
	processed, err := b.CheckPagerDuty(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, processed)
	assert.Equal(t, []string{"2026-08-30T10:00:00Z"}, pager.listedWith)
	assert.Equal(t,
		[]string{"2026-08-30T10:01:00Z", "2026-08-30T10:02:00Z", "2026-08-30T10:03:00Z"},
		store.writes,
		"checkpoint advances once per entry, oldest first")
	assert.Equal(t, "2026-08-30T10:03:00Z", store.value)
	assert.True(t, store.closed)
}

func TestCheckPagerDuty_SkipsEntriesAtOrBeforeCheckpoint(t *testing.T) {
	t.Parallel()

	pager := &fakePager{entries: []pagerduty.LogEntry{
		entryAt("LOG2", "2026-08-30T10:02:00Z"),
		entryAt("LOG1", "2026-08-30T10:01:00Z"),
	}}
	tickets := &recordingTickets{searchResult: &jira.Issue{Key: "OPS-9"}}
	store := &memoryStore{value: "2026-08-30T10:01:00Z"}

	b := newTestBridge(t, pager, tickets, store)
	processed, err := b.CheckPagerDuty(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, processed, "an entry exactly at the checkpoint is already done")
	assert.Equal(t, []string{"2026-08-30T10:02:00Z"}, store.writes)
}

func TestCheckPagerDuty_FailureKeepsCheckpointAtLastSuccess(t *testing.T) {
	t.Parallel()

	pager := &fakePager{entries: []pagerduty.LogEntry{
		entryAt("LOG2", "2026-08-30T10:02:00Z"),
		entryAt("LOG1", "2026-08-30T10:01:00Z"),
	}}
	// First entry succeeds against the existing issue; the second fails
	// its search with a server error.
	tickets := &recordingTickets{searchResult: &jira.Issue{Key: "OPS-9"}}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}
	b := newTestBridge(t, pager, tickets, store)

	failAfter := 1
	b.processor.tickets = failingAfter(tickets, failAfter)

	processed, err := b.CheckPagerDuty(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, "2026-08-30T10:01:00Z", store.value,
		"the failed entry must replay on the next run")
}

// failingTickets wraps a TicketClient and fails every SearchIssue call
// after the first n.
type failingTickets struct {
	TicketClient
	remaining int
}

func failingAfter(inner TicketClient, n int) *failingTickets {
	return &failingTickets{TicketClient: inner, remaining: n}
}

func (f *failingTickets) SearchIssue(ctx context.Context, project, issuetype, summary string) (*jira.Issue, error) {
	if f.remaining <= 0 {
		return nil, errors.New("jira unavailable")
	}
	f.remaining--
	return f.TicketClient.SearchIssue(ctx, project, issuetype, summary)
}

func TestCheckPagerDuty_PendingNotificationDefersRemainder(t *testing.T) {
	t.Parallel()

	pending := entryAt("LOG2", "2026-08-30T10:02:00Z")
	pending.Notification = &pagerduty.Notification{
		Type:   "sms",
		Status: pagerduty.NotificationInProgress,
	}

	pager := &fakePager{entries: []pagerduty.LogEntry{
		pending,
		entryAt("LOG1", "2026-08-30T10:01:00Z"),
	}}
	tickets := &recordingTickets{searchResult: &jira.Issue{Key: "OPS-9"}}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}

	b := newTestBridge(t, pager, tickets, store)
	processed, err := b.CheckPagerDuty(context.Background())
	require.NoError(t, err, "a pending notification ends the run cleanly")

	assert.Equal(t, 1, processed)
	assert.Equal(t, "2026-08-30T10:01:00Z", store.value,
		"the pending entry replays on the next run")
}

func TestCheckPagerDuty_RerunAfterCompletionIsIdempotent(t *testing.T) {
	t.Parallel()

	pager := &fakePager{entries: []pagerduty.LogEntry{
		entryAt("LOG1", "2026-08-30T10:01:00Z"),
	}}
	tickets := &recordingTickets{searchResult: &jira.Issue{Key: "OPS-9"}}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}
	b := newTestBridge(t, pager, tickets, store)

	processed, err := b.CheckPagerDuty(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	callsAfterFirst := len(tickets.calls)

	processed, err = b.CheckPagerDuty(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Len(t, tickets.calls, callsAfterFirst,
		"a rerun over processed entries makes no further ticket calls")
}

func TestCheckPagerDuty_InvalidCheckpointFails(t *testing.T) {
	t.Parallel()

	pager := &fakePager{}
	store := &memoryStore{value: "not a timestamp"}
	b := newTestBridge(t, pager, &recordingTickets{}, store)

	_, err := b.CheckPagerDuty(context.Background())
	require.Error(t, err)
	assert.Empty(t, pager.listedWith, "no remote call on a corrupt checkpoint")
}

func updatedIssue(key, status, priority, updated string) jira.Issue {
	return jira.Issue{
		Key: key,
		Fields: &jira.IssueFields{
			Status:   &jira.Named{Name: status},
			Priority: &jira.Named{Name: priority},
			Updated:  updated,
		},
	}
}

func reverseSettings() *conf.Settings {
	settings := bridgeSettings()
	settings.Actions = map[string]conf.ActionRule{
		"resolve": {
			MatchStatus: []string{"Resolved", "Closed"},
		},
		"acknowledge": {
			MatchStatus: []string{"In Progress"},
		},
		// Forward-only rule, never a reverse action.
		"notify": {Comment: true},
	}
	return settings
}

func newReverseBridge(t *testing.T, pager *fakePager, tickets *recordingTickets, store *memoryStore) *Bridge {
	t.Helper()
	return New(Config{
		Settings: reverseSettings(),
		Pager:    pager,
		Tickets:  tickets,
		OpenStore: func(_ context.Context, _ string) (CheckpointStore, error) {
			return store, nil
		},
		Logger: logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
	})
}

func TestCheckJira_ResolvesLinkedIncidents(t *testing.T) {
	t.Parallel()

	pager := &fakePager{incidents: map[string]*pagerduty.Incident{
		"PABCDEF": {ID: "PABCDEF", IncidentNumber: 7, Status: pagerduty.StatusAcknowledged},
	}}
	tickets := &recordingTickets{
		updated: []jira.Issue{
			updatedIssue("OPS-9", "Resolved", "Major", "2026-08-30T11:00:00Z"),
		},
		remoteLinks: map[string][]jira.RemoteLink{
			"OPS-9": {{GlobalID: "PABCDEF"}},
		},
	}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}

	b := newReverseBridge(t, pager, tickets, store)
	processed, err := b.CheckJira(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"PABCDEF: resolve"}, pager.updates)
	assert.Equal(t, []string{"2026-08-30T11:00:00Z"}, store.writes,
		"checkpoint advances to the issue's updated time")
}

func TestCheckJira_SkipsIncidentAlreadyInTargetStatus(t *testing.T) {
	t.Parallel()

	pager := &fakePager{incidents: map[string]*pagerduty.Incident{
		"PABCDEF": {ID: "PABCDEF", IncidentNumber: 7, Status: pagerduty.StatusResolved},
	}}
	tickets := &recordingTickets{
		updated: []jira.Issue{
			updatedIssue("OPS-9", "Resolved", "Major", "2026-08-30T11:00:00Z"),
		},
		remoteLinks: map[string][]jira.RemoteLink{
			"OPS-9": {{GlobalID: "PABCDEF"}},
		},
	}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}

	b := newReverseBridge(t, pager, tickets, store)
	processed, err := b.CheckJira(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Empty(t, pager.updates, "an already resolved incident is left alone")
}

func TestCheckJira_IssueWithoutMatchingRuleIsIgnored(t *testing.T) {
	t.Parallel()

	pager := &fakePager{incidents: map[string]*pagerduty.Incident{
		"PABCDEF": {ID: "PABCDEF", IncidentNumber: 7, Status: pagerduty.StatusTriggered},
	}}
	tickets := &recordingTickets{
		updated: []jira.Issue{
			updatedIssue("OPS-9", "Open", "Major", "2026-08-30T11:00:00Z"),
		},
		remoteLinks: map[string][]jira.RemoteLink{
			"OPS-9": {{GlobalID: "PABCDEF"}},
		},
	}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}

	b := newReverseBridge(t, pager, tickets, store)
	processed, err := b.CheckJira(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Empty(t, pager.updates)
	assert.Equal(t, []string{"2026-08-30T11:00:00Z"}, store.writes,
		"the checkpoint still advances past unmatched issues")
}

func TestCheckJira_IssueWithoutLinksMakesNoIncidentCalls(t *testing.T) {
	t.Parallel()

	pager := &fakePager{}
	tickets := &recordingTickets{
		updated: []jira.Issue{
			updatedIssue("OPS-9", "Resolved", "Major", "2026-08-30T11:00:00Z"),
		},
	}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}

	b := newReverseBridge(t, pager, tickets, store)
	processed, err := b.CheckJira(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Empty(t, pager.updates)
}

func TestCheckJira_AcknowledgeByIssueStatus(t *testing.T) {
	t.Parallel()

	pager := &fakePager{incidents: map[string]*pagerduty.Incident{
		"PABCDEF": {ID: "PABCDEF", IncidentNumber: 7, Status: pagerduty.StatusTriggered},
	}}
	tickets := &recordingTickets{
		updated: []jira.Issue{
			updatedIssue("OPS-9", "In Progress", "Major", "2026-08-30T11:00:00Z"),
		},
		remoteLinks: map[string][]jira.RemoteLink{
			"OPS-9": {{GlobalID: "PABCDEF"}},
		},
	}
	store := &memoryStore{value: "2026-08-30T10:00:00Z"}

	b := newReverseBridge(t, pager, tickets, store)
	_, err := b.CheckJira(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"PABCDEF: acknowledge"}, pager.updates)
}

func TestOpenStoreError(t *testing.T) {
	t.Parallel()

	b := New(Config{
		Settings: bridgeSettings(),
		Pager:    &fakePager{},
		Tickets:  &recordingTickets{},
		OpenStore: func(_ context.Context, _ string) (CheckpointStore, error) {
			return nil, errors.New("lock held elsewhere")
		},
		Logger: logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
	})

	_, err := b.CheckPagerDuty(context.Background())
	require.Error(t, err)
	_, err = b.CheckJira(context.Background())
	require.Error(t, err)
}
