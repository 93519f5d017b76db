package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsbridge/opsbridge/internal/checkpoint"
	"github.com/opsbridge/opsbridge/internal/conf"
	"github.com/opsbridge/opsbridge/internal/jira"
	"github.com/opsbridge/opsbridge/internal/logger"
	"github.com/opsbridge/opsbridge/internal/pagerduty"
)

// Bridge owns the two sync directions. Each run acquires the direction's
// checkpoint exclusively for its whole duration, so at most one run per
// direction is active at a time.
type Bridge struct {
	settings  *conf.Settings
	pager     PagerClient
	tickets   TicketClient
	processor *Processor
	openStore StoreOpener
	log       logger.Logger
}

// Config holds the collaborators for creating a Bridge.
type Config struct {
	Settings *conf.Settings
	Pager    PagerClient
	Tickets  TicketClient

	// OpenStore opens a checkpoint store. Defaults to checkpoint.Open.
	OpenStore StoreOpener

	Logger logger.Logger
}

// New creates a Bridge.
func New(config Config) *Bridge {
	openStore := config.OpenStore
	if openStore == nil {
		openStore = func(ctx context.Context, path string) (CheckpointStore, error) {
			return checkpoint.Open(ctx, path)
		}
	}
	return &Bridge{
		settings:  config.Settings,
		pager:     config.Pager,
		tickets:   config.Tickets,
		processor: NewProcessor(config.Settings, config.Tickets, config.Logger),
		openStore: openStore,
		log:       config.Logger,
	}
}

// openCheckpoint acquires the checkpoint at path within the configured
// lock timeout, inside a run context bounded by the run timeout.
func (b *Bridge) openCheckpoint(ctx context.Context, path string) (CheckpointStore, error) {
	lockCtx, cancel := context.WithTimeout(ctx, b.settings.Checkpoint.LockTimeout.Std())
	defer cancel()
	return b.openStore(lockCtx, path)
}

// CheckPagerDuty runs the forward direction: fetch log entries created
// after the checkpoint, process them oldest-first, and advance the
// checkpoint after each successfully processed entry. Returns the number
// of entries processed.
//
// The checkpoint is written strictly after processing succeeds, so a
// failure replays the failed entry on the next run instead of silently
// skipping it.
func (b *Bridge) CheckPagerDuty(ctx context.Context) (int, error) {
	runCtx, cancel := context.WithTimeout(ctx, b.settings.Checkpoint.RunTimeout.Std())
	defer cancel()

	store, err := b.openCheckpoint(runCtx, b.settings.Checkpoint.PagerDutyFile())
	if err != nil {
		return 0, err
	}
	defer store.Close()

	since, err := store.Read()
	if err != nil {
		return 0, err
	}
	sinceTime, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return 0, fmt.Errorf("bridge: invalid checkpoint %q: %w", since, err)
	}

	entries, err := b.pager.ListLogEntries(runCtx, since)
	if err != nil {
		return 0, err
	}

	processed := 0
	// The service returns entries newest-first; walk them backwards to
	// preserve causal ticket-transition order.
	for i := len(entries) - 1; i >= 0; i-- {
		entry := &entries[i]

		created, err := entry.Created()
		if err != nil {
			return processed, err
		}
		if !created.After(sinceTime) {
			continue
		}

		if err := b.processor.Process(runCtx, entry); err != nil {
			if errors.Is(err, ErrNotificationPending) {
				// Stop to buy time: the delivery outcome is not known
				// yet, and the comment wording depends on it.
				b.log.Info("notification in progress, deferring remaining entries",
					logger.String("log_entry", entry.ID),
					logger.Int("processed", processed))
				return processed, nil
			}
			return processed, err
		}

		if err := store.Write(entry.CreatedAt); err != nil {
			return processed, err
		}
		processed++
	}

	b.log.Info("pagerduty check complete", logger.Int("processed", processed))
	return processed, nil
}

// reverseActions are the action rule names that exist as incident update
// actions. Other rules (notify, escalate, ...) only drive the forward
// direction.
var reverseActions = []string{
	pagerduty.ActionTrigger,
	pagerduty.ActionAcknowledge,
	pagerduty.ActionResolve,
}

// CheckJira runs the reverse direction: scan issues updated since the
// checkpoint, and for each unresolved remote link push the incident
// status update matching the issue's state. Returns the number of issues
// examined.
func (b *Bridge) CheckJira(ctx context.Context) (int, error) {
	runCtx, cancel := context.WithTimeout(ctx, b.settings.Checkpoint.RunTimeout.Std())
	defer cancel()

	store, err := b.openCheckpoint(runCtx, b.settings.Checkpoint.JiraFile())
	if err != nil {
		return 0, err
	}
	defer store.Close()

	since, err := store.Read()
	if err != nil {
		return 0, err
	}

	issues, err := b.tickets.UpdatedIssues(runCtx, b.settings.ProjectIssueTypePairs(), since)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range issues {
		issue := &issues[i]
		if err := b.reflectIssue(runCtx, issue); err != nil {
			return processed, err
		}
		if issue.Fields != nil && issue.Fields.Updated != "" {
			if err := store.Write(issue.Fields.Updated); err != nil {
				return processed, err
			}
		}
		processed++
	}

	b.log.Info("jira check complete", logger.Int("processed", processed))
	return processed, nil
}

// reflectIssue pushes the incident updates an issue's state calls for.
// Rules are matched by issue status or priority; the incident is only
// touched when its status differs from the rule's target.
func (b *Bridge) reflectIssue(ctx context.Context, issue *jira.Issue) error {
	links, err := b.tickets.UnresolvedRemoteLinks(ctx, issue.Key)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	actions := b.matchingReverseActions(issue)
	if len(actions) == 0 {
		return nil
	}

	for _, link := range links {
		for _, action := range actions {
			incident, err := b.pager.GetIncident(ctx, link.GlobalID)
			if err != nil {
				return err
			}
			if incident.Status == incidentStatusFor(action) {
				continue
			}
			if err := b.pager.UpdateIncidentStatus(ctx, incident.ID, action); err != nil {
				return err
			}
			b.log.Info("incident updated from issue",
				logger.String("issue", issue.Key),
				logger.Int("incident", incident.IncidentNumber),
				logger.String("action", action))
		}
	}
	return nil
}

// matchingReverseActions returns the incident actions whose rules match
// the issue's status or priority, in reverseActions order.
func (b *Bridge) matchingReverseActions(issue *jira.Issue) []string {
	var actions []string
	for _, action := range reverseActions {
		rule, ok := b.settings.Actions[action]
		if !ok {
			continue
		}
		if rule.MatchesIssue(issue.StatusName(), issue.PriorityName()) {
			actions = append(actions, action)
		}
	}
	return actions
}

// incidentStatusFor maps an incident action to the status it produces.
func incidentStatusFor(action string) string {
	switch action {
	case pagerduty.ActionResolve:
		return pagerduty.StatusResolved
	case pagerduty.ActionAcknowledge:
		return pagerduty.StatusAcknowledged
	default:
		return pagerduty.StatusTriggered
	}
}
