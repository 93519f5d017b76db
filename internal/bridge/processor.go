package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/opsbridge/opsbridge/internal/conf"
	"github.com/opsbridge/opsbridge/internal/jira"
	"github.com/opsbridge/opsbridge/internal/logger"
	"github.com/opsbridge/opsbridge/internal/pagerduty"
	"github.com/opsbridge/opsbridge/internal/restapi"
)

// Processor turns a single log entry into ticket-system side effects,
// driven by the configured action rules. All remote calls go through the
// injected TicketClient; the decision logic itself is pure.
type Processor struct {
	settings *conf.Settings
	tickets  TicketClient
	log      logger.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(settings *conf.Settings, tickets TicketClient, log logger.Logger) *Processor {
	return &Processor{
		settings: settings,
		tickets:  tickets,
		log:      log,
	}
}

// Process handles one log entry. Unmapped services, unmapped entry types,
// and excluded statuses skip silently: they are intentionally
// unconfigured, not errors. A notification still in delivery returns
// ErrNotificationPending before any side effect. Remote failures
// propagate.
func (p *Processor) Process(ctx context.Context, entry *pagerduty.LogEntry) error {
	if entry.Notification != nil && entry.Notification.Status == pagerduty.NotificationInProgress {
		return ErrNotificationPending
	}

	// Viper normalizes map keys to lower case, so the lookup does too.
	mapping, ok := p.settings.Services[strings.ToLower(entry.Service.Name)]
	if !ok {
		p.log.Debug("service not mapped, skipping",
			logger.String("service", entry.Service.Name),
			logger.String("log_entry", entry.ID))
		return nil
	}

	rule, ok := p.settings.Actions[entry.Type]
	if !ok {
		p.log.Debug("entry type not configured, skipping",
			logger.String("type", entry.Type),
			logger.String("log_entry", entry.ID))
		return nil
	}

	incident := entry.Incident
	if !rule.MatchesStatus(incident.Status) {
		p.log.Debug("incident status excluded by rule, skipping",
			logger.String("type", entry.Type),
			logger.String("status", incident.Status))
		return nil
	}

	issue, err := p.findIssue(ctx, mapping, incident.TriggerSummaryData)
	if err != nil {
		return err
	}

	if issue == nil {
		// Never create issues for incidents already resolved upstream.
		// It is too late for them; stale events must not resurrect
		// closed incidents.
		if incident.Status == pagerduty.StatusResolved || !rule.Create {
			return nil
		}
		issue, err = p.createIssue(ctx, mapping, entry)
		if err != nil {
			return err
		}
		p.log.Info("issue created",
			logger.String("issue", issue.Key),
			logger.Int("incident", incident.IncidentNumber))
	}

	return p.applyActions(ctx, rule, entry, issue)
}

// applyActions runs the rule's flagged actions against the issue in a
// fixed order. Each action is an independent best-effort remote call with
// no rollback across partial failure.
func (p *Processor) applyActions(ctx context.Context, rule conf.ActionRule, entry *pagerduty.LogEntry, issue *jira.Issue) error {
	incident := entry.Incident

	if rule.Transition != "" {
		if err := p.transition(ctx, rule.Transition, entry, issue); err != nil {
			return err
		}
	}

	if rule.Assign && entry.AssignedUser != nil {
		username := p.usernameFor(entry.AssignedUser.Email)
		if err := p.tickets.SetAssignee(ctx, issue.Key, username); err != nil {
			return err
		}
	}

	if rule.Comment {
		if err := p.tickets.AddComment(ctx, issue.Key, p.synthesizeComment(entry)); err != nil {
			return err
		}
	}

	if rule.Link {
		title := fmt.Sprintf("Incident #%d", incident.IncidentNumber)
		resolved := incident.Status == pagerduty.StatusResolved
		if err := p.tickets.AddRemoteLink(ctx, issue.Key, incident.ID, incident.HTMLURL, title, resolved); err != nil {
			return err
		}
	}

	return nil
}

// transition applies the named transition when it is currently available
// on the issue. Workflow availability is state-dependent: an absent
// transition is skipped silently, not an error.
func (p *Processor) transition(ctx context.Context, name string, entry *pagerduty.LogEntry, issue *jira.Issue) error {
	transitions, err := p.tickets.Transitions(ctx, issue.Key)
	if err != nil {
		return err
	}
	for _, t := range transitions {
		if t.Name != name {
			continue
		}
		return p.tickets.ApplyTransition(ctx, issue.Key, t, p.synthesizeComment(entry))
	}
	p.log.Debug("transition not available, skipping",
		logger.String("issue", issue.Key),
		logger.String("transition", name))
	return nil
}

// findIssue resolves the issue belonging to an incident. An issue key
// embedded in the derived summary wins outright (incidents created from
// JIRA mail carry one); otherwise the truncated summary is searched in
// the mapped project and issue type.
func (p *Processor) findIssue(ctx context.Context, mapping conf.ServiceMapping, summaryData map[string]string) (*jira.Issue, error) {
	summary := searchSummary(summaryData)

	if key := embeddedIssueKey(mapping.Project, summary); key != "" {
		return &jira.Issue{Key: key}, nil
	}

	issue, err := p.tickets.SearchIssue(ctx, mapping.Project, mapping.IssueType, summary)
	if err != nil {
		if restapi.IsClientError(err) {
			// The summary can contain text JQL rejects. Treat a refused
			// search as "no existing issue" and let the create path run.
			p.log.Warn("issue search rejected, treating as not found",
				logger.String("summary", summary),
				logger.Error(err))
			return nil, nil
		}
		return nil, err
	}
	return issue, nil
}

// embeddedIssueKey extracts a "<PROJECT>-<digits>" issue key from the
// summary, scoped to the mapped project.
func embeddedIssueKey(project, summary string) string {
	pattern, err := regexp.Compile(regexp.QuoteMeta(project) + `-[0-9]{1,6}`)
	if err != nil {
		return ""
	}
	return pattern.FindString(summary)
}

// createIssue creates a new issue for the incident behind a log entry.
func (p *Processor) createIssue(ctx context.Context, mapping conf.ServiceMapping, entry *pagerduty.LogEntry) (*jira.Issue, error) {
	incident := entry.Incident

	fields := jira.CreateIssueFields{
		Project:   jira.Key{Key: mapping.Project},
		IssueType: jira.Named{Name: mapping.IssueType},
		Summary:   issueSummary(incident.TriggerSummaryData),
	}
	if entry.Channel != nil {
		fields.Description = description(entry.Channel.Details)
	}
	if incident.AssignedToUser != nil && incident.AssignedToUser.Email != "" {
		fields.Assignee = &jira.Named{Name: p.usernameFor(incident.AssignedToUser.Email)}
	}
	if mapping.CreatePriority != "" {
		fields.Priority = &jira.Named{Name: mapping.CreatePriority}
	}

	return p.tickets.CreateIssue(ctx, fields)
}

// usernameFor maps an email to the configured JIRA username, falling back
// to the email's local part.
func (p *Processor) usernameFor(email string) string {
	if username, ok := p.settings.UsernameForEmail(email); ok {
		return username
	}
	if local, _, found := strings.Cut(email, "@"); found && local != "" {
		return local
	}
	return email
}
