package bridge

import (
	"fmt"
	"strings"

	"github.com/opsbridge/opsbridge/internal/pagerduty"
)

// synthesizeComment renders a log entry as an English sentence for the
// issue comment. The wording is deterministic and covered by tests; any
// change here alters what lands in ticket histories.
//
// The sentence is assembled from fixed slots: subject, auxiliary adverb,
// predicate, then prepositional clauses in a fixed order (actor, channel,
// notification delivery, new assignee).
func (p *Processor) synthesizeComment(entry *pagerduty.LogEntry) string {
	var b strings.Builder

	// Subject: a notification names the notified user, everything else
	// speaks about the incident.
	if entry.Type == pagerduty.TypeNotify && entry.User != nil {
		b.WriteString(p.mention(entry.User))
	} else {
		fmt.Fprintf(&b, "Incident #%d", entry.Incident.IncidentNumber)
	}

	// Auxiliary. The automatic adverb is suppressed when an assigned user
	// exists: automatic assignment reads as an escalation, and the verb
	// already carries that.
	b.WriteString(" has")
	if entry.Channel != nil && entry.Channel.Type == pagerduty.ChannelAuto && entry.AssignedUser == nil {
		b.WriteString(" automatically")
	} else if entry.Notification != nil {
		switch entry.Notification.Status {
		case pagerduty.NotificationSuccess:
			b.WriteString(" successfully")
		case pagerduty.NotificationNoAnswer:
			// The failure clause is appended after the delivery method.
		default:
			// Log entries expose only the current notification status,
			// which is not enough to say anything for certain.
			b.WriteString(" possibly")
		}
	}

	// Predicate.
	b.WriteString(" been")
	switch entry.Type {
	case pagerduty.TypeReachTriggerLimit:
		b.WriteString(" reached the log entry trigger limit and will not create any more")
	case pagerduty.TypeRepeatEscalationPath:
		b.WriteString(" reached the end of its escalation policy and will restart")
	case pagerduty.TypeExhaustEscalationPath:
		b.WriteString(" cycled through its escalation policy the max allowed number of times")
	default:
		b.WriteString(" " + inflect(entry.Type))
	}

	// Prepositional clauses, fixed order.
	if entry.Agent != nil && entry.Agent.Type == "user" {
		b.WriteString(" by " + p.mention(entry.Agent))
	}
	if entry.Channel != nil {
		switch entry.Channel.Type {
		case pagerduty.ChannelTimeout:
			b.WriteString(" due to timeout")
		case pagerduty.ChannelAPI:
			b.WriteString(" through the API")
		case pagerduty.ChannelWebsite:
			b.WriteString(" on the website")
		case pagerduty.ChannelNagios:
			b.WriteString(" by the Nagios")
		case pagerduty.ChannelAuto, pagerduty.ChannelNote:
			// Auto is covered by the adverb, note by the terminator.
		default:
			b.WriteString(" by " + entry.Channel.Type)
		}
	}
	if entry.Notification != nil {
		switch {
		case strings.Contains(entry.Notification.Type, "push_notification"):
			b.WriteString(" via push notification")
		case entry.Notification.Type == "sms":
			b.WriteString(" via SMS")
		default:
			b.WriteString(" via " + entry.Notification.Type)
		}
		b.WriteString(" at " + entry.Notification.Address)
		if entry.Notification.Status == pagerduty.NotificationNoAnswer {
			b.WriteString(" but nobody answered")
		}
	}
	if entry.AssignedUser != nil {
		b.WriteString(" to " + p.mention(entry.AssignedUser))
	}

	// Note channels end with the note content instead of a period.
	if entry.Channel != nil && entry.Channel.Type == pagerduty.ChannelNote {
		return b.String() + ": " + entry.Channel.Content
	}
	return b.String() + "."
}

// inflect forms the past participle of a regular event type.
func inflect(eventType string) string {
	switch {
	case strings.HasSuffix(eventType, "y"):
		return eventType[:len(eventType)-1] + "ied"
	case strings.HasSuffix(eventType, "e"):
		return eventType + "d"
	default:
		return eventType + "ed"
	}
}

// mention renders a user as a JIRA mention token when the email maps to a
// known username, and as "Name <email>" otherwise.
func (p *Processor) mention(actor *pagerduty.Actor) string {
	if username, ok := p.settings.UsernameForEmail(actor.Email); ok {
		return "[~" + username + "]"
	}
	return actor.Name + " <" + actor.Email + ">"
}
