package bridge

import (
	"strings"
	"unicode"
)

// summarySplitters truncate a derived summary before searching. Monitoring
// subjects append volatile detail after these separators; keeping only the
// head makes repeated alerts for the same check de-duplicate onto one
// issue.
var summarySplitters = []string{"\t", " - "}

// issueSummary derives an issue summary from an incident's trigger summary
// data. Service state takes precedence over host state, and the free-form
// subject is the fallback. The order matters: it must be stable or
// incidents stop matching their existing issues.
func issueSummary(data map[string]string) string {
	if data["SERVICESTATE"] != "" {
		return data["HOSTNAME"] + " " + data["SERVICEDESC"] + " " + data["SERVICESTATE"]
	}
	if data["HOSTSTATE"] != "" {
		return data["HOSTNAME"] + " " + data["HOSTSTATE"]
	}
	return data["subject"]
}

// searchSummary is the truncated form of issueSummary used for issue
// lookup.
func searchSummary(data map[string]string) string {
	summary := issueSummary(data)
	for _, splitter := range summarySplitters {
		summary, _, _ = strings.Cut(summary, splitter)
	}
	return summary
}

// descriptionDetails are the channel detail fields included in a created
// issue's description, in presentation order. Service notes come before
// host notes.
var descriptionDetails = []string{
	"HOSTDISPLAYNAME", "HOSTALIAS", "HOSTADDRESS", "HOSTOUTPUT",
	"SERVICEDISPLAYNAME", "SERVICEOUTPUT", "SERVICECHECKTYPE", "SERVICEATTEMPT",
	"SERVICECHECKCOMMAND", "TOTALSERVICEPROBLEMS", "SERVICELATENCY",
	"SERVICENOTES", "HOSTNOTES",
}

// detailWords are the known prefixes used to re-word a detail field name
// into a readable label ("HOSTDISPLAYNAME" → "Host display name").
var detailWords = []string{"host", "service", "display", "check", "total"}

// description builds the issue description from the channel's detail
// fields. Empty and absent fields are left out.
func description(details map[string]string) string {
	var b strings.Builder
	for _, detail := range descriptionDetails {
		value := details[detail]
		if value == "" {
			continue
		}
		b.WriteString(detailLabel(detail))
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}
	return b.String()
}

func detailLabel(detail string) string {
	normalized := strings.Trim(strings.ToLower(detail), "_ ")
	label := strings.Join(wordsOfDetail(normalized), " ")
	return capitalize(label)
}

// wordsOfDetail splits a normalized detail name on the known prefix
// words, leaving the remainder as the final word.
func wordsOfDetail(detail string) []string {
	for _, word := range detailWords {
		if strings.HasPrefix(detail, word) {
			return append([]string{word}, wordsOfDetail(detail[len(word):])...)
		}
	}
	return []string{detail}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
