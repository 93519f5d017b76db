package jira

// Named is a JIRA entity referenced by name (status, priority, issue
// type).
type Named struct {
	Name string `json:"name"`
}

// IssueFields is the subset of issue fields the bridge reads.
type IssueFields struct {
	Status   *Named `json:"status,omitempty"`
	Priority *Named `json:"priority,omitempty"`
	Updated  string `json:"updated,omitempty"`
}

// Issue is a JIRA issue. Fields is nil when only the key is known, as
// with issues resolved from an embedded key in an incident subject.
type Issue struct {
	Key    string       `json:"key"`
	Fields *IssueFields `json:"fields,omitempty"`
}

// StatusName returns the issue's status name, or "" when unknown.
func (i *Issue) StatusName() string {
	if i.Fields == nil || i.Fields.Status == nil {
		return ""
	}
	return i.Fields.Status.Name
}

// PriorityName returns the issue's priority name, or "" when unknown.
func (i *Issue) PriorityName() string {
	if i.Fields == nil || i.Fields.Priority == nil {
		return ""
	}
	return i.Fields.Priority.Name
}

// Transition is a workflow edge currently available on an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RemoteLink is an external reference attached to an issue. GlobalID
// carries the incident id; Object.Status.Resolved mirrors the incident
// status at link time.
type RemoteLink struct {
	GlobalID    string           `json:"globalId"`
	Application *Application     `json:"application,omitempty"`
	Object      RemoteLinkObject `json:"object"`
}

// Application identifies which integration created a remote link.
type Application struct {
	Type string `json:"type"`
}

// RemoteLinkObject is the link target presented on the issue.
type RemoteLinkObject struct {
	URL    string           `json:"url"`
	Title  string           `json:"title"`
	Status RemoteLinkStatus `json:"status"`
}

// RemoteLinkStatus flags whether the linked incident was resolved.
type RemoteLinkStatus struct {
	Resolved bool `json:"resolved"`
}

// CreateIssueFields are the fields sent when creating an issue. Optional
// members are left out of the request body when nil or empty.
type CreateIssueFields struct {
	Project     Key    `json:"project"`
	IssueType   Named  `json:"issuetype"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Assignee    *Named `json:"assignee,omitempty"`
	Priority    *Named `json:"priority,omitempty"`
}

// Key is a JIRA entity referenced by key (projects).
type Key struct {
	Key string `json:"key"`
}
