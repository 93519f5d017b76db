// Package jira is a typed client for the JIRA REST API, covering issue
// search, creation, transitions, comments, assignment, and remote links.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opsbridge/opsbridge/internal/logger"
	"github.com/opsbridge/opsbridge/internal/restapi"
)

// maxUpdatedIssues bounds a single reverse-sync query. The checkpoint
// advances per issue, so a longer backlog is drained across runs.
const maxUpdatedIssues = 100

// Config holds configuration for creating a JIRA Client.
type Config struct {
	// Address is the API root, e.g. "https://jira.acme.com/rest/api/2".
	Address string

	// Username and Password are the basic auth credentials.
	Username string
	Password string

	// Application is the remote-link application type this integration
	// writes and recognizes, e.g. "com.acme.opsbridge".
	Application string

	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging.
	Logger logger.Logger
}

// Client calls the JIRA API.
type Client struct {
	api         *restapi.Client
	application string
}

// NewClient creates a JIRA client from the given configuration.
func NewClient(config Config) (*Client, error) {
	if config.Application == "" {
		return nil, fmt.Errorf("jira: application type is required")
	}
	api, err := restapi.NewClient(restapi.Config{
		Address:    config.Address,
		Username:   config.Username,
		Password:   config.Password,
		HTTPClient: config.HTTPClient,
		Logger:     config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("jira: %w", err)
	}
	return &Client{api: api, application: config.Application}, nil
}

// Application returns the configured remote-link application type.
func (c *Client) Application() string {
	return c.application
}

// quoteJQL quotes a string value for embedding in a JQL clause.
func quoteJQL(value string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value) + `"`
}

// SearchIssue finds the most recently updated non-closed issue in the
// given project and issue type whose summary matches the text. Returns
// nil when nothing matches.
func (c *Client) SearchIssue(ctx context.Context, project, issuetype, summary string) (*Issue, error) {
	jql := "project = " + quoteJQL(project) +
		" and issuetype = " + quoteJQL(issuetype) +
		" and summary ~ " + quoteJQL(summary) +
		" and status != Closed order by updated"

	query := url.Values{}
	query.Set("jql", jql)
	query.Set("maxResults", "1")
	query.Set("fields", "key")

	var response struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.api.Get(ctx, "search", query, &response); err != nil {
		return nil, err
	}
	if len(response.Issues) == 0 {
		return nil, nil
	}
	return &response.Issues[0], nil
}

// UpdatedIssues returns issues of the given project/issue-type pairs
// updated after since, oldest-updated first. since is an RFC3339
// timestamp; JQL takes minute resolution ("YYYY-MM-DD HH:MM").
func (c *Client) UpdatedIssues(ctx context.Context, pairs [][2]string, since string) ([]Issue, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		clauses = append(clauses, "(project = "+quoteJQL(pair[0])+" and issuetype = "+quoteJQL(pair[1])+")")
	}

	jqlSince := strings.Replace(since, "T", " ", 1)
	if len(jqlSince) > 16 {
		jqlSince = jqlSince[:16]
	}
	jql := "(" + strings.Join(clauses, " or ") + ") and updated > " + quoteJQL(jqlSince) + " order by updated asc"

	query := url.Values{}
	query.Set("jql", jql)
	query.Set("maxResults", strconv.Itoa(maxUpdatedIssues))
	query.Set("fields", "key,updated,status,priority")

	var response struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.api.Get(ctx, "search", query, &response); err != nil {
		return nil, err
	}
	return response.Issues, nil
}

// CreateIssue creates an issue and returns it (key only).
func (c *Client) CreateIssue(ctx context.Context, fields CreateIssueFields) (*Issue, error) {
	request := struct {
		Fields CreateIssueFields `json:"fields"`
	}{Fields: fields}

	var issue Issue
	if err := c.api.Post(ctx, "issue", request, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// Transitions lists the workflow transitions currently available on an
// issue. Availability is state-dependent; a transition configured in an
// action rule may legitimately be absent.
func (c *Client) Transitions(ctx context.Context, issueKey string) ([]Transition, error) {
	var response struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := c.api.Get(ctx, "issue/"+issueKey+"/transitions", nil, &response); err != nil {
		return nil, err
	}
	return response.Transitions, nil
}

// ApplyTransition applies a transition to an issue, attaching a comment.
func (c *Client) ApplyTransition(ctx context.Context, issueKey string, transition Transition, comment string) error {
	request := map[string]any{
		"transition": transition,
		"update": map[string]any{
			"comment": []map[string]any{
				{"add": map[string]string{"body": comment}},
			},
		},
	}
	return c.api.Post(ctx, "issue/"+issueKey+"/transitions", request, nil)
}

// AddComment adds a comment to an issue.
func (c *Client) AddComment(ctx context.Context, issueKey, body string) error {
	return c.api.Post(ctx, "issue/"+issueKey+"/comment", map[string]string{"body": body}, nil)
}

// SetAssignee assigns an issue to the given username.
func (c *Client) SetAssignee(ctx context.Context, issueKey, username string) error {
	return c.api.Put(ctx, "issue/"+issueKey+"/assignee", map[string]string{"name": username})
}

// RemoteLinks lists all remote links on an issue.
func (c *Client) RemoteLinks(ctx context.Context, issueKey string) ([]RemoteLink, error) {
	var links []RemoteLink
	if err := c.api.Get(ctx, "issue/"+issueKey+"/remotelink", nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// UnresolvedRemoteLinks lists the remote links on an issue that this
// integration created and whose linked incident was not resolved at link
// time.
func (c *Client) UnresolvedRemoteLinks(ctx context.Context, issueKey string) ([]RemoteLink, error) {
	links, err := c.RemoteLinks(ctx, issueKey)
	if err != nil {
		return nil, err
	}

	var unresolved []RemoteLink
	for _, link := range links {
		if link.Application == nil || link.Application.Type != c.application {
			continue
		}
		if link.Object.Status.Resolved {
			continue
		}
		unresolved = append(unresolved, link)
	}
	return unresolved, nil
}

// AddRemoteLink attaches a remote link to an issue. globalID is the
// incident id; resolved mirrors the incident's status so the link doubles
// as a marker for the reverse sync.
func (c *Client) AddRemoteLink(ctx context.Context, issueKey, globalID, linkURL, title string, resolved bool) error {
	request := map[string]any{
		"globalId":    globalID,
		"application": Application{Type: c.application},
		"object": RemoteLinkObject{
			URL:    linkURL,
			Title:  title,
			Status: RemoteLinkStatus{Resolved: resolved},
		},
	}
	return c.api.Post(ctx, "issue/"+issueKey+"/remotelink", request, nil)
}
