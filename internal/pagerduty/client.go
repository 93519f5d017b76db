// Package pagerduty is a typed client for the PagerDuty REST API,
// covering the three calls the bridge needs: listing incident log
// entries, fetching an incident, and updating an incident's status.
package pagerduty

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opsbridge/opsbridge/internal/logger"
	"github.com/opsbridge/opsbridge/internal/restapi"
)

// includeWithLogEntry lists the associations the log entry query expands
// inline. The processor needs all four without extra round-trips.
var includeWithLogEntry = []string{"incident", "channel", "service", "note"}

// Config holds configuration for creating a PagerDuty Client.
type Config struct {
	// Address is the API root, e.g. "https://acme.pagerduty.com/api/v1".
	Address string

	// Token is the PagerDuty API token.
	Token string

	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging.
	Logger logger.Logger
}

// Client calls the PagerDuty API.
type Client struct {
	api *restapi.Client
}

// NewClient creates a PagerDuty client from the given configuration.
func NewClient(config Config) (*Client, error) {
	api, err := restapi.NewClient(restapi.Config{
		Address:    config.Address,
		Token:      config.Token,
		HTTPClient: config.HTTPClient,
		Logger:     config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pagerduty: %w", err)
	}
	return &Client{api: api}, nil
}

// ListLogEntries fetches log entries created since the given timestamp,
// with incident, channel, service, and note associations included. The
// service returns entries newest-first; that order is preserved here and
// reversed by the run loop, which must consume oldest-first.
func (c *Client) ListLogEntries(ctx context.Context, since string) ([]LogEntry, error) {
	query := url.Values{}
	query.Set("since", since)
	for _, include := range includeWithLogEntry {
		query.Add("include[]", include)
	}

	var response struct {
		LogEntries []LogEntry `json:"log_entries"`
	}
	if err := c.api.Get(ctx, "log_entries", query, &response); err != nil {
		return nil, err
	}

	for i := range response.LogEntries {
		if err := response.LogEntries[i].Validate(); err != nil {
			return nil, err
		}
	}
	return response.LogEntries, nil
}

// GetIncident fetches an incident by its id.
func (c *Client) GetIncident(ctx context.Context, incidentID string) (*Incident, error) {
	if len(incidentID) <= 6 {
		return nil, fmt.Errorf("pagerduty: implausible incident id %q", incidentID)
	}
	var incident Incident
	if err := c.api.Get(ctx, "incidents/"+incidentID, nil, &incident); err != nil {
		return nil, err
	}
	return &incident, nil
}

// UpdateIncidentStatus applies a status action (trigger, acknowledge,
// resolve) to an incident.
func (c *Client) UpdateIncidentStatus(ctx context.Context, incidentID, action string) error {
	return c.api.Put(ctx, "incidents/"+incidentID+"/"+action, nil)
}
