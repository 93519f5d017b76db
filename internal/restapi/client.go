// Package restapi provides the authenticated JSON-over-HTTP client shared
// by the PagerDuty and JIRA clients. It handles authentication, body
// encoding and decoding, and turns non-2xx responses into *APIError values
// logged with full request and response detail, since the tool runs
// unattended and failures must be diagnosable from logs alone.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/opsbridge/opsbridge/internal/logger"
)

// Config holds configuration for creating a Client.
//
// Exactly one authentication mode must be configured:
//   - Basic authentication: set Username and Password
//   - Token authentication: set Token
type Config struct {
	// Address is the root URL for API requests, e.g.
	// "https://example.atlassian.net/rest/api/2". A trailing slash is
	// stripped.
	Address string

	// Username and Password enable HTTP basic authentication.
	Username string
	Password string

	// Token enables token authentication ("Authorization: Token
	// token=..."). Mutually exclusive with Username/Password.
	Token string

	// HTTPClient is used for all HTTP requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging of requests and failures.
	Logger logger.Logger
}

// Client is a typed JSON REST client.
type Client struct {
	address    string
	username   string
	password   string
	token      string
	httpClient *http.Client
	log        logger.Logger
}

// NewClient creates a REST client from the given configuration. Returns
// an error if the address is empty or the authentication configuration is
// ambiguous.
func NewClient(config Config) (*Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("restapi: address is required")
	}

	hasBasic := config.Username != "" || config.Password != ""
	hasToken := config.Token != ""
	if hasBasic && hasToken {
		return nil, fmt.Errorf("restapi: cannot configure both basic auth and token auth")
	}
	if !hasBasic && !hasToken {
		return nil, fmt.Errorf("restapi: no authentication configured (set Username+Password or Token)")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	log := config.Logger
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	}

	return &Client{
		address:    strings.TrimRight(config.Address, "/"),
		username:   config.Username,
		password:   config.Password,
		token:      config.Token,
		httpClient: httpClient,
		log:        log,
	}, nil
}

// Get executes a GET request. The query may be nil. The response body is
// decoded into result unless result is nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, result)
}

// Post executes a POST request with a JSON-encoded body. The response
// body is decoded into result unless result is nil.
func (c *Client) Post(ctx context.Context, path string, requestBody, result any) error {
	return c.do(ctx, http.MethodPost, path, nil, requestBody, result)
}

// Put executes a PUT request with a JSON-encoded body. The body may be
// nil for actions that take no parameters.
func (c *Client) Put(ctx context.Context, path string, requestBody any) error {
	return c.do(ctx, http.MethodPut, path, nil, requestBody, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, requestBody, result any) error {
	address := c.address + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		address += "?" + query.Encode()
	}

	var encoded []byte
	var bodyReader io.Reader
	if requestBody != nil {
		var err error
		encoded, err = json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("restapi: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, address, bodyReader)
	if err != nil {
		return fmt.Errorf("restapi: creating request: %w", err)
	}

	if c.token != "" {
		request.Header.Set("Authorization", "Token token="+c.token)
	} else {
		request.SetBasicAuth(c.username, c.password)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("restapi: %s %s: %w", method, address, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("restapi: reading response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := &APIError{
			Method:     method,
			URL:        address,
			StatusCode: response.StatusCode,
			Body:       string(responseBody),
		}
		c.log.Error("api request failed",
			logger.String("method", method),
			logger.String("url", address),
			logger.Int("status", response.StatusCode),
			logger.String("request_body", string(encoded)),
			logger.String("response_body", string(responseBody)))
		return apiErr
	}

	c.log.Debug("api request",
		logger.String("method", method),
		logger.String("url", address),
		logger.Int("status", response.StatusCode))

	if result == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, result); err != nil {
		return fmt.Errorf("restapi: decoding %s %s response: %w", method, address, err)
	}
	return nil
}
