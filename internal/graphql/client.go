package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Client posts GraphQL documents to a single endpoint using a bearer token.
type Client struct {
	Endpoint   string       // GraphQL endpoint URL
	UserAgent  string       // Sent as User-Agent when non-empty
	HTTPClient *http.Client // Authenticated HTTP client
}

// NewClient creates a client for endpoint that authenticates with token.
// An empty endpoint selects DefaultEndpoint.
func NewClient(token, endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = DefaultTimeout

	return &Client{
		Endpoint:   endpoint,
		HTTPClient: httpClient,
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
// The caller is responsible for authentication on that client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Endpoint:   c.Endpoint,
		UserAgent:  c.UserAgent,
		HTTPClient: httpClient,
	}
}

// WithUserAgent returns a new client that sends the given User-Agent.
func (c *Client) WithUserAgent(ua string) *Client {
	return &Client{
		Endpoint:   c.Endpoint,
		UserAgent:  ua,
		HTTPClient: c.HTTPClient,
	}
}

// Query executes a read-only document.
func (c *Client) Query(ctx context.Context, doc string, vars map[string]interface{}) (json.RawMessage, error) {
	return c.execute(ctx, &Request{Query: doc, Variables: vars})
}

// Mutate executes a mutation document. The wire format is identical to Query.
func (c *Client) Mutate(ctx context.Context, doc string, vars map[string]interface{}) (json.RawMessage, error) {
	return c.execute(ctx, &Request{Query: doc, Variables: vars})
}

// execute sends a GraphQL request and returns the "data" member.
// There is no retry: a failed request is reported to the caller as-is.
func (c *Client) execute(ctx context.Context, req *Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var gqlResp Response
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(respBody))
	}
	if len(gqlResp.Errors) > 0 {
		return nil, &Error{Items: gqlResp.Errors}
	}

	return gqlResp.Data, nil
}
