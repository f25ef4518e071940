package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/qaflow/qastatus/internal/graphql"
)

// NewClient creates a client bound to owner/repo that talks through api.
func NewClient(api graphql.Doer, owner, repo string) *Client {
	return &Client{
		API:    api,
		Owner:  owner,
		Repo:   repo,
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithLogger returns a new client that logs to logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	return &Client{
		API:    c.API,
		Owner:  c.Owner,
		Repo:   c.Repo,
		Logger: logger,
	}
}

func (c *Client) log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// query runs a read document and decodes the data member into out.
func (c *Client) query(ctx context.Context, doc string, vars map[string]interface{}, out interface{}) error {
	data, err := c.API.Query(ctx, doc, vars)
	if err != nil {
		return err
	}
	return decode(data, out)
}

// mutate runs a mutation document and decodes the data member into out.
func (c *Client) mutate(ctx context.Context, doc string, vars map[string]interface{}, out interface{}) error {
	data, err := c.API.Mutate(ctx, doc, vars)
	if err != nil {
		return err
	}
	return decode(data, out)
}

func decode(data json.RawMessage, out interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("empty data in response")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// notFound converts a GraphQL NOT_FOUND error into ErrNotFound.
func notFound(err error, what string) error {
	if graphql.IsNotFound(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// ListMergedPullRequests returns every pull request merged into base, most
// recently updated first. On a transport error the pull requests read so far
// are returned alongside the error.
func (c *Client) ListMergedPullRequests(ctx context.Context, base string) ([]PullRequest, error) {
	type response struct {
		Repository *struct {
			PullRequests struct {
				Nodes    []PullRequest    `json:"nodes"`
				PageInfo graphql.PageInfo `json:"pageInfo"`
			} `json:"pullRequests"`
		} `json:"repository"`
	}

	fetch := func(ctx context.Context, cursor *string) (graphql.Page[PullRequest], error) {
		vars := map[string]interface{}{
			"owner": c.Owner,
			"repo":  c.Repo,
			"base":  base,
			"first": PullRequestPageSize,
			"after": cursor,
		}
		var resp response
		if err := c.query(ctx, mergedPullRequestsQuery, vars, &resp); err != nil {
			return graphql.Page[PullRequest]{}, notFound(err, "repository "+c.Owner+"/"+c.Repo)
		}
		if resp.Repository == nil {
			return graphql.Page[PullRequest]{}, fmt.Errorf("repository %s/%s: %w", c.Owner, c.Repo, ErrNotFound)
		}
		pr := resp.Repository.PullRequests
		return graphql.NewPage(pr.Nodes, pr.PageInfo), nil
	}

	prs, err := graphql.Walk(ctx, fetch)
	if err != nil {
		return prs, fmt.Errorf("failed to list merged pull requests into %s: %w", base, err)
	}
	return prs, nil
}
