// Package graphql provides a minimal client for the GitHub GraphQL API and the
// cursor walker used by every paginated list operation.
//
// The client posts a document with variables, checks
// the HTTP status and the GraphQL "errors" array, and hands back the raw "data"
// payload for the caller to decode into a typed structure.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// API configuration constants.
const (
	// DefaultEndpoint is the public GitHub GraphQL endpoint.
	DefaultEndpoint = "https://api.github.com/graphql"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPages is the maximum number of pages Walk fetches before giving up.
	// This prevents infinite loops from a server that keeps reporting hasNextPage.
	MaxPages = 1000

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 50 * 1024 * 1024
)

var (
	// ErrPageLimit is returned by Walk when MaxPages is exceeded.
	ErrPageLimit = errors.New("pagination limit exceeded")

	// ErrMissingCursor is returned by Walk when a page claims more data but
	// carries no cursor to fetch it with.
	ErrMissingCursor = errors.New("page reports hasNextPage without endCursor")
)

// Doer is the capability set the rest of the program consumes. Query and
// Mutate both return the raw "data" member of a successful response.
type Doer interface {
	Query(ctx context.Context, doc string, vars map[string]interface{}) (json.RawMessage, error)
	Mutate(ctx context.Context, doc string, vars map[string]interface{}) (json.RawMessage, error)
}

// Request represents a GraphQL request payload.
type Request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// Response represents a generic GraphQL response.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorItem     `json:"errors,omitempty"`
}

// ErrorItem is one entry of a GraphQL "errors" array.
type ErrorItem struct {
	Type    string        `json:"type,omitempty"` // GitHub extension, e.g. "NOT_FOUND"
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

// Error is returned when the server answers with a non-empty "errors" array.
type Error struct {
	Items []ErrorItem
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Items))
	for i, it := range e.Items {
		msgs[i] = it.Message
	}
	return "GraphQL errors: " + strings.Join(msgs, "; ")
}

// IsNotFound reports whether every error item is a NOT_FOUND error.
func (e *Error) IsNotFound() bool {
	if len(e.Items) == 0 {
		return false
	}
	for _, it := range e.Items {
		if it.Type != "NOT_FOUND" {
			return false
		}
	}
	return true
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Body, e.StatusCode)
}

// IsNotFound reports whether err is a GraphQL NOT_FOUND error.
func IsNotFound(err error) bool {
	var gqlErr *Error
	return errors.As(err, &gqlErr) && gqlErr.IsNotFound()
}

// PageInfo is the relay-style page descriptor returned by connection fields.
type PageInfo struct {
	EndCursor   *string `json:"endCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

// Page is one page of nodes handed back to Walk.
type Page[T any] struct {
	Nodes       []T
	EndCursor   string
	HasNextPage bool
}

// NewPage builds a Page from decoded nodes and their PageInfo.
func NewPage[T any](nodes []T, info PageInfo) Page[T] {
	p := Page[T]{Nodes: nodes, HasNextPage: info.HasNextPage}
	if info.EndCursor != nil {
		p.EndCursor = *info.EndCursor
	}
	return p
}

// PageFunc fetches the page after cursor. A nil cursor requests the first page.
type PageFunc[T any] func(ctx context.Context, cursor *string) (Page[T], error)
