// Package github provides typed access to the GitHub GraphQL API for pull
// requests, issues, comments and Projects (v2) boards.
//
// Every method issues its documents through a graphql.Doer and decodes the
// result into the explicit structures below. List operations are fully
// paginated with graphql.Walk.
package github

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qaflow/qastatus/internal/graphql"
)

// Page sizes per connection.
const (
	// PullRequestPageSize matches what the merged PR query has always used.
	PullRequestPageSize = 50

	// ItemPageSize is the page size for project items, fields and projects.
	ItemPageSize = 100

	// CommentPageSize is the page size for issue comments.
	CommentPageSize = 100

	// MembershipPageSize is the page size for an issue's board memberships.
	MembershipPageSize = 20
)

// ErrNotFound is returned when a repository, issue or project does not exist
// or is not visible to the token.
var ErrNotFound = errors.New("not found")

// Client provides methods to interact with the GitHub GraphQL API on behalf of
// one repository.
type Client struct {
	API    graphql.Doer // Transport
	Owner  string       // Repository owner (user or org)
	Repo   string       // Repository name
	Logger *slog.Logger
}

// IssueState is the live state of an issue.
type IssueState string

const (
	IssueOpen    IssueState = "OPEN"
	IssueClosed  IssueState = "CLOSED"
	IssueUnknown IssueState = "UNKNOWN"
)

// ParseIssueState maps an API state string to an IssueState. Anything other
// than OPEN or CLOSED becomes IssueUnknown.
func ParseIssueState(s string) IssueState {
	switch IssueState(s) {
	case IssueOpen:
		return IssueOpen
	case IssueClosed:
		return IssueClosed
	default:
		return IssueUnknown
	}
}

// OwnerType selects the GraphQL root field used to look up projects.
type OwnerType string

const (
	OwnerOrganization OwnerType = "organization"
	OwnerUser         OwnerType = "user"
)

// IsValid reports whether t is a known owner type.
func (t OwnerType) IsValid() bool {
	return t == OwnerOrganization || t == OwnerUser
}

// ItemFilter selects which project items ListProjectItems returns.
type ItemFilter string

const (
	// ItemFilterAll returns every item that wraps an issue.
	ItemFilterAll ItemFilter = "all"
	// ItemFilterOpen returns items whose issue was OPEN when the page was read.
	ItemFilterOpen ItemFilter = "open"
)

// IsValid reports whether f is a known filter.
func (f ItemFilter) IsValid() bool {
	return f == ItemFilterAll || f == ItemFilterOpen
}

// PullRequest is a merged pull request.
type PullRequest struct {
	ID       string     `json:"id"`
	Number   int        `json:"number"`
	Title    string     `json:"title"`
	BodyText string     `json:"bodyText"`
	MergedAt *time.Time `json:"mergedAt"`
	URL      string     `json:"url"`
}

// Issue is a resolved issue. Owner and Repo are the repository the reference
// resolved to, which may differ from the client's repository.
type Issue struct {
	ID     string     `json:"id"`
	Number int        `json:"number"`
	Title  string     `json:"title"`
	URL    string     `json:"url"`
	State  IssueState `json:"state"`
	Owner  string     `json:"-"`
	Repo   string     `json:"-"`
}

// Ref returns the owner/repo#number form of the issue.
func (i *Issue) Ref() string {
	return fmt.Sprintf("%s/%s#%d", i.Owner, i.Repo, i.Number)
}

// Project is a Projects (v2) board.
type Project struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Field is a project field. Options is empty for non single-select fields.
type Field struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"__typename"`
	Options []Option `json:"options"`
}

// Option is one choice of a single-select field.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectItem is a board row wrapping an issue. ID is the item handle the
// field mutation needs; IssueState is the snapshot taken when the page was read.
type ProjectItem struct {
	ID          string
	IssueID     string
	IssueNumber int
	IssueState  IssueState
}

// Comment is an issue comment.
type Comment struct {
	ID        string     `json:"id"`
	Body      string     `json:"body"`
	URL       string     `json:"url"`
	CreatedAt *time.Time `json:"createdAt"`
}
