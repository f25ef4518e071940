// Package reconcile moves issues referenced by merged pull requests to the
// "QA Testing" status of a project board and announces the move with a
// comment, exactly once per pull request and issue.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qaflow/qastatus/internal/config"
	"github.com/qaflow/qastatus/internal/github"
	"github.com/qaflow/qastatus/internal/refs"
)

// TargetStatus is the single-select option every processed issue is moved to.
const TargetStatus = "QA Testing"

// DefaultThrottle is the pause between processed pairs.
const DefaultThrottle = 400 * time.Millisecond

// ErrConfiguration is wrapped by Run when the project, its status field or the
// target option cannot be resolved. No pull request is processed in that case.
var ErrConfiguration = errors.New("project configuration could not be resolved")

// CommentBody returns the notification posted for pr. The text doubles as the
// idempotency key: an issue whose comments already contain it is skipped.
func CommentBody(pr github.PullRequest) string {
	return fmt.Sprintf("Testing will be available in 15 minutes (triggered by [PR #%d](%s))", pr.Number, pr.URL)
}

// GitHub is the read side of the engine.
type GitHub interface {
	ListMergedPullRequests(ctx context.Context, base string) ([]github.PullRequest, error)
	FindProject(ctx context.Context, owner string, ownerType github.OwnerType, number int, title string) (*github.Project, error)
	ListProjectFields(ctx context.Context, projectID string) ([]github.Field, error)
	ListProjectItems(ctx context.Context, projectID string, filter github.ItemFilter) ([]github.ProjectItem, error)
	ResolveIssue(ctx context.Context, ref refs.Ref) (*github.Issue, error)
	IssueState(ctx context.Context, issue *github.Issue) github.IssueState
	ListComments(ctx context.Context, issueID string) ([]github.Comment, error)
	IssueStatus(ctx context.Context, issueID, projectID, fieldName string) (string, error)
}

// Writer performs the engine's side effects. Swapping it is how dry-run works.
type Writer interface {
	SetStatus(ctx context.Context, projectID, itemID, fieldID, optionID string) (bool, error)
	AddComment(ctx context.Context, issueID, body string) (*github.Comment, error)
}

// Client is satisfied by *github.Client.
type Client interface {
	GitHub
	Writer
}

// Options configures a run.
type Options struct {
	Owner        string            // owner of the project board
	OwnerType    github.OwnerType  // organization or user
	RepoOwner    string            // default owner for short references
	RepoName     string            // default repository for "#N" references
	Branch       string            // base branch of the merged pull requests
	ProjectNum   int               // board number; takes precedence over ProjectTitle
	ProjectTitle string            // exact board title
	StatusField  string            // single-select field holding the status
	ItemFilter   github.ItemFilter // which board items are indexed
	DryRun       bool              // log writes instead of performing them
	Throttle     time.Duration     // pause between pairs; <= 0 disables it
}

// OptionsFromConfig copies the run settings out of a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Owner:        cfg.Owner,
		OwnerType:    cfg.OwnerType,
		RepoOwner:    cfg.RepoOwner,
		RepoName:     cfg.RepoName,
		Branch:       cfg.Branch,
		ProjectNum:   cfg.Project.Number,
		ProjectTitle: cfg.Project.Title,
		StatusField:  cfg.Project.StatusField,
		ItemFilter:   cfg.Project.ItemFilter,
		DryRun:       cfg.DryRun,
		Throttle:     cfg.Throttle,
	}
}

// Outcome is the terminal state of one (pull request, reference) pair.
type Outcome string

const (
	OutcomeResolveFailed      Outcome = "resolve_failed"       // reference unparseable or issue not found
	OutcomeNotOpen            Outcome = "not_open"             // issue closed or state unknown
	OutcomeCommentCheckFailed Outcome = "comment_check_failed" // comments could not be read
	OutcomeDuplicate          Outcome = "duplicate"            // notification already posted
	OutcomeClosedBeforeWrite  Outcome = "closed_before_write"  // closed between the two state reads
	OutcomeItemNotFound       Outcome = "item_not_found"       // issue is not on the board
	OutcomeMutationFailed     Outcome = "mutation_failed"      // status update failed or unconfirmed
	OutcomeCommentFailed      Outcome = "comment_failed"       // notification could not be posted
	OutcomeCommented          Outcome = "commented"            // already on target; comment posted
	OutcomeTransitioned       Outcome = "transitioned"         // status moved and comment posted
)

// Succeeded reports whether the pair ended with the notification posted.
func (o Outcome) Succeeded() bool {
	return o == OutcomeCommented || o == OutcomeTransitioned
}

// Failed reports whether the pair ended on a write failure.
func (o Outcome) Failed() bool {
	return o == OutcomeMutationFailed || o == OutcomeCommentFailed
}

// PairResult records what happened to one reference found in one pull request.
type PairResult struct {
	PR          int     `json:"pr" yaml:"pr"`
	PRURL       string  `json:"pr_url,omitempty" yaml:"pr_url,omitempty"`
	Reference   string  `json:"reference" yaml:"reference"`
	Issue       string  `json:"issue,omitempty" yaml:"issue,omitempty"`
	IssueNumber int     `json:"issue_number,omitempty" yaml:"issue_number,omitempty"`
	Outcome     Outcome `json:"outcome" yaml:"outcome"`
	Reason      string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	PrevStatus  string  `json:"previous_status,omitempty" yaml:"previous_status,omitempty"`
}

// Stats tracks outcome counts for a run.
type Stats struct {
	PullRequests int `json:"pull_requests" yaml:"pull_requests"` // Merged pull requests scanned
	Pairs        int `json:"pairs" yaml:"pairs"`                 // References processed
	Transitioned int `json:"transitioned" yaml:"transitioned"`   // Status moved and comment posted
	Commented    int `json:"commented" yaml:"commented"`         // Already on target; comment posted
	Skipped      int `json:"skipped" yaml:"skipped"`             // Short-circuited before any write
	Failed       int `json:"failed" yaml:"failed"`               // A write failed
}

// Result summarizes a run.
type Result struct {
	Repository string       `json:"repository" yaml:"repository"`
	Branch     string       `json:"branch" yaml:"branch"`
	Project    string       `json:"project,omitempty" yaml:"project,omitempty"`
	DryRun     bool         `json:"dry_run" yaml:"dry_run"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Stats      Stats        `json:"stats" yaml:"stats"`
	Pairs      []PairResult `json:"pairs" yaml:"pairs"`
	Warnings   []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func (r *Result) add(p PairResult) {
	r.Pairs = append(r.Pairs, p)
	r.Stats.Pairs++
	switch {
	case p.Outcome == OutcomeTransitioned:
		r.Stats.Transitioned++
	case p.Outcome == OutcomeCommented:
		r.Stats.Commented++
	case p.Outcome.Failed():
		r.Stats.Failed++
	default:
		r.Stats.Skipped++
	}
}
