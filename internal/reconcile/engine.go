package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/qaflow/qastatus/internal/github"
	"github.com/qaflow/qastatus/internal/graphql"
	"github.com/qaflow/qastatus/internal/refs"
	"github.com/qaflow/qastatus/internal/telemetry"
)

const scopeName = "github.com/qaflow/qastatus/reconcile"

// Engine correlates merged pull requests, the issues they reference and the
// project board, and drives each pair through the transition state machine:
//
//	resolve -> live open -> not duplicate -> reconfirmed open ->
//	{already on target | item located + status set} -> commented
//
// Any failed gate ends the pair as skipped. Pairs are processed strictly one
// at a time in pull request order, then reference order.
type Engine struct {
	GitHub  GitHub
	Writer  Writer
	Options Options
	Logger  *slog.Logger

	// OnPair is called after each pair completes (optional).
	OnPair func(PairResult)

	// Now returns the current time; replaced in tests.
	Now func() time.Time

	tracer  trace.Tracer
	pairs   metric.Int64Counter
	limiter *rate.Limiter
}

// NewEngine creates an engine reading through client. Writes go to client as
// well, or to a logging no-op writer when opts.DryRun is set.
func NewEngine(client Client, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{
		GitHub:  client,
		Writer:  client,
		Options: opts,
		Logger:  logger,
		Now:     time.Now,
	}
	if opts.DryRun {
		e.Writer = &dryRunWriter{logger: logger}
	}
	e.setDefaults()
	return e
}

// setDefaults fills in what NewEngine would have set, so an Engine built as a
// struct literal can run. Writer falls back to GitHub when it can write.
func (e *Engine) setDefaults() {
	if e.Logger == nil {
		e.Logger = slog.New(slog.DiscardHandler)
	}
	if e.Writer == nil {
		if w, ok := e.GitHub.(Writer); ok {
			e.Writer = w
		}
	}
	if e.tracer == nil {
		e.tracer = telemetry.Tracer(scopeName)
	}
	if e.pairs == nil {
		e.pairs = newPairCounter(e.Logger)
	}
	if e.limiter == nil && e.Options.Throttle > 0 {
		e.limiter = rate.NewLimiter(rate.Every(e.Options.Throttle), 1)
	}
}

func newPairCounter(logger *slog.Logger) metric.Int64Counter {
	c, err := telemetry.Meter(scopeName).Int64Counter("qastatus.reconcile.pairs",
		metric.WithDescription("Processed (pull request, reference) pairs by outcome"),
	)
	if err != nil {
		logger.Warn("pair counter unavailable, outcomes will not be counted", "error", err)
		return metricnoop.Int64Counter{}
	}
	return c
}

// board holds the per-run project configuration.
type board struct {
	project  *github.Project
	field    *github.Field
	optionID string

	// items is built on first use and reused for the rest of the run.
	items *github.ItemIndex
}

// Run performs one reconciliation pass. It returns an error only when the run
// could not complete: the pull request listing hit the page limit, the board
// could not be resolved (wrapping ErrConfiguration), ctx was canceled, or the
// engine has no reader or writer.
// Per-pair failures are reported in the result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.setDefaults()
	if e.GitHub == nil || e.Writer == nil {
		return nil, errors.New("reconcile: engine needs a GitHub reader and a Writer")
	}
	ctx, span := e.tracer.Start(ctx, "reconcile.Run",
		trace.WithAttributes(
			attribute.String("qastatus.branch", e.Options.Branch),
			attribute.Bool("qastatus.dry_run", e.Options.DryRun),
		),
	)
	defer span.End()

	result := &Result{
		Repository: e.Options.RepoOwner + "/" + e.Options.RepoName,
		Branch:     e.Options.Branch,
		DryRun:     e.Options.DryRun,
		StartedAt:  e.now(),
		Pairs:      []PairResult{},
	}
	defer func() { result.FinishedAt = e.now() }()

	e.Logger.Info("starting QA status reconciliation",
		"repository", result.Repository,
		"branch", e.Options.Branch,
		"project", e.projectLabel(),
		"status_field", e.Options.StatusField,
		"dry_run", e.Options.DryRun,
	)
	if e.Options.DryRun {
		e.Logger.Warn("DRY RUN: no status changes or comments will be written")
	}

	prs, err := e.GitHub.ListMergedPullRequests(ctx, e.Options.Branch)
	if err != nil {
		if errors.Is(err, graphql.ErrPageLimit) || ctx.Err() != nil {
			return e.fail(span, result, fmt.Errorf("failed to list merged pull requests: %w", err))
		}
		e.warn(result, "pull request listing incomplete, continuing with %d pull requests: %v", len(prs), err)
	}
	result.Stats.PullRequests = len(prs)
	if len(prs) == 0 {
		e.Logger.Info("no merged pull requests found", "branch", e.Options.Branch)
		return result, nil
	}
	e.Logger.Info("found merged pull requests", "count", len(prs))

	b, err := e.resolveBoard(ctx)
	if err != nil {
		return e.fail(span, result, err)
	}
	result.Project = b.project.Title

	for _, pr := range prs {
		tokens := refs.Extract(pr.BodyText)
		if len(tokens) == 0 {
			e.Logger.Debug("no issue references", "pr", pr.Number)
			continue
		}
		e.Logger.Info("processing pull request", "pr", pr.Number, "title", pr.Title, "references", len(tokens))

		for _, token := range tokens {
			if err := e.wait(ctx); err != nil {
				return e.fail(span, result, err)
			}
			pair, err := e.processPair(ctx, b, pr, token)
			if err != nil {
				return e.fail(span, result, err)
			}
			result.add(pair)
			e.pairs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(pair.Outcome))))
			if e.OnPair != nil {
				e.OnPair(pair)
			}
		}
	}

	e.Logger.Info("reconciliation complete",
		"pull_requests", result.Stats.PullRequests,
		"pairs", result.Stats.Pairs,
		"transitioned", result.Stats.Transitioned,
		"commented", result.Stats.Commented,
		"skipped", result.Stats.Skipped,
		"failed", result.Stats.Failed,
	)
	return result, nil
}

func (e *Engine) fail(span trace.Span, result *Result, err error) (*Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.Logger.Error("reconciliation aborted", "error", err)
	return result, err
}

func (e *Engine) warn(result *Result, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	result.Warnings = append(result.Warnings, msg)
	e.Logger.Warn(msg)
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Engine) projectLabel() string {
	if e.Options.ProjectNum > 0 {
		return fmt.Sprintf("#%d", e.Options.ProjectNum)
	}
	return e.Options.ProjectTitle
}

// wait blocks until the throttle admits the next pair.
func (e *Engine) wait(ctx context.Context) error {
	if e.limiter == nil {
		return ctx.Err()
	}
	return e.limiter.Wait(ctx)
}

// resolveBoard finds the project, its status field and the target option.
// Every failure wraps ErrConfiguration.
func (e *Engine) resolveBoard(ctx context.Context) (*board, error) {
	project, err := e.GitHub.FindProject(ctx, e.Options.Owner, e.Options.OwnerType, e.Options.ProjectNum, e.Options.ProjectTitle)
	if err != nil {
		return nil, fmt.Errorf("%w: project %s: %v", ErrConfiguration, e.projectLabel(), err)
	}

	fields, err := e.GitHub.ListProjectFields(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: fields of project %q: %v", ErrConfiguration, project.Title, err)
	}
	field, ok := github.ResolveStatusField(fields, e.Options.StatusField)
	if !ok {
		return nil, fmt.Errorf("%w: field %q not found in project %q", ErrConfiguration, e.Options.StatusField, project.Title)
	}
	optionID, ok := github.ResolveOption(fields, e.Options.StatusField, TargetStatus)
	if !ok {
		return nil, fmt.Errorf("%w: option %q not found in field %q", ErrConfiguration, TargetStatus, field.Name)
	}

	e.Logger.Info("resolved project board",
		"project", project.Title,
		"project_id", project.ID,
		"field_id", field.ID,
		"option_id", optionID,
	)
	return &board{project: project, field: field, optionID: optionID}, nil
}

// itemIndex lists the board items once per run. A listing error keeps the
// partial index, except the page limit which aborts the run.
func (e *Engine) itemIndex(ctx context.Context, b *board) (*github.ItemIndex, error) {
	if b.items != nil {
		return b.items, nil
	}
	items, err := e.GitHub.ListProjectItems(ctx, b.project.ID, e.Options.ItemFilter)
	if err != nil {
		if errors.Is(err, graphql.ErrPageLimit) || ctx.Err() != nil {
			return nil, fmt.Errorf("failed to list project items: %w", err)
		}
		e.Logger.Warn("project item listing incomplete", "items", len(items), "error", err)
	}
	b.items = github.NewItemIndex(items)
	e.Logger.Debug("indexed project items", "items", b.items.Len())
	return b.items, nil
}

// processPair drives one (pull request, reference) pair to a terminal outcome.
// The returned error is non-nil only when the whole run must stop.
func (e *Engine) processPair(ctx context.Context, b *board, pr github.PullRequest, token string) (PairResult, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.pair",
		trace.WithAttributes(
			attribute.Int("qastatus.pr", pr.Number),
			attribute.String("qastatus.reference", token),
		),
	)
	defer span.End()

	res := PairResult{PR: pr.Number, PRURL: pr.URL, Reference: token}
	log := e.Logger.With("pr", pr.Number, "reference", token)
	done := func(o Outcome, reason string) (PairResult, error) {
		res.Outcome = o
		res.Reason = reason
		span.SetAttributes(attribute.String("qastatus.outcome", string(o)))
		return res, nil
	}

	ref, err := refs.Parse(token, e.Options.RepoOwner, e.Options.RepoName)
	if err != nil {
		log.Warn("skipping unparseable reference", "error", err)
		return done(OutcomeResolveFailed, err.Error())
	}
	issue, err := e.GitHub.ResolveIssue(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Warn("could not resolve issue", "issue", ref.String(), "error", err)
		return done(OutcomeResolveFailed, err.Error())
	}
	res.Issue = issue.Ref()
	res.IssueNumber = issue.Number
	log = log.With("issue", res.Issue)

	if state := e.GitHub.IssueState(ctx, issue); state != github.IssueOpen {
		log.Info("issue is not open, skipping", "state", string(state))
		return done(OutcomeNotOpen, "issue state "+string(state))
	}

	body := CommentBody(pr)
	comments, err := e.GitHub.ListComments(ctx, issue.ID)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Warn("could not read comments, skipping to avoid a duplicate", "error", err)
		return done(OutcomeCommentCheckFailed, err.Error())
	}
	for _, c := range comments {
		if strings.Contains(c.Body, body) {
			log.Info("already notified for this pull request, skipping")
			return done(OutcomeDuplicate, "comment already posted")
		}
	}

	if state := e.GitHub.IssueState(ctx, issue); state != github.IssueOpen {
		log.Warn("issue closed before update, skipping", "state", string(state))
		return done(OutcomeClosedBeforeWrite, "issue state "+string(state))
	}

	current, err := e.GitHub.IssueStatus(ctx, issue.ID, b.project.ID, b.field.Name)
	if err != nil {
		log.Warn("could not read current status, treating as unset", "error", err)
		current = ""
	}
	res.PrevStatus = current

	if current == TargetStatus {
		log.Info("issue already in target status, commenting only", "status", current)
		if !e.comment(ctx, log, issue, body) {
			return done(OutcomeCommentFailed, "comment could not be posted")
		}
		return done(OutcomeCommented, "")
	}

	idx, err := e.itemIndex(ctx, b)
	if err != nil {
		return res, err
	}
	item, ok := idx.Lookup(issue.ID)
	if !ok {
		log.Warn("issue is not on the project board, skipping", "project", b.project.Title)
		return done(OutcomeItemNotFound, "no item on project "+b.project.Title)
	}

	updated, err := e.Writer.SetStatus(ctx, b.project.ID, item.ID, b.field.ID, b.optionID)
	if err != nil || !updated {
		if err == nil {
			err = errors.New("empty mutation result")
		}
		log.Error("failed to update status", "item", item.ID, "error", err)
		span.RecordError(err)
		return done(OutcomeMutationFailed, err.Error())
	}
	log.Info("status updated", "from", current, "to", TargetStatus)

	if !e.comment(ctx, log, issue, body) {
		return done(OutcomeCommentFailed, "status updated; comment could not be posted")
	}
	return done(OutcomeTransitioned, "")
}

func (e *Engine) comment(ctx context.Context, log *slog.Logger, issue *github.Issue, body string) bool {
	c, err := e.Writer.AddComment(ctx, issue.ID, body)
	if err != nil {
		log.Error("failed to add comment", "error", err)
		return false
	}
	log.Info("comment added", "url", c.URL)
	return true
}
