package github

import (
	"context"
	"fmt"

	"github.com/qaflow/qastatus/internal/graphql"
	"github.com/qaflow/qastatus/internal/refs"
)

// ResolveIssue fetches the issue a reference points at, including its state,
// in a single query. Returns ErrNotFound when the repository or issue does not
// exist, or when the number belongs to a pull request.
func (c *Client) ResolveIssue(ctx context.Context, ref refs.Ref) (*Issue, error) {
	var resp struct {
		Repository *struct {
			Issue *struct {
				ID     string `json:"id"`
				Number int    `json:"number"`
				Title  string `json:"title"`
				URL    string `json:"url"`
				State  string `json:"state"`
			} `json:"issue"`
		} `json:"repository"`
	}

	vars := map[string]interface{}{
		"owner":  ref.Owner,
		"repo":   ref.Repo,
		"number": ref.Number,
	}
	if err := c.query(ctx, issueByNumberQuery, vars, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", ref, notFound(err, "issue"))
	}
	if resp.Repository == nil || resp.Repository.Issue == nil || resp.Repository.Issue.ID == "" {
		return nil, fmt.Errorf("issue %s: %w", ref, ErrNotFound)
	}

	is := resp.Repository.Issue
	return &Issue{
		ID:     is.ID,
		Number: is.Number,
		Title:  is.Title,
		URL:    is.URL,
		State:  ParseIssueState(is.State),
		Owner:  ref.Owner,
		Repo:   ref.Repo,
	}, nil
}

// IssueState reads the live state of an issue. The node id is tried first;
// when that answer is unusable the issue is looked up again by repository and
// number. Any failure yields IssueUnknown, never an error.
func (c *Client) IssueState(ctx context.Context, issue *Issue) IssueState {
	var byNode struct {
		Node *struct {
			Typename string `json:"__typename"`
			State    string `json:"state"`
		} `json:"node"`
	}
	err := c.query(ctx, issueStateQuery, map[string]interface{}{"id": issue.ID}, &byNode)
	if err == nil && byNode.Node != nil && byNode.Node.Typename == "Issue" && byNode.Node.State != "" {
		return ParseIssueState(byNode.Node.State)
	}
	if err != nil {
		c.log().Warn("issue state lookup by node failed", "issue", issue.Ref(), "error", err)
	}

	if issue.Owner == "" || issue.Repo == "" || issue.Number <= 0 {
		return IssueUnknown
	}

	var byNumber struct {
		Repository *struct {
			Issue *struct {
				State string `json:"state"`
			} `json:"issue"`
		} `json:"repository"`
	}
	vars := map[string]interface{}{
		"owner":  issue.Owner,
		"repo":   issue.Repo,
		"number": issue.Number,
	}
	if err := c.query(ctx, issueStateByNumberQuery, vars, &byNumber); err != nil {
		c.log().Error("issue state lookup failed", "issue", issue.Ref(), "error", err)
		return IssueUnknown
	}
	if byNumber.Repository == nil || byNumber.Repository.Issue == nil {
		c.log().Error("issue state not found", "issue", issue.Ref())
		return IssueUnknown
	}
	return ParseIssueState(byNumber.Repository.Issue.State)
}

// ListComments returns every comment on an issue, oldest first.
func (c *Client) ListComments(ctx context.Context, issueID string) ([]Comment, error) {
	type response struct {
		Node *struct {
			Comments *struct {
				Nodes    []Comment        `json:"nodes"`
				PageInfo graphql.PageInfo `json:"pageInfo"`
			} `json:"comments"`
		} `json:"node"`
	}

	fetch := func(ctx context.Context, cursor *string) (graphql.Page[Comment], error) {
		vars := map[string]interface{}{
			"id":    issueID,
			"first": CommentPageSize,
			"after": cursor,
		}
		var resp response
		if err := c.query(ctx, issueCommentsQuery, vars, &resp); err != nil {
			return graphql.Page[Comment]{}, notFound(err, "issue "+issueID)
		}
		if resp.Node == nil || resp.Node.Comments == nil {
			return graphql.Page[Comment]{}, fmt.Errorf("issue %s: %w", issueID, ErrNotFound)
		}
		return graphql.NewPage(resp.Node.Comments.Nodes, resp.Node.Comments.PageInfo), nil
	}

	comments, err := graphql.Walk(ctx, fetch)
	if err != nil {
		return comments, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// AddComment appends a comment to an issue and returns it.
func (c *Client) AddComment(ctx context.Context, issueID, body string) (*Comment, error) {
	var resp struct {
		AddComment *struct {
			CommentEdge *struct {
				Node *Comment `json:"node"`
			} `json:"commentEdge"`
		} `json:"addComment"`
	}

	vars := map[string]interface{}{
		"subject": issueID,
		"body":    body,
	}
	if err := c.mutate(ctx, addCommentMutation, vars, &resp); err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	if resp.AddComment == nil || resp.AddComment.CommentEdge == nil || resp.AddComment.CommentEdge.Node == nil {
		return nil, fmt.Errorf("failed to add comment: empty mutation result")
	}
	comment := resp.AddComment.CommentEdge.Node
	comment.Body = body
	return comment, nil
}

// IssueStatus returns the name of the single-select value of fieldName on the
// issue's membership of projectID. An empty name means the issue is not on the
// board or the field is unset. Memberships are paged until the project's item
// is found.
func (c *Client) IssueStatus(ctx context.Context, issueID, projectID, fieldName string) (string, error) {
	type membership struct {
		ID      string `json:"id"`
		Project *struct {
			ID string `json:"id"`
		} `json:"project"`
		FieldValueByName *struct {
			Typename string `json:"__typename"`
			Name     string `json:"name"`
			OptionID string `json:"optionId"`
		} `json:"fieldValueByName"`
	}
	type response struct {
		Node *struct {
			ProjectItems *struct {
				Nodes    []membership     `json:"nodes"`
				PageInfo graphql.PageInfo `json:"pageInfo"`
			} `json:"projectItems"`
		} `json:"node"`
	}

	var match *membership
	fetch := func(ctx context.Context, cursor *string) (graphql.Page[membership], error) {
		vars := map[string]interface{}{
			"id":    issueID,
			"field": fieldName,
			"first": MembershipPageSize,
			"after": cursor,
		}
		var resp response
		if err := c.query(ctx, issueStatusQuery, vars, &resp); err != nil {
			return graphql.Page[membership]{}, err
		}
		if resp.Node == nil || resp.Node.ProjectItems == nil {
			return graphql.Page[membership]{}, nil
		}
		page := resp.Node.ProjectItems
		for i := range page.Nodes {
			if p := page.Nodes[i].Project; p != nil && p.ID == projectID {
				match = &page.Nodes[i]
				// Found: stop walking.
				return graphql.Page[membership]{}, nil
			}
		}
		return graphql.NewPage(page.Nodes, page.PageInfo), nil
	}

	if _, err := graphql.Walk(ctx, fetch); err != nil {
		return "", fmt.Errorf("failed to read status: %w", err)
	}
	if match == nil || match.FieldValueByName == nil {
		return "", nil
	}
	return match.FieldValueByName.Name, nil
}
