package github

import (
	"context"
	"fmt"

	"github.com/qaflow/qastatus/internal/graphql"
)

// FindProject locates a project board owned by owner. A positive number is
// looked up directly; otherwise the owner's projects are scanned for an exact
// title match. Returns ErrNotFound when nothing matches.
func (c *Client) FindProject(ctx context.Context, owner string, ownerType OwnerType, number int, title string) (*Project, error) {
	if !ownerType.IsValid() {
		return nil, fmt.Errorf("invalid owner type %q (want %q or %q)", ownerType, OwnerOrganization, OwnerUser)
	}
	if number > 0 {
		return c.projectByNumber(ctx, owner, ownerType, number)
	}
	if title == "" {
		return nil, fmt.Errorf("project number or title is required")
	}
	return c.projectByTitle(ctx, owner, ownerType, title)
}

func (c *Client) projectByNumber(ctx context.Context, owner string, ownerType OwnerType, number int) (*Project, error) {
	var resp struct {
		Owner *struct {
			ProjectV2 *Project `json:"projectV2"`
		} `json:"owner"`
	}
	vars := map[string]interface{}{
		"login":  owner,
		"number": number,
	}
	if err := c.query(ctx, projectByNumberQuery(ownerType), vars, &resp); err != nil {
		return nil, fmt.Errorf("failed to look up project %d: %w", number, notFound(err, "project"))
	}
	if resp.Owner == nil || resp.Owner.ProjectV2 == nil {
		return nil, fmt.Errorf("project %d of %s: %w", number, owner, ErrNotFound)
	}
	return resp.Owner.ProjectV2, nil
}

func (c *Client) projectByTitle(ctx context.Context, owner string, ownerType OwnerType, title string) (*Project, error) {
	type response struct {
		Owner *struct {
			ProjectsV2 struct {
				Nodes    []Project        `json:"nodes"`
				PageInfo graphql.PageInfo `json:"pageInfo"`
			} `json:"projectsV2"`
		} `json:"owner"`
	}

	doc := projectsQuery(ownerType)
	fetch := func(ctx context.Context, cursor *string) (graphql.Page[Project], error) {
		vars := map[string]interface{}{
			"login": owner,
			"first": ItemPageSize,
			"after": cursor,
		}
		var resp response
		if err := c.query(ctx, doc, vars, &resp); err != nil {
			return graphql.Page[Project]{}, notFound(err, string(ownerType)+" "+owner)
		}
		if resp.Owner == nil {
			return graphql.Page[Project]{}, fmt.Errorf("%s %s: %w", ownerType, owner, ErrNotFound)
		}
		return graphql.NewPage(resp.Owner.ProjectsV2.Nodes, resp.Owner.ProjectsV2.PageInfo), nil
	}

	projects, err := graphql.Walk(ctx, fetch)
	for i := range projects {
		if projects[i].Title == title {
			return &projects[i], nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list projects of %s: %w", owner, err)
	}
	return nil, fmt.Errorf("project %q of %s: %w", title, owner, ErrNotFound)
}

// ListProjectFields returns every field of a project with the options of its
// single-select fields.
func (c *Client) ListProjectFields(ctx context.Context, projectID string) ([]Field, error) {
	type response struct {
		Node *struct {
			Fields *struct {
				Nodes    []Field          `json:"nodes"`
				PageInfo graphql.PageInfo `json:"pageInfo"`
			} `json:"fields"`
		} `json:"node"`
	}

	fetch := func(ctx context.Context, cursor *string) (graphql.Page[Field], error) {
		vars := map[string]interface{}{
			"project": projectID,
			"first":   ItemPageSize,
			"after":   cursor,
		}
		var resp response
		if err := c.query(ctx, projectFieldsQuery, vars, &resp); err != nil {
			return graphql.Page[Field]{}, notFound(err, "project "+projectID)
		}
		if resp.Node == nil || resp.Node.Fields == nil {
			return graphql.Page[Field]{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return graphql.NewPage(resp.Node.Fields.Nodes, resp.Node.Fields.PageInfo), nil
	}

	fields, err := graphql.Walk(ctx, fetch)
	if err != nil {
		return fields, fmt.Errorf("failed to list project fields: %w", err)
	}
	return fields, nil
}

// ResolveStatusField returns the first field named exactly name.
func ResolveStatusField(fields []Field, name string) (*Field, bool) {
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i], true
		}
	}
	return nil, false
}

// ResolveOption returns the id of the option labelled label on the first field
// named fieldName. Both comparisons are exact and case-sensitive.
func ResolveOption(fields []Field, fieldName, label string) (string, bool) {
	field, ok := ResolveStatusField(fields, fieldName)
	if !ok {
		return "", false
	}
	for _, opt := range field.Options {
		if opt.Name == label {
			return opt.ID, true
		}
	}
	return "", false
}

// ListProjectItems returns the project's items that wrap issues. Draft issues,
// pull requests and redacted items are skipped. With ItemFilterOpen only items
// whose issue was OPEN at read time are kept; callers must still check live
// state before acting.
func (c *Client) ListProjectItems(ctx context.Context, projectID string, filter ItemFilter) ([]ProjectItem, error) {
	type itemNode struct {
		ID      string `json:"id"`
		Content *struct {
			Typename string `json:"__typename"`
			ID       string `json:"id"`
			Number   int    `json:"number"`
			State    string `json:"state"`
		} `json:"content"`
	}
	type response struct {
		Node *struct {
			Items *struct {
				Nodes    []itemNode       `json:"nodes"`
				PageInfo graphql.PageInfo `json:"pageInfo"`
			} `json:"items"`
		} `json:"node"`
	}

	fetch := func(ctx context.Context, cursor *string) (graphql.Page[ProjectItem], error) {
		vars := map[string]interface{}{
			"project": projectID,
			"first":   ItemPageSize,
			"after":   cursor,
		}
		var resp response
		if err := c.query(ctx, projectItemsQuery, vars, &resp); err != nil {
			return graphql.Page[ProjectItem]{}, notFound(err, "project "+projectID)
		}
		if resp.Node == nil || resp.Node.Items == nil {
			return graphql.Page[ProjectItem]{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}

		items := make([]ProjectItem, 0, len(resp.Node.Items.Nodes))
		for _, n := range resp.Node.Items.Nodes {
			if n.Content == nil || n.Content.Typename != "Issue" || n.Content.ID == "" {
				continue
			}
			item := ProjectItem{
				ID:          n.ID,
				IssueID:     n.Content.ID,
				IssueNumber: n.Content.Number,
				IssueState:  ParseIssueState(n.Content.State),
			}
			if filter == ItemFilterOpen && item.IssueState != IssueOpen {
				continue
			}
			items = append(items, item)
		}
		return graphql.NewPage(items, resp.Node.Items.PageInfo), nil
	}

	items, err := graphql.Walk(ctx, fetch)
	if err != nil {
		return items, fmt.Errorf("failed to list project items: %w", err)
	}
	return items, nil
}

// FindItemForIssue returns the item wrapping issueID.
func FindItemForIssue(items []ProjectItem, issueID string) (ProjectItem, bool) {
	for _, item := range items {
		if item.IssueID == issueID {
			return item, true
		}
	}
	return ProjectItem{}, false
}

// ItemIndex maps issue ids to the board items that wrap them.
type ItemIndex struct {
	byIssue map[string]ProjectItem
}

// NewItemIndex indexes items by issue id. When an issue appears more than once
// the first item wins, matching FindItemForIssue.
func NewItemIndex(items []ProjectItem) *ItemIndex {
	idx := &ItemIndex{byIssue: make(map[string]ProjectItem, len(items))}
	for _, item := range items {
		if _, ok := idx.byIssue[item.IssueID]; !ok {
			idx.byIssue[item.IssueID] = item
		}
	}
	return idx
}

// Lookup returns the item wrapping issueID.
func (x *ItemIndex) Lookup(issueID string) (ProjectItem, bool) {
	item, ok := x.byIssue[issueID]
	return item, ok
}

// Len returns the number of indexed issues.
func (x *ItemIndex) Len() int {
	return len(x.byIssue)
}

// SetStatus sets a single-select field on a board item. It reports true only
// when the server confirms the updated item.
func (c *Client) SetStatus(ctx context.Context, projectID, itemID, fieldID, optionID string) (bool, error) {
	var resp struct {
		Update *struct {
			ProjectV2Item *struct {
				ID string `json:"id"`
			} `json:"projectV2Item"`
		} `json:"updateProjectV2ItemFieldValue"`
	}

	vars := map[string]interface{}{
		"project": projectID,
		"item":    itemID,
		"field":   fieldID,
		"option":  optionID,
	}
	if err := c.mutate(ctx, setStatusMutation, vars, &resp); err != nil {
		return false, fmt.Errorf("failed to update item %s: %w", itemID, err)
	}
	if resp.Update == nil || resp.Update.ProjectV2Item == nil || resp.Update.ProjectV2Item.ID == "" {
		return false, nil
	}
	return true, nil
}
