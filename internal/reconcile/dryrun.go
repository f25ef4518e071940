package reconcile

import (
	"context"
	"log/slog"

	"github.com/qaflow/qastatus/internal/github"
)

// dryRunWriter logs the writes a run would perform and reports them as
// successful, so the rest of the state machine runs unchanged.
type dryRunWriter struct {
	logger *slog.Logger
}

func (w *dryRunWriter) SetStatus(_ context.Context, projectID, itemID, fieldID, optionID string) (bool, error) {
	w.logger.Info("DRY RUN: would update status",
		"project_id", projectID,
		"item", itemID,
		"field_id", fieldID,
		"option_id", optionID,
	)
	return true, nil
}

func (w *dryRunWriter) AddComment(_ context.Context, issueID, body string) (*github.Comment, error) {
	w.logger.Info("DRY RUN: would add comment", "issue_id", issueID, "body", body)
	return &github.Comment{Body: body}, nil
}
