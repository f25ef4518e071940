package graphql

import (
	"context"
	"fmt"
)

// Walk calls fetch with a nil cursor and then with each returned EndCursor,
// accumulating nodes until a page reports no next page.
//
// On a fetch error the nodes gathered so far are returned together with the
// error, so callers can decide whether partial data is usable.
func Walk[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	return WalkLimit(ctx, MaxPages, fetch)
}

// WalkLimit is Walk with an explicit page cap.
func WalkLimit[T any](ctx context.Context, maxPages int, fetch PageFunc[T]) ([]T, error) {
	var all []T
	var cursor *string

	for page := 1; ; page++ {
		if page > maxPages {
			return all, fmt.Errorf("%w: stopped after %d pages", ErrPageLimit, maxPages)
		}

		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		p, err := fetch(ctx, cursor)
		if err != nil {
			return all, err
		}
		all = append(all, p.Nodes...)

		if !p.HasNextPage {
			return all, nil
		}
		if p.EndCursor == "" {
			return all, ErrMissingCursor
		}
		next := p.EndCursor
		cursor = &next
	}
}
