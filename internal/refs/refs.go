// Package refs finds issue references in free text.
//
// Three lexical forms are recognized:
//
//	#123            issue in the current repository
//	repo#123        issue in another repository of the same owner
//	owner/repo#123  issue in any repository
package refs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalidReference is returned by Parse for tokens that are not issue references.
var ErrInvalidReference = errors.New("invalid issue reference")

// referencePattern lists the alternatives longest-first; RE2 alternation is
// leftmost-first, so the most qualified form wins at each position.
var referencePattern = regexp.MustCompile(`(?:[\w\-]+/[\w\-]+#\d+|[\w\-]+#\d+|#\d+)`)

var tokenPattern = regexp.MustCompile(`^(?:(?:([\w\-]+)/)?([\w\-]+))?#(\d+)$`)

// Ref is a parsed issue reference with owner and repository filled in.
type Ref struct {
	Owner  string
	Repo   string
	Number int
	Raw    string // token as it appeared in the text
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// Extract returns every issue reference token in text, in order of
// appearance. Duplicates are kept.
func Extract(text string) []string {
	matches := referencePattern.FindAllString(text, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}

// Parse converts a token produced by Extract into a Ref. Missing owner or
// repository parts take the given defaults.
func Parse(token, defaultOwner, defaultRepo string) (Ref, error) {
	m := tokenPattern.FindStringSubmatch(token)
	if m == nil {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidReference, token)
	}

	number, err := strconv.Atoi(m[3])
	if err != nil || number <= 0 {
		return Ref{}, fmt.Errorf("%w: %q has no valid issue number", ErrInvalidReference, token)
	}

	ref := Ref{Owner: defaultOwner, Repo: defaultRepo, Number: number, Raw: token}
	if m[1] != "" {
		ref.Owner = m[1]
	}
	if m[2] != "" {
		ref.Repo = m[2]
	}
	if ref.Owner == "" || ref.Repo == "" {
		return Ref{}, fmt.Errorf("%w: %q has no owner/repository and no default", ErrInvalidReference, token)
	}
	return ref, nil
}

// Unique returns tokens with later duplicates removed, preserving order.
func Unique(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
