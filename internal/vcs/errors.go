package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFastForward is returned by Pull when histories diverged without
// touching the same paths; the backend does not create merge commits.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrNothingToCommit is returned by Commit when the index matches HEAD
var ErrNothingToCommit = errors.New("nothing to commit")

// ErrDetachedHead is returned when HEAD does not point at a branch
var ErrDetachedHead = errors.New("HEAD is not pointing to a branch")

// MergeConflictError signals that merging Branch left Files conflicted.
// It is the expected trigger for conflict detection, not a terminal failure.
type MergeConflictError struct {
	Branch string
	Files  []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict merging %s: %s", e.Branch, strings.Join(e.Files, ", "))
}

// AsMergeConflict extracts a merge-conflict signal from err's chain
func AsMergeConflict(err error) (*MergeConflictError, bool) {
	var conflict *MergeConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
