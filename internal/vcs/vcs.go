// Package vcs is the version-control collaborator consumed by the promotion
// workflow and the conflict engine. Repository is the narrow, synchronous API
// the core depends on; GitRepository implements it on top of go-git.
package vcs

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FileStatus is the working-copy state of a single path
type FileStatus int

const (
	FileUnmodified FileStatus = iota
	FileUntracked
	FileModified
	FileAdded
	FileDeleted
	FileRenamed
	FileCopied
	FileConflicted
)

var fileStatusNames = map[FileStatus]string{
	FileUnmodified: "unmodified",
	FileUntracked:  "untracked",
	FileModified:   "modified",
	FileAdded:      "added",
	FileDeleted:    "deleted",
	FileRenamed:    "renamed",
	FileCopied:     "copied",
	FileConflicted: "conflicted",
}

func (s FileStatus) String() string {
	if name, ok := fileStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("FileStatus(%d)", int(s))
}

// StatusEntry pairs a repository-relative path with its status
type StatusEntry struct {
	Path   string     `json:"path"`
	Status FileStatus `json:"status"`
}

// BranchInfo describes a local or remote-tracking branch
type BranchInfo struct {
	Name      string `json:"name"`
	IsCurrent bool   `json:"is_current"`
	IsRemote  bool   `json:"is_remote"`
	Commit    string `json:"commit,omitempty"`
}

// Signature identifies the author or committer of a commit
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Repository is the set of version-control primitives the workflow needs.
// Implementations are not safe for concurrent use: every call may move the
// single current branch of the underlying working copy.
type Repository interface {
	// Root returns the absolute path of the working copy
	Root() string
	Checkout(branch string) error
	// CreateBranch creates name at from, or at HEAD when from is empty
	CreateBranch(name, from string) error
	CurrentBranch() (string, error)
	CurrentCommit() (string, error)
	Status() ([]StatusEntry, error)
	// Fetch updates remote-tracking refs; an empty remote means the default one
	Fetch(ctx context.Context, remote string) error
	// Pull merges branch (from remote when non-empty) into the current branch.
	// Conflicts are reported as *MergeConflictError.
	Pull(ctx context.Context, remote, branch string) error
	Stage(path string) error
	StageAll() error
	// Commit records the staged changes and returns the new commit hash.
	// Nil signatures fall back to the repository default identity.
	Commit(message string, author, committer *Signature) (string, error)
	// ListBranches returns branches whose name contains filter; empty matches all
	ListBranches(filter string) ([]BranchInfo, error)
	// DiffNames lists paths that differ between two commits
	DiffNames(from, to string) ([]string, error)
}

// ProtectionChecker is implemented by repositories that can vet a promotion
// from one branch into another before any request is created.
type ProtectionChecker interface {
	CheckPromotion(sourceBranch, targetBranch string) error
}

// Stages records which index stages are present for a conflicted path
type Stages struct {
	Base      bool
	Ours      bool
	Theirs    bool
	Submodule bool
}

// StageInspector is implemented by repositories that expose unmerged index entries
type StageInspector interface {
	ConflictStages() (map[string]Stages, error)
}

// ShortHash abbreviates a commit hash for messages
func ShortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// MatchBranch reports whether name passes a ListBranches filter
func MatchBranch(name, filter string) bool {
	return filter == "" || strings.Contains(name, filter)
}
