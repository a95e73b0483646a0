package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"netpromote/internal/vcs"
)

// MockRepository is an in-memory vcs.Repository. Branches point at fake
// commit hashes, pulls fast-forward unless an error is scripted for the
// source branch, and every call is recorded.
type MockRepository struct {
	mu sync.Mutex

	RootDir  string
	Current  string
	Branches map[string]string

	// Working copy
	Files  map[string]vcs.FileStatus
	Stages map[string]vcs.Stages

	// Error simulation
	CheckoutErrors map[string]error
	PullErrors     map[string]error
	FetchError     error
	CommitError    error
	StatusError    error

	// Operation tracking
	Operations []Operation

	commits int
}

// Operation tracks a repository call
type Operation struct {
	Type      string
	Arguments []string
	Timestamp time.Time
	Error     error
}

// NewMockRepository creates a repository with the given branches, all at
// the same initial commit, and the first branch checked out
func NewMockRepository(branches ...string) *MockRepository {
	m := &MockRepository{
		RootDir:        "/tmp/mock-repo",
		Branches:       make(map[string]string),
		Files:          make(map[string]vcs.FileStatus),
		Stages:         make(map[string]vcs.Stages),
		CheckoutErrors: make(map[string]error),
		PullErrors:     make(map[string]error),
	}
	initial := m.nextHash("initial")
	for _, b := range branches {
		m.Branches[b] = initial
	}
	if len(branches) > 0 {
		m.Current = branches[0]
	}
	return m
}

// Root returns the configured working copy path
func (m *MockRepository) Root() string {
	return m.RootDir
}

// Checkout switches the current branch
func (m *MockRepository) Checkout(branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.CheckoutErrors[branch]
	if err == nil {
		if _, ok := m.Branches[branch]; !ok {
			err = fmt.Errorf("branch %s not found", branch)
		}
	}
	m.record("checkout", err, branch)
	if err != nil {
		return err
	}
	m.Current = branch
	return nil
}

// CreateBranch adds name at from, or at the current commit
func (m *MockRepository) CreateBranch(name, from string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	hash := m.Branches[m.Current]
	if _, exists := m.Branches[name]; exists {
		err = fmt.Errorf("branch %s already exists", name)
	} else if from != "" {
		if h, ok := m.Branches[from]; ok {
			hash = h
		} else {
			hash = from
		}
	}
	m.record("create_branch", err, name, from)
	if err != nil {
		return err
	}
	m.Branches[name] = hash
	return nil
}

// CurrentBranch returns the checked out branch
func (m *MockRepository) CurrentBranch() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Current == "" {
		return "", vcs.ErrDetachedHead
	}
	return m.Current, nil
}

// CurrentCommit returns the hash of the current branch
func (m *MockRepository) CurrentCommit() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Branches[m.Current], nil
}

// Status returns the scripted working copy state sorted by path
func (m *MockRepository) Status() ([]vcs.StatusEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("status", m.StatusError)
	if m.StatusError != nil {
		return nil, m.StatusError
	}
	entries := make([]vcs.StatusEntry, 0, len(m.Files))
	for path, status := range m.Files {
		entries = append(entries, vcs.StatusEntry{Path: path, Status: status})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Fetch records the call and returns FetchError
func (m *MockRepository) Fetch(ctx context.Context, remote string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("fetch", m.FetchError, remote)
	return m.FetchError
}

// Pull fast-forwards the current branch to branch unless a pull error is scripted
func (m *MockRepository) Pull(ctx context.Context, remote, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.PullErrors[branch]
	if err == nil {
		if _, ok := m.Branches[branch]; !ok {
			err = fmt.Errorf("branch %s not found", branch)
		}
	}
	m.record("pull", err, remote, branch)
	if err != nil {
		return err
	}
	m.Branches[m.Current] = m.Branches[branch]
	return nil
}

// Stage marks a single path as added
func (m *MockRepository) Stage(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("stage", nil, path)
	m.Files[path] = vcs.FileAdded
	delete(m.Stages, path)
	return nil
}

// StageAll marks every dirty path as added
func (m *MockRepository) StageAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("stage_all", nil)
	for path := range m.Files {
		m.Files[path] = vcs.FileAdded
	}
	return nil
}

// Commit advances the current branch and clears the working copy
func (m *MockRepository) Commit(message string, author, committer *vcs.Signature) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("commit", m.CommitError, message)
	if m.CommitError != nil {
		return "", m.CommitError
	}
	hash := m.nextHash(message)
	m.Branches[m.Current] = hash
	m.Files = make(map[string]vcs.FileStatus)
	return hash, nil
}

// ListBranches returns local branches matching filter, sorted by name
func (m *MockRepository) ListBranches(filter string) ([]vcs.BranchInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var branches []vcs.BranchInfo
	for name, hash := range m.Branches {
		if !vcs.MatchBranch(name, filter) {
			continue
		}
		branches = append(branches, vcs.BranchInfo{
			Name:      name,
			IsCurrent: name == m.Current,
			Commit:    vcs.ShortHash(hash),
		})
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// DiffNames reports one synthetic path named after to when the commits differ
func (m *MockRepository) DiffNames(from, to string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from == to {
		return nil, nil
	}
	return []string{fmt.Sprintf("changes-%s", vcs.ShortHash(to))}, nil
}

// ConflictStages returns the scripted index stages
func (m *MockRepository) ConflictStages() (map[string]vcs.Stages, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stages := make(map[string]vcs.Stages, len(m.Stages))
	for k, v := range m.Stages {
		stages[k] = v
	}
	return stages, nil
}

// SetConflict marks path as conflicted with the given index stages
func (m *MockRepository) SetConflict(path string, stages vcs.Stages) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[path] = vcs.FileConflicted
	m.Stages[path] = stages
}

// AdvanceBranch moves branch to a new fake commit, as if someone pushed to it
func (m *MockRepository) AdvanceBranch(branch string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := m.nextHash(branch)
	m.Branches[branch] = hash
	return hash
}

// OperationsOfType returns the recorded operations with the given type
func (m *MockRepository) OperationsOfType(opType string) []Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ops []Operation
	for _, op := range m.Operations {
		if op.Type == opType {
			ops = append(ops, op)
		}
	}
	return ops
}

func (m *MockRepository) record(opType string, err error, args ...string) {
	m.Operations = append(m.Operations, Operation{
		Type:      opType,
		Arguments: args,
		Timestamp: time.Now(),
		Error:     err,
	})
}

func (m *MockRepository) nextHash(seed string) string {
	m.commits++
	sum := sha1.Sum([]byte(fmt.Sprintf("%s-%d", seed, m.commits)))
	return hex.EncodeToString(sum[:])
}

// StaticRepository hides the optional interfaces of the wrapped repository,
// for callers that must fall back to status-only behavior
type StaticRepository struct {
	vcs.Repository
}

var (
	_ vcs.Repository     = (*MockRepository)(nil)
	_ vcs.StageInspector = (*MockRepository)(nil)
)
