package environment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"netpromote/internal/vcs"
	"netpromote/pkg/errors"
)

// CreatePromotionRequest validates the path from source to target, records
// the source branch's current commit and stores a new request. Targets that
// require approval start Pending; others start Approved.
func (m *Manager) CreatePromotionRequest(source, target, message, requester string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validatePath(source, target); err != nil {
		return "", err
	}
	src := m.environments[source]
	tgt := m.environments[target]

	var sourceCommit string
	err := m.withBranch(src.Branch, func() error {
		commit, err := m.repo.CurrentCommit()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeBranchNotFound,
				fmt.Sprintf("Failed to read commit of branch '%s'", src.Branch))
		}
		sourceCommit = commit
		return nil
	})
	if err != nil {
		return "", err
	}

	now := m.now()
	status := StatusApproved
	if tgt.RequiresApproval {
		status = StatusPending
	}

	req := &PromotionRequest{
		ID:           newPromotionID(source, target, now),
		Source:       source,
		Target:       target,
		SourceBranch: src.Branch,
		TargetBranch: tgt.Branch,
		SourceCommit: sourceCommit,
		Status:       status,
		Message:      message,
		RequestedBy:  requester,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata: map[string]string{
			"source_type": src.Type.String(),
			"target_type": tgt.Type.String(),
		},
	}
	m.promotions[req.ID] = req

	m.logger.Info().
		Str("promotion", req.ID).
		Str("source", source).
		Str("target", target).
		Str("commit", vcs.ShortHash(sourceCommit)).
		Str("status", status.String()).
		Msg("Promotion request created")
	return req.ID, nil
}

// Approve moves a pending request to approved
func (m *Manager) Approve(id, approver string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.lookupPromotion(id)
	if err != nil {
		return err
	}
	if err := m.transition(req, StatusApproved); err != nil {
		return err
	}
	req.ApprovedBy = approver
	return nil
}

// Reject closes a pending request without executing it
func (m *Manager) Reject(id, approver, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.lookupPromotion(id)
	if err != nil {
		return err
	}
	if err := m.transition(req, StatusRejected); err != nil {
		return err
	}
	req.RejectedBy = approver
	if reason != "" {
		req.Metadata["rejection_reason"] = reason
	}
	m.record(req)
	return nil
}

// Retry returns a failed request to approved so it can be executed again,
// typically after its conflicts were resolved on the target branch
func (m *Manager) Retry(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.lookupPromotion(id)
	if err != nil {
		return err
	}
	if req.Status != StatusFailed {
		return errors.InvalidState(id, req.Status.String(), StatusApproved.String())
	}
	if err := m.transition(req, StatusApproved); err != nil {
		return err
	}
	req.Error = ""
	req.Conflicts = nil
	req.TargetCommit = ""
	req.CompletedAt = nil
	return nil
}

// Cancel abandons a request that is not executing and has not completed
func (m *Manager) Cancel(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.lookupPromotion(id)
	if err != nil {
		return err
	}
	if req.Status == StatusCancelled {
		return nil
	}
	if err := m.transition(req, StatusCancelled); err != nil {
		return err
	}
	req.CancelReason = reason
	m.record(req)
	return nil
}

// Execute merges the request's source branch into its target branch.
// A merge conflict is reported through a failed result carrying the
// conflicting files and a nil error; any other failure returns both the
// failed result and the error. The branch checked out before the call is
// restored in every case.
func (m *Manager) Execute(ctx context.Context, id string) (*PromotionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.lookupPromotion(id)
	if err != nil {
		return nil, err
	}
	if err := m.transition(req, StatusInProgress); err != nil {
		return nil, err
	}

	result := &PromotionResult{
		RequestID: id,
		StartedAt: m.now(),
	}

	err = m.withBranch(req.TargetBranch, func() error {
		return m.merge(ctx, req, result)
	})
	result.FinishedAt = m.now()

	if err != nil {
		result.Error = err.Error()
		req.Error = result.Error
		req.TargetCommit = result.TargetCommit

		if conflict, ok := vcs.AsMergeConflict(err); ok {
			result.Conflicts = append([]string(nil), conflict.Files...)
			req.Conflicts = append([]string(nil), conflict.Files...)
			m.logger.Warn().
				Str("promotion", id).
				Strs("files", conflict.Files).
				Msg("Promotion hit merge conflicts")
			m.finish(req, StatusFailed)
			return result, nil
		}

		m.logger.Error().Err(err).Str("promotion", id).Msg("Promotion failed")
		m.finish(req, StatusFailed)
		return result, errors.Wrap(err, errors.ErrCodePromotionFailed,
			fmt.Sprintf("Promotion %s failed", id)).
			WithContext("promotion", id)
	}

	result.Success = true
	req.TargetCommit = result.TargetCommit
	m.finish(req, StatusCompleted)
	return result, nil
}

// merge runs with the target branch checked out
func (m *Manager) merge(ctx context.Context, req *PromotionRequest, result *PromotionResult) error {
	before, err := m.repo.CurrentCommit()
	if err != nil {
		return err
	}

	if err := m.repo.Fetch(ctx, m.remote); err != nil {
		return err
	}
	if err := m.repo.Pull(ctx, m.remote, req.SourceBranch); err != nil {
		return err
	}

	after, err := m.repo.CurrentCommit()
	if err != nil {
		return err
	}
	// the target branch already holds the source commits from here on
	result.TargetCommit = after

	changed := make(map[string]struct{})
	diff, err := m.repo.DiffNames(before, after)
	if err != nil {
		return err
	}
	for _, path := range diff {
		changed[path] = struct{}{}
	}

	status, err := m.repo.Status()
	if err != nil {
		return err
	}
	for _, entry := range status {
		if entry.Status != vcs.FileUnmodified {
			changed[entry.Path] = struct{}{}
		}
	}

	result.ChangedFiles = make([]string, 0, len(changed))
	for path := range changed {
		result.ChangedFiles = append(result.ChangedFiles, path)
	}
	sort.Strings(result.ChangedFiles)

	if len(status) == 0 {
		return nil
	}
	if err := m.repo.StageAll(); err != nil {
		return err
	}
	msg := fmt.Sprintf("Promote %s -> %s (%s)", req.Source, req.Target, vcs.ShortHash(req.SourceCommit))
	hash, err := m.repo.Commit(msg, nil, nil)
	switch {
	case errors.Is(err, vcs.ErrNothingToCommit):
		m.logger.Debug().Str("promotion", req.ID).Msg("Working copy matched the target, nothing to commit")
	case err != nil:
		return err
	default:
		result.TargetCommit = hash
	}
	return nil
}

// Blockers lists the reasons the request cannot be executed now
func (m *Manager) Blockers(id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.lookupPromotion(id)
	if err != nil {
		return nil, err
	}

	var blockers []string
	switch req.Status {
	case StatusApproved:
	case StatusPending:
		blockers = append(blockers, "promotion is awaiting approval")
	default:
		blockers = append(blockers, fmt.Sprintf("promotion is %s, not approved", req.Status))
	}

	_, srcErr := m.lookupEnvironment(req.Source)
	if srcErr != nil {
		blockers = append(blockers, fmt.Sprintf("source environment '%s' no longer exists", req.Source))
	}
	_, tgtErr := m.lookupEnvironment(req.Target)
	if tgtErr != nil {
		blockers = append(blockers, fmt.Sprintf("target environment '%s' no longer exists", req.Target))
	}
	if srcErr == nil && tgtErr == nil {
		if err := m.validatePath(req.Source, req.Target); err != nil {
			blockers = append(blockers, "promotion path is not allowed: "+message(err))
		}
	}

	var others []*PromotionRequest
	for _, other := range m.promotions {
		if other.ID != req.ID && other.Target == req.Target && other.Status.IsActive() {
			others = append(others, other)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].ID < others[j].ID })
	for _, other := range others {
		blockers = append(blockers, fmt.Sprintf("target environment '%s' has another %s promotion (%s)",
			req.Target, other.Status, other.ID))
	}

	return blockers, nil
}

// Promotion returns a copy of the request with the given id
func (m *Manager) Promotion(id string) (*PromotionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.lookupPromotion(id)
	if err != nil {
		return nil, err
	}
	c := cloneRequest(*req)
	return &c, nil
}

// Promotions lists every request, oldest first
func (m *Manager) Promotions() []PromotionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	reqs := make([]PromotionRequest, 0, len(m.promotions))
	for _, req := range m.promotions {
		reqs = append(reqs, cloneRequest(*req))
	}
	sortRequests(reqs)
	return reqs
}

// History lists requests into or out of the named environment, oldest first
func (m *Manager) History(env string) []PromotionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reqs []PromotionRequest
	for _, req := range m.promotions {
		if req.Source == env || req.Target == env {
			reqs = append(reqs, cloneRequest(*req))
		}
	}
	sortRequests(reqs)
	return reqs
}

// HasPendingPromotions reports whether a pending, approved or executing
// request targets the named environment
func (m *Manager) HasPendingPromotions(env string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, req := range m.promotions {
		if req.Target == env && req.Status.IsActive() {
			return true
		}
	}
	return false
}

func (m *Manager) lookupPromotion(id string) (*PromotionRequest, error) {
	req, ok := m.promotions[id]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodePromotionNotFound, "promotion", id)
	}
	return req, nil
}

// transition is the only place a request's status changes
func (m *Manager) transition(req *PromotionRequest, next Status) error {
	if !req.Status.CanTransitionTo(next) {
		return errors.InvalidState(req.ID, req.Status.String(), next.String())
	}

	m.logger.Info().
		Str("promotion", req.ID).
		Str("from", req.Status.String()).
		Str("to", next.String()).
		Msg("Promotion status changed")

	req.Status = next
	req.UpdatedAt = m.now()
	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	return nil
}

// finish applies an execution outcome and notifies the recorder
func (m *Manager) finish(req *PromotionRequest, status Status) {
	if err := m.transition(req, status); err != nil {
		m.logger.Error().Err(err).Str("promotion", req.ID).Msg("Unexpected transition failure")
		return
	}
	completed := req.UpdatedAt
	req.CompletedAt = &completed
	m.record(req)
}

func (m *Manager) record(req *PromotionRequest) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordPromotion(cloneRequest(*req)); err != nil {
		m.logger.Warn().Err(err).Str("promotion", req.ID).Msg("Failed to record promotion")
	}
}

// newPromotionID derives an id from the path and time, with a random suffix
// keeping ids unique within the same second
func newPromotionID(source, target string, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("promo-%s-%s-%d-%s", source, target, at.Unix(), suffix)
}

func message(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func cloneRequest(r PromotionRequest) PromotionRequest {
	r.Conflicts = append([]string(nil), r.Conflicts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	if r.Metadata != nil {
		md := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		r.Metadata = md
	}
	return r
}

func sortRequests(reqs []PromotionRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
}
