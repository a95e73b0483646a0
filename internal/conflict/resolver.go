package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"netpromote/internal/common"
	"netpromote/internal/logging"
	"netpromote/internal/vcs"
	"netpromote/pkg/errors"
)

// Resolver applies resolution strategies to conflicts and writes the
// results back to the working copy. Resolve and Recommend are pure and safe
// for concurrent use; ApplyResolution touches the working copy.
type Resolver struct {
	repo    vcs.Repository
	weights ScoringWeights
	backup  bool
	now     func() time.Time
	logger  zerolog.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithBackups controls whether ApplyResolution keeps a timestamped copy of
// the file it overwrites
func WithBackups(enabled bool) ResolverOption {
	return func(r *Resolver) { r.backup = enabled }
}

// WithScoringWeights replaces the confidence weights
func WithScoringWeights(w ScoringWeights) ResolverOption {
	return func(r *Resolver) { r.weights = w }
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithLogger overrides the component logger
func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a resolver writing into repo's working copy
func NewResolver(repo vcs.Repository, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		repo:    repo,
		weights: DefaultScoringWeights(),
		backup:  true,
		now:     time.Now,
		logger:  logging.Get("conflict.resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve applies strategy to c without touching the working copy
func (r *Resolver) Resolve(c Info, strategy Strategy) Result {
	switch strategy {
	case UseOurs:
		return useSide(c, UseOurs, c.OurContent)
	case UseTheirs:
		return useSide(c, UseTheirs, c.TheirContent)
	case AutoMerge:
		return autoMerge(c)
	case Manual:
		return manual(c)
	case Custom:
		return Result{
			Path:                       c.Path,
			Strategy:                   Custom,
			Error:                      "custom resolution is not implemented",
			RequiresManualIntervention: true,
		}
	case Abort:
		return Result{
			Path:     c.Path,
			Strategy: Abort,
			Error:    "resolution aborted",
		}
	default:
		return Result{
			Path:                       c.Path,
			Strategy:                   strategy,
			Error:                      fmt.Sprintf("unknown strategy %s", strategy),
			RequiresManualIntervention: true,
		}
	}
}

func useSide(c Info, strategy Strategy, content *string) Result {
	if content == nil {
		return Result{
			Path:                       c.Path,
			Strategy:                   strategy,
			Error:                      fmt.Sprintf("no content available for %s", strategy),
			RequiresManualIntervention: true,
		}
	}
	resolved := *content
	return Result{
		Path:            c.Path,
		Success:         true,
		Strategy:        strategy,
		ResolvedContent: &resolved,
	}
}

func autoMerge(c Info) Result {
	switch c.Type {
	case TypeDeleteModify, TypeModifyDelete:
		return useSide(c, UseOurs, c.OurContent)
	case TypeAddAdd:
		if !isText(c.OurContent) || !isText(c.TheirContent) {
			return manual(c)
		}
		merged := *c.OurContent + "\n" + *c.TheirContent
		return Result{
			Path:            c.Path,
			Success:         true,
			Strategy:        AutoMerge,
			ResolvedContent: &merged,
		}
	default:
		return manual(c)
	}
}

func manual(c Info) Result {
	return Result{
		Path:                       c.Path,
		Strategy:                   Manual,
		RequiresManualIntervention: true,
	}
}

func isText(s *string) bool {
	return s != nil && utf8.ValidString(*s) && !IsBinary([]byte(*s))
}

// ApplyResolution overwrites path with content and stages it. When backups
// are enabled the previous file is first copied to <path>.backup.<unix>.
// The caller commits once every conflict is staged.
func (r *Resolver) ApplyResolution(path, content string) error {
	full, err := common.JoinPath(r.repo.Root(), path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid resolution path").
			WithContext("path", path)
	}

	perm := common.FilePermissionNormal
	if info, err := os.Stat(full); err == nil {
		perm = info.Mode().Perm()
		if r.backup {
			if err := r.writeBackup(full, perm); err != nil {
				return err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), common.DirPermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create directory").
			WithContext("path", path)
	}
	if err := os.WriteFile(full, []byte(content), perm); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to write resolved file").
			WithContext("path", path)
	}

	if err := r.repo.Stage(path); err != nil {
		return errors.Wrap(err, errors.ErrCodeResolutionFailed,
			fmt.Sprintf("Failed to stage resolved file '%s'", path))
	}

	r.logger.Info().Str("path", path).Msg("Resolution applied")
	return nil
}

func (r *Resolver) writeBackup(full string, perm os.FileMode) error {
	data, err := os.ReadFile(full) // #nosec G304 - path is validated
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to read file for backup")
	}

	backupPath := common.BackupPath(full, r.now())
	if err := os.WriteFile(backupPath, data, perm); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to write backup").
			WithContext("backup", backupPath)
	}
	r.logger.Debug().Str("backup", backupPath).Msg("Backup written")
	return nil
}
