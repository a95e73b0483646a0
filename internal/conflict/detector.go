package conflict

import (
	"io/fs"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"netpromote/internal/common"
	"netpromote/internal/logging"
	"netpromote/internal/vcs"
	"netpromote/pkg/errors"
)

// Detector finds and classifies the conflicted paths of a working copy.
// It reads the working copy and must be serialized with promotion calls
// against the same repository.
type Detector struct {
	repo   vcs.Repository
	policy Policy
	logger zerolog.Logger
}

// NewDetector creates a detector applying policy to every conflict
func NewDetector(repo vcs.Repository, policy Policy) *Detector {
	return &Detector{
		repo:   repo,
		policy: policy,
		logger: logging.Get("conflict.detector"),
	}
}

// Detect classifies every conflicted path reported by the repository.
// Index stages decide the conflict type when the repository exposes them;
// otherwise every textual conflict is treated as a content conflict.
func (d *Detector) Detect() (*Analysis, error) {
	done := logging.Operation(d.logger, "detect_conflicts")
	defer done()

	entries, err := d.repo.Status()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to get repository status")
	}

	var stages map[string]vcs.Stages
	if inspector, ok := d.repo.(vcs.StageInspector); ok {
		stages, err = inspector.ConflictStages()
		if err != nil {
			d.logger.Warn().Err(err).Msg("Index stages unavailable, classifying by content only")
			stages = nil
		}
	}

	var conflicts []Info
	for _, entry := range entries {
		if entry.Status != vcs.FileConflicted {
			continue
		}
		s, known := stages[entry.Path]
		info := d.inspect(entry.Path, s, known)
		d.policy.Apply(&info)
		conflicts = append(conflicts, info)

		d.logger.Debug().
			Str("path", info.Path).
			Str("type", info.Type.String()).
			Bool("auto_resolvable", info.AutoResolvable).
			Str("strategy", info.SuggestedStrategy.String()).
			Msg("Conflict classified")
	}

	analysis := NewAnalysis(conflicts)
	d.logger.Info().
		Int("total", analysis.Total).
		Int("auto_resolvable", analysis.AutoResolvableCount).
		Int("manual", analysis.ManualCount).
		Msg("Conflict detection finished")
	return analysis, nil
}

// inspect loads the working copy file and builds its Info
func (d *Detector) inspect(path string, stages vcs.Stages, hasStages bool) Info {
	data, readErr := d.readFile(path)

	t := classify(stages, hasStages, readErr == nil && IsBinary(data))
	info := NewInfo(path, t)
	if hasStages {
		info.Metadata["stages"] = stageString(stages)
	}
	if readErr != nil {
		if !errors.Is(readErr, fs.ErrNotExist) {
			info.Metadata["read_error"] = readErr.Error()
		}
		return info
	}

	info.Metadata["size"] = strconv.Itoa(len(data))
	if t == TypeBinary || t == TypeSubmodule {
		return info
	}

	content := string(data)
	if HasMarkers(content) {
		sides := ParseMarkers(content)
		info.OurContent = &sides.Ours
		info.TheirContent = &sides.Theirs
		info.BaseContent = sides.Base
		info.Metadata["hunks"] = strconv.Itoa(sides.Hunks)
		return info
	}

	// Delete/modify conflicts leave the surviving side in the working copy
	switch t {
	case TypeModifyDelete:
		info.OurContent = &content
	case TypeDeleteModify:
		info.TheirContent = &content
	}
	return info
}

func (d *Detector) readFile(path string) ([]byte, error) {
	full, err := common.JoinPath(d.repo.Root(), path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid conflict path")
	}
	data, err := os.ReadFile(full) // #nosec G304 - path is validated
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to read conflicted file").
			WithContext("path", path)
	}
	return data, nil
}

// classify maps the unmerged index stages of a path to a conflict type.
// Renames leave no trace in the index and are never reported.
func classify(s vcs.Stages, hasStages, binary bool) Type {
	switch {
	case s.Submodule:
		return TypeSubmodule
	case binary:
		return TypeBinary
	case !hasStages:
		return TypeContent
	case !s.Base && s.Ours && s.Theirs:
		return TypeAddAdd
	case s.Base && !s.Ours && s.Theirs:
		return TypeDeleteModify
	case s.Base && s.Ours && !s.Theirs:
		return TypeModifyDelete
	default:
		return TypeContent
	}
}

func stageString(s vcs.Stages) string {
	out := []byte("---")
	if s.Base {
		out[0] = '1'
	}
	if s.Ours {
		out[1] = '2'
	}
	if s.Theirs {
		out[2] = '3'
	}
	return string(out)
}
