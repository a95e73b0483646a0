// Package store persists the environment registry and records promotion
// outcomes to an audit table.
package store

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"netpromote/internal/common"
	"netpromote/internal/environment"
	"netpromote/internal/logging"
	"netpromote/pkg/errors"
)

// DefaultStateFile is the state file used when none is configured, relative
// to the repository root. It lives under .git so promotions never commit it.
const DefaultStateFile = ".git/netpromote/state.yaml"

// FileStore keeps environment.State in a YAML file
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: logging.Get("store"),
	}
}

// Path returns the state file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file is an empty state.
func (s *FileStore) Load() (environment.State, error) {
	var state environment.State

	path, err := common.CleanPath(s.path)
	if err != nil {
		return state, errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid state file path")
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", path).Msg("No state file, starting empty")
			return state, nil
		}
		return state, errors.Wrap(err, errors.ErrCodeStorage, "Failed to read state file").
			WithContext("path", path)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, errors.Wrap(err, errors.ErrCodeStorage, "Failed to parse state file").
			WithContext("path", path).
			WithSuggestions("Fix or remove the state file; environments can be re-created with 'netpromote env init'")
	}

	s.logger.Debug().
		Str("path", path).
		Int("environments", len(state.Environments)).
		Int("promotions", len(state.Promotions)).
		Msg("State loaded")
	return state, nil
}

// Save writes state through a temporary file and renames it into place
func (s *FileStore) Save(state environment.State) error {
	path, err := common.CleanPath(s.path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid state file path")
	}

	data, err := yaml.Marshal(&state)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "Failed to encode state")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, common.DirPermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeFilePermission, "Failed to create state directory").
			WithContext("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "Failed to create temporary state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeStorage, "Failed to write state file")
	}
	if err := tmp.Chmod(common.FilePermissionSecure); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeFilePermission, "Failed to set state file permissions")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "Failed to write state file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "Failed to replace state file").
			WithContext("path", path)
	}

	s.logger.Debug().Str("path", path).Msg("State saved")
	return nil
}
