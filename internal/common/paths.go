package common

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CleanPath returns the absolute, cleaned form of path
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("invalid path: empty")
	}

	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		cleaned = abs
	}

	return cleaned, nil
}

// ValidatePath ensures path stays inside baseDir and returns its absolute form
func ValidatePath(path, baseDir string) (string, error) {
	cleanedPath, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	cleanedBase, err := CleanPath(baseDir)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(cleanedBase, cleanedPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside %q", path, baseDir)
	}

	return cleanedPath, nil
}

// JoinPath joins a repository-relative path onto base, rejecting escapes
func JoinPath(base string, elements ...string) (string, error) {
	cleanedBase, err := CleanPath(base)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(append([]string{cleanedBase}, elements...)...)
	return ValidatePath(joined, cleanedBase)
}

// BackupPath names the timestamped copy written before a file is overwritten
func BackupPath(path string, at time.Time) string {
	return fmt.Sprintf("%s.backup.%d", path, at.Unix())
}
