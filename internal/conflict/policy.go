package conflict

import (
	"fmt"
	"path"
	"strings"

	"netpromote/pkg/errors"
)

// Policy decides which files may be resolved automatically
type Policy struct {
	// AutoResolutionPatterns confirm auto-resolvability and select the
	// per-type default strategy
	AutoResolutionPatterns []string
	// ManualResolutionPatterns always force manual resolution
	ManualResolutionPatterns []string
	// DefaultStrategies maps a conflict type to the strategy suggested for
	// files matching an auto pattern
	DefaultStrategies map[Type]Strategy
}

// DefaultPolicy returns the built-in policy
func DefaultPolicy() Policy {
	return Policy{
		AutoResolutionPatterns: []string{
			"*.md",
			"*.txt",
			"*.json",
			"*.yaml",
			"*.yml",
		},
		ManualResolutionPatterns: []string{
			"*.key",
			"*.pem",
			"*.crt",
			"secrets*",
		},
		DefaultStrategies: map[Type]Strategy{
			TypeDeleteModify: UseOurs,
			TypeModifyDelete: UseOurs,
			TypeAddAdd:       AutoMerge,
			TypeContent:      Manual,
		},
	}
}

// Validate rejects patterns the matcher cannot express
func (p Policy) Validate() error {
	for _, patterns := range [][]string{p.AutoResolutionPatterns, p.ManualResolutionPatterns} {
		for _, pattern := range patterns {
			if err := validatePattern(pattern); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsManual reports whether filePath matches a manual resolution pattern
func (p Policy) IsManual(filePath string) bool {
	return matchAny(p.ManualResolutionPatterns, filePath)
}

// IsAuto reports whether filePath matches an auto resolution pattern
func (p Policy) IsAuto(filePath string) bool {
	return matchAny(p.AutoResolutionPatterns, filePath)
}

// Apply adjusts a classified conflict. Manual patterns win over auto ones.
func (p Policy) Apply(info *Info) {
	if info.Metadata == nil {
		info.Metadata = make(map[string]string)
	}
	switch {
	case p.IsManual(info.Path):
		info.AutoResolvable = false
		info.SuggestedStrategy = Manual
		info.Metadata["policy"] = "manual"
	case p.IsAuto(info.Path):
		info.Metadata["policy"] = "auto"
		if !info.AutoResolvable {
			return
		}
		if strategy, ok := p.DefaultStrategies[info.Type]; ok {
			info.SuggestedStrategy = strategy
		}
	}
}

func matchAny(patterns []string, filePath string) bool {
	base := path.Base(filePath)
	for _, pattern := range patterns {
		if MatchPattern(pattern, filePath) || MatchPattern(pattern, base) {
			return true
		}
	}
	return false
}

// MatchPattern matches name against a pattern holding at most one wildcard,
// either leading (*suffix) or trailing (prefix*); anything else is compared
// literally. This is deliberately not a glob engine.
func MatchPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return pattern == name
	}
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return errors.New(errors.ErrCodeUnsupportedPattern, "Empty resolution pattern")
	}
	n := strings.Count(pattern, "*")
	if n > 1 || (n == 1 && !strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*")) {
		return errors.New(errors.ErrCodeUnsupportedPattern,
			fmt.Sprintf("Pattern '%s' is not supported", pattern)).
			WithContext("pattern", pattern).
			WithSuggestions("Use a single leading or trailing wildcard, e.g. '*.key' or 'secrets*'")
	}
	return nil
}
