package conflict

import (
	"bytes"
	"strings"
)

const (
	markerOurs   = "<<<<<<<"
	markerBase   = "|||||||"
	markerSplit  = "======="
	markerTheirs = ">>>>>>>"
)

type scanState int

const (
	stateNormal scanState = iota
	stateOurs
	stateBase
	stateTheirs
)

// Sides holds the versions of a file reconstructed from its conflict markers.
// Lines outside conflict hunks belong to every side. Base is nil unless the
// file uses the diff3 layout.
type Sides struct {
	Ours   string
	Theirs string
	Base   *string
	Hunks  int
}

// HasMarkers reports whether content carries both a start and an end marker
func HasMarkers(content string) bool {
	return strings.Contains(content, markerOurs) && strings.Contains(content, markerTheirs)
}

// IsBinary reports whether data looks like binary content
func IsBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

// ParseMarkers splits conflicted content into its sides with a line scanner
// moving Normal -> Ours -> (Base) -> Theirs -> Normal. Line endings are kept.
// An unterminated hunk keeps whatever was collected before the file ended.
func ParseMarkers(content string) Sides {
	var ours, base, theirs strings.Builder
	state := stateNormal
	hunks := 0
	sawBase := false

	for _, line := range strings.SplitAfter(content, "\n") {
		if line == "" {
			continue
		}

		switch {
		case state == stateNormal && strings.HasPrefix(line, markerOurs):
			state = stateOurs
			continue
		case state == stateOurs && strings.HasPrefix(line, markerBase):
			state = stateBase
			sawBase = true
			continue
		case (state == stateOurs || state == stateBase) && strings.HasPrefix(line, markerSplit):
			state = stateTheirs
			continue
		case state == stateTheirs && strings.HasPrefix(line, markerTheirs):
			state = stateNormal
			hunks++
			continue
		}

		switch state {
		case stateNormal:
			ours.WriteString(line)
			base.WriteString(line)
			theirs.WriteString(line)
		case stateOurs:
			ours.WriteString(line)
		case stateBase:
			base.WriteString(line)
		case stateTheirs:
			theirs.WriteString(line)
		}
	}

	sides := Sides{
		Ours:   ours.String(),
		Theirs: theirs.String(),
		Hunks:  hunks,
	}
	if sawBase {
		b := base.String()
		sides.Base = &b
	}
	return sides
}
