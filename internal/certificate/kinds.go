package certificate

import (
	"fmt"
	"strings"
)

// SourceKind identifies the kind of completable unit a certificate is
// attached to.
type SourceKind string

const (
	SourceKindCourse SourceKind = "course"
	SourceKindQuiz   SourceKind = "quiz"
	SourceKindGroup  SourceKind = "group"
)

// AllSourceKinds returns every kind the system understands, in the order
// the backfill job walks them.
func AllSourceKinds() []SourceKind {
	return []SourceKind{SourceKindCourse, SourceKindQuiz, SourceKindGroup}
}

// Known reports whether the kind is one the system understands. Sources
// resolved from external content can carry arbitrary kind values.
func (k SourceKind) Known() bool {
	switch k {
	case SourceKindCourse, SourceKindQuiz, SourceKindGroup:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the kind.
func (k SourceKind) String() string {
	return string(k)
}

// ParseSourceKind validates raw input against the known kinds.
func ParseSourceKind(value string) (SourceKind, error) {
	kind := SourceKind(strings.ToLower(strings.TrimSpace(value)))
	if !kind.Known() {
		return "", fmt.Errorf("certificate: unknown source kind %q", value)
	}
	return kind, nil
}
