// Package csuid implements the certificate secure unique identifier codec.
//
// A CSUID packs three positive integers (certificate template, completion
// source, recipient) into a single dash-joined uppercase hex string, e.g.
// "7B-1C8-1". The encoding is a compactness convenience, not a security
// boundary: callers must cross-check the decoded identifiers against live
// completion records before trusting them.
package csuid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// A predecessor plugin emitted an underscore-separated sub-segment inside
// each field. That shape is still accepted on decode and the suffix is
// discarded; it is never produced on encode.
var csuidPattern = regexp.MustCompile(`^[A-F0-9]+(_[A-F0-9]+)?-[A-F0-9]+(_[A-F0-9]+)?-[A-F0-9]+(_[A-F0-9]+)?$`)

// Triple holds the three identifiers packed into a CSUID. The zero value is
// the failure sentinel returned by Decode.
type Triple struct {
	TemplateID  uint64
	SourceID    uint64
	RecipientID uint64
}

// Complete reports whether all three identifiers are present.
func (t Triple) Complete() bool {
	return t.TemplateID != 0 && t.SourceID != 0 && t.RecipientID != 0
}

// Encode derives the CSUID for the provided identifiers. It returns the
// empty string when any identifier is zero, signalling that no valid
// identifier can exist for the inputs.
func Encode(templateID, sourceID, recipientID uint64) string {
	if templateID == 0 || sourceID == 0 || recipientID == 0 {
		return ""
	}
	return fmt.Sprintf("%X-%X-%X", templateID, sourceID, recipientID)
}

// Decode parses a CSUID back into its identifier triple. Any malformed or
// unparsable input yields the zero Triple; Decode never fails with an error.
func Decode(raw string) Triple {
	if !IsValid(raw) {
		return Triple{}
	}

	segments := strings.Split(Normalize(raw), "-")
	if len(segments) != 3 {
		return Triple{}
	}

	templateID, ok := parseSegment(segments[0])
	if !ok {
		return Triple{}
	}
	sourceID, ok := parseSegment(segments[1])
	if !ok {
		return Triple{}
	}
	recipientID, ok := parseSegment(segments[2])
	if !ok {
		return Triple{}
	}

	return Triple{TemplateID: templateID, SourceID: sourceID, RecipientID: recipientID}
}

// IsValid reports whether the input matches the CSUID wire format after
// trimming and uppercasing: three dash-joined hex groups, each optionally
// carrying a legacy underscore sub-segment.
func IsValid(raw string) bool {
	normalized := Normalize(raw)
	if normalized == "" {
		return false
	}
	return csuidPattern.MatchString(normalized)
}

// Normalize trims surrounding whitespace and uppercases the input. CSUIDs
// are case-insensitive on read and always uppercase on write.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func parseSegment(segment string) (uint64, bool) {
	// Legacy sub-segments sit after an underscore and carry no meaning in
	// the current format.
	if idx := strings.IndexByte(segment, '_'); idx >= 0 {
		segment = segment[:idx]
	}
	value, err := strconv.ParseUint(segment, 16, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return value, true
}
