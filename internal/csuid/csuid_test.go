package csuid

import (
	"math"
	"strings"
	"testing"
)

func TestEncodeProducesUppercaseHexSegments(t *testing.T) {
	encoded := Encode(123, 456, 1)
	if encoded != "7B-1C8-1" {
		t.Fatalf("unexpected encoding: %q", encoded)
	}
}

func TestEncodeReturnsEmptyStringForZeroIdentifiers(t *testing.T) {
	cases := []struct {
		name        string
		templateID  uint64
		sourceID    uint64
		recipientID uint64
	}{
		{name: "zero template", templateID: 0, sourceID: 456, recipientID: 1},
		{name: "zero source", templateID: 123, sourceID: 0, recipientID: 1},
		{name: "zero recipient", templateID: 123, sourceID: 456, recipientID: 0},
		{name: "all zero", templateID: 0, sourceID: 0, recipientID: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if encoded := Encode(tc.templateID, tc.sourceID, tc.recipientID); encoded != "" {
				t.Fatalf("expected empty string, got %q", encoded)
			}
		})
	}
}

func TestDecodeRoundTripsEncodedValues(t *testing.T) {
	cases := []struct {
		name        string
		templateID  uint64
		sourceID    uint64
		recipientID uint64
	}{
		{name: "small ids", templateID: 1, sourceID: 2, recipientID: 3},
		{name: "mixed magnitude", templateID: 123, sourceID: 456, recipientID: 1},
		{name: "large ids", templateID: 999999, sourceID: 888888, recipientID: 777777},
		{name: "max uint64", templateID: math.MaxUint64, sourceID: math.MaxUint64 - 1, recipientID: math.MaxUint64 / 7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoded := Decode(Encode(tc.templateID, tc.sourceID, tc.recipientID))
			if decoded.TemplateID != tc.templateID || decoded.SourceID != tc.sourceID || decoded.RecipientID != tc.recipientID {
				t.Fatalf("round trip mismatch: %+v", decoded)
			}
		})
	}
}

func TestDecodeIsCaseInsensitiveAndTrimsInput(t *testing.T) {
	inputs := []string{"7B-1C8-1", "7b-1c8-1", "7b-1C8-1", "  7B-1C8-1  "}
	for _, input := range inputs {
		decoded := Decode(input)
		if decoded.TemplateID != 123 || decoded.SourceID != 456 || decoded.RecipientID != 1 {
			t.Fatalf("decode of %q returned %+v", input, decoded)
		}
	}
}

func TestDecodeDiscardsLegacyUnderscoreSuffixes(t *testing.T) {
	decoded := Decode("7B_4F-1C8_2-1_A")
	if decoded.TemplateID != 123 || decoded.SourceID != 456 || decoded.RecipientID != 1 {
		t.Fatalf("legacy decode returned %+v", decoded)
	}
}

func TestDecodeReturnsZeroTripleForMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"INVALID123",
		"123",
		"ABC-DEF",
		"ABC-DEF-GHI-JKL",
		"ABC123-DEF456-GHI789",
		"7B--1",
		"7B-1C8-1-",
		"-7B-1C8-1",
		"7B_-1C8-1",
		strings.Repeat("F", 17) + "-1-1",
	}

	for _, input := range inputs {
		decoded := Decode(input)
		if decoded != (Triple{}) {
			t.Fatalf("decode of %q returned %+v, want zero triple", input, decoded)
		}
	}
}

func TestIsValidFormatTable(t *testing.T) {
	cases := []struct {
		input string
		valid bool
	}{
		{input: "7B-1C8-1", valid: true},
		{input: "7b-1c8-1", valid: true},
		{input: "ABC123-DEF456-ABC789", valid: true},
		{input: "7B_4F-1C8-1", valid: true},
		{input: "ABC123-DEF456-GHI789", valid: false},
		{input: "INVALID123", valid: false},
		{input: "123", valid: false},
		{input: "ABC-DEF", valid: false},
		{input: "ABC-DEF-GHI-JKL", valid: false},
		{input: "", valid: false},
		{input: "   ", valid: false},
		{input: "7B-1C8-1Z", valid: false},
		{input: "7B-1C8_-1", valid: false},
	}

	for _, tc := range cases {
		if got := IsValid(tc.input); got != tc.valid {
			t.Fatalf("IsValid(%q) = %v, want %v", tc.input, got, tc.valid)
		}
	}
}

func TestTripleCompleteRequiresAllIdentifiers(t *testing.T) {
	if (Triple{TemplateID: 1, SourceID: 2}).Complete() {
		t.Fatalf("triple missing recipient reported complete")
	}
	if !(Triple{TemplateID: 1, SourceID: 2, RecipientID: 3}).Complete() {
		t.Fatalf("complete triple reported incomplete")
	}
}
