package domain

import (
	"strings"
	"testing"
)

func TestTextTooLongCountsCharacters(t *testing.T) {
	if TextTooLong("", "short", strings.Repeat("a", MaxTextLength)) {
		t.Fatalf("values at the limit must be accepted")
	}
	// Two bytes per rune: over the limit in bytes, within it in characters.
	if TextTooLong(strings.Repeat("я", MaxTextLength)) {
		t.Fatalf("limit must count characters, not bytes")
	}
	if !TextTooLong("ok", strings.Repeat("a", MaxTextLength+1)) {
		t.Fatalf("expected oversized value to be reported")
	}
}
