package pipeline

import (
	"strings"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()

	first := Fingerprint("Major Event in City", "Details about the event follow.")
	second := Fingerprint("Major Event in City", "Details about the event follow.")
	if first != second {
		t.Fatalf("same input produced different fingerprints: %q vs %q", first, second)
	}
	if len(first) != fingerprintHexLen {
		t.Fatalf("fingerprint length = %d, want %d", len(first), fingerprintHexLen)
	}
}

func TestFingerprintWhitespaceInvariant(t *testing.T) {
	t.Parallel()

	plain := Fingerprint("Major Event in City", "Details about the event follow.")
	spaced := Fingerprint("  Major   Event\tin City ", " Details\n\nabout the   event follow. ")
	if plain != spaced {
		t.Fatalf("whitespace variants differ: %q vs %q", plain, spaced)
	}

	upper := Fingerprint("MAJOR EVENT IN CITY", "DETAILS ABOUT THE EVENT FOLLOW.")
	if plain != upper {
		t.Fatalf("case variants differ: %q vs %q", plain, upper)
	}
}

func TestFingerprintIgnoresBodyPastExcerpt(t *testing.T) {
	t.Parallel()

	base := strings.Repeat("a", fingerprintExcerptLen)
	first := Fingerprint("Title", base+" trailing text one")
	second := Fingerprint("Title", base+" completely different trailing text")
	if first != second {
		t.Fatalf("content past the excerpt window changed the fingerprint")
	}

	differing := Fingerprint("Title", "short body")
	if first == differing {
		t.Fatalf("different bodies produced the same fingerprint")
	}
}
