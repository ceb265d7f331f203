package pipeline

import (
	"testing"
)

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://Example.com/News/Story/?utm_source=x&id=5#frag",
		"http://old.reddit.com/r/worldnews/comments/abc123/",
		"https://example.com",
		"https://example.com/a%20b/c%2Fd?id=5",
		"https://example.com/caf%C3%A9/",
		"not a url at all",
		"",
	}

	for _, input := range inputs {
		once := Canonicalize(input)
		twice := Canonicalize(once)
		if once != twice {
			t.Fatalf("Canonicalize not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestCanonicalizeKeepsPathEscapes(t *testing.T) {
	t.Parallel()

	got := Canonicalize("https://example.com/a%20b")
	want := "https://example.com/a%20b"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeStripsTrackingParams(t *testing.T) {
	t.Parallel()

	withTracking := Canonicalize("https://example.com/a?utm_source=y&id=5")
	without := Canonicalize("https://example.com/a?id=5")
	if withTracking != without {
		t.Fatalf("tracking params not stripped: %q != %q", withTracking, without)
	}

	got := Canonicalize("https://example.com/a?utm_campaign=x&fbclid=abc&gclid=def&ref=rss")
	want := "https://example.com/a"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeHostHandling(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "reddit alias old", input: "https://old.reddit.com/r/news/comments/x1/", want: "https://reddit.com/r/news/comments/x1"},
		{name: "reddit alias www", input: "https://www.reddit.com/r/news/comments/x1", want: "https://reddit.com/r/news/comments/x1"},
		{name: "reddit alias np", input: "https://np.reddit.com/r/news/comments/x1", want: "https://reddit.com/r/news/comments/x1"},
		{name: "www stripped", input: "https://www.example.com/page", want: "https://example.com/page"},
		{name: "uppercase host", input: "HTTPS://EXAMPLE.COM/Path", want: "https://example.com/Path"},
		{name: "default port stripped", input: "https://example.com:443/a", want: "https://example.com/a"},
		{name: "custom port kept", input: "https://example.com:8443/a", want: "https://example.com:8443/a"},
		{name: "fragment stripped", input: "https://example.com/a#section", want: "https://example.com/a"},
		{name: "trailing slash stripped", input: "https://example.com/a/", want: "https://example.com/a"},
		{name: "root path kept", input: "https://example.com/", want: "https://example.com/"},
		{name: "query order stable", input: "https://example.com/a?b=2&a=1", want: "https://example.com/a?a=1&b=2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Canonicalize(tc.input); got != tc.want {
				t.Fatalf("Canonicalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCanonicalizeMalformedPassThrough(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		"not a url",
		"://missing-scheme",
		"relative/path/only",
	}

	for _, input := range inputs {
		if got := Canonicalize(input); got != input {
			t.Fatalf("malformed input %q should pass through, got %q", input, got)
		}
	}
}
