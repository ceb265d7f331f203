package feed

import (
	"testing"
)

func TestStripHTML(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "already plain text", "already plain text"},
		{"tags removed", "<p>Hello <b>world</b></p>", "Hello world"},
		{"script dropped", "<p>Visible</p><script>alert(1)</script>", "Visible"},
		{"whitespace collapsed", "  <div>  spaced   out  </div>  ", "spaced out"},
		{"empty", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := stripHTML(tc.in); got != tc.want {
				t.Fatalf("stripHTML(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFirstImageURL(t *testing.T) {
	t.Parallel()

	base := "https://example.com/articles/1"

	cases := []struct {
		name string
		html string
		want string
	}{
		{
			name: "absolute src",
			html: `<p>text</p><img src="https://cdn.example.com/a.jpg">`,
			want: "https://cdn.example.com/a.jpg",
		},
		{
			name: "relative src resolved",
			html: `<img src="/images/b.png">`,
			want: "https://example.com/images/b.png",
		},
		{
			name: "data uri skipped",
			html: `<img src="data:image/png;base64,xyz"><img src="https://cdn.example.com/c.gif">`,
			want: "https://cdn.example.com/c.gif",
		},
		{
			name: "no image",
			html: `<p>just text</p>`,
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := firstImageURL(tc.html, base); got != tc.want {
				t.Fatalf("firstImageURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	in := "First  line \r\n\r\nSecond\tline\r\n"
	want := "First line\n\nSecond line"
	if got := cleanText(in); got != want {
		t.Fatalf("cleanText = %q, want %q", got, want)
	}
}
