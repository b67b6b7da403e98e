package markdown

import "testing"

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello", want: "hello"},
		{name: "emphasis", in: "a **bold** and *ital* and `code`", want: "a bold and ital and code"},
		{name: "heading", in: "## Summary", want: "Summary"},
		{name: "bullet", in: "  * item **one**", want: "  - item one"},
		{name: "link", in: "see [docs](https://example.com/x)", want: "see docs (https://example.com/x)"},
		{name: "escape", in: `\*not italic\*`, want: "*not italic*"},
		{name: "unclosed", in: "**bold *oops", want: "**bold *oops"},
		{name: "snake_case", in: "run make_target_now", want: "run make_target_now"},
		{name: "hash without space", in: "#hashtag", want: "#hashtag"},
	}
	for _, tc := range tests {
		if got := Flatten(tc.in); got != tc.want {
			t.Fatalf("%s: Flatten(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}
