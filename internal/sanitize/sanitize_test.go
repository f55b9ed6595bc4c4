package sanitize

import (
	"strings"
	"testing"
)

func TestSanitizeStripsScript(t *testing.T) {
	in := `<p>hello<script>alert(1)</script></p>`
	out := Sanitize(in)
	if out == in {
		t.Fatalf("Sanitize did not strip script tag: %q", out)
	}
	if containsAny(out, "<script", "alert(1)") {
		t.Fatalf("script content leaked through: %q", out)
	}
}

func TestSanitizeStripsEventHandlers(t *testing.T) {
	in := `<p onclick="evil()">click me</p>`
	out := Sanitize(in)
	if containsAny(out, "onclick", "evil(") {
		t.Fatalf("event handler leaked through: %q", out)
	}
}

func TestSanitizeDropsDisallowedScheme(t *testing.T) {
	in := `<a href="javascript:alert(1)">x</a>`
	out := Sanitize(in)
	if containsAny(out, "javascript:") {
		t.Fatalf("disallowed scheme leaked through: %q", out)
	}
}

func TestSanitizeAllowsBasicFormatting(t *testing.T) {
	in := `<p><strong>bold</strong> and <em>em</em></p>`
	out := Sanitize(in)
	if !containsAny(out, "<strong>", "<em>") {
		t.Fatalf("expected basic formatting preserved, got %q", out)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	in := `<div class="note"><p>text <a href="https://example.com">link</a></p></div>`
	once := Sanitize(in)
	twice := Sanitize(once)
	if once != twice {
		t.Fatalf("Sanitize not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestSanitizeEmptyInput(t *testing.T) {
	if got := Sanitize(""); got != "" {
		t.Fatalf("Sanitize(\"\") = %q, want empty", got)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
