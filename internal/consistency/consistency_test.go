package consistency

import "testing"

func TestRenderMode(t *testing.T) {
	if got := RenderMode(""); got != "markdown" {
		t.Errorf("RenderMode(\"\") = %q, want markdown", got)
	}
	if got := RenderMode("<p>hi</p>"); got != "html" {
		t.Errorf("RenderMode(html) = %q, want html", got)
	}
}

func TestStripLeadingTitleHeading(t *testing.T) {
	md := "# My Note\n\nHello world"
	title, body, stripped := StripLeadingTitleHeading(md)
	if !stripped {
		t.Fatal("expected heading to be stripped")
	}
	if title != "My Note" {
		t.Errorf("title = %q, want %q", title, "My Note")
	}
	if body != "Hello world" {
		t.Errorf("body = %q, want %q", body, "Hello world")
	}
}

func TestStripLeadingTitleHeadingWithFrontmatter(t *testing.T) {
	md := "---\ntags: [a, b]\n---\n# Title Here\nBody text"
	title, body, stripped := StripLeadingTitleHeading(md)
	if !stripped {
		t.Fatal("expected heading to be stripped")
	}
	if title != "Title Here" {
		t.Errorf("title = %q, want %q", title, "Title Here")
	}
	if body != "---\ntags: [a, b]\n---\nBody text" {
		t.Errorf("body = %q, want %q", body, "---\ntags: [a, b]\n---\nBody text")
	}
}

func TestStripLeadingTitleHeadingNoHeading(t *testing.T) {
	md := "Just a paragraph, no heading."
	title, body, stripped := StripLeadingTitleHeading(md)
	if stripped {
		t.Fatal("did not expect a heading to be found")
	}
	if title != "" || body != md {
		t.Errorf("expected unchanged passthrough, got title=%q body=%q", title, body)
	}
}
