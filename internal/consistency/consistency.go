// Package consistency implements the content-consistency glue: the rules
// relating Markdown, HTML, and CRDT state across create/update/reconnect
// paths.
package consistency

import (
	"regexp"
	"strings"

	"github.com/collab-docs/backend/internal/models"
)

// RenderMode computes render_mode from html: render_mode is "html" iff
// html is non-empty at write time.
func RenderMode(html string) string {
	if html == "" {
		return models.RenderModeMarkdown
	}
	return models.RenderModeHTML
}

var frontmatterPattern = regexp.MustCompile(`(?s)^---\s*\n.*?\n---\s*\n`)
var leadingH1Pattern = regexp.MustCompile(`^#[ \t]+[^\n]*\n?`)

// StripLeadingTitleHeading implements the Obsidian-publisher contract: a
// publisher sharing a note whose markdown begins with a single leading
// "# H1" (after optional YAML frontmatter and surrounding whitespace) is
// responsible for stripping exactly that heading and using the filename
// as title.
//
// The server never calls this on the write path — title is never derived
// from content server-side — but it is exported so the test suite can
// assert the publisher-side contract end to end.
func StripLeadingTitleHeading(markdown string) (title string, body string, stripped bool) {
	rest := markdown
	frontmatter := ""
	if loc := frontmatterPattern.FindStringIndex(rest); loc != nil {
		frontmatter = rest[:loc[1]]
		rest = rest[loc[1]:]
	}
	rest = strings.TrimLeft(rest, "\n\t ")

	loc := leadingH1Pattern.FindStringIndex(rest)
	if loc == nil {
		return "", markdown, false
	}
	heading := strings.TrimSpace(rest[loc[0]:loc[1]])
	heading = strings.TrimLeft(heading, "# \t")
	remainder := strings.TrimLeft(rest[loc[1]:], "\n")
	return heading, frontmatter + remainder, true
}

// RefreshMarkdownFromText resolves markdown-vs-CRDT freshness: on a
// debounced persistence write, markdown is refreshed from the CRDT
// replica's plain text projection when enabled. The text is used
// verbatim — the CRDT tracks characters, not markdown structure, so
// there is no re-rendering to do here.
func RefreshMarkdownFromText(text string) string {
	return text
}
