// Package sanitize implements the HTML sanitizer: a pure, deterministic
// function turning untrusted HTML into a conservative safe subset.
//
// bluemonday's policy engine parses with golang.org/x/net/html, which has
// no browser-DOM dependency, so sanitization works the same in a headless
// server process as it would in a browser — there is no separate
// DOM-based/textual-fallback pair to select between here.
package sanitize

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = buildPolicy()
	})
	return policy
}

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowStandardURLs()
	p.AllowAttrs("class", "id").Globally()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "div", "span", "br", "hr",
		"strong", "b", "em", "i", "u", "s", "del", "sub", "sup",
		"ul", "ol", "li",
		"blockquote", "q",
		"code", "pre",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").OnElements("a")
	p.AllowAttrs("rel").OnElements("a")
	p.RequireNoFollowOnLinks(false)
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("http", "https", "mailto")

	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt", "width", "height").OnElements("img")
	p.AllowImages()

	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")

	// No style attribute, no script/style/iframe/object/embed/form/input —
	// bluemonday drops anything not explicitly allowed above, so there's no
	// need for explicit deny rules.

	return p
}

// Sanitize returns the safe subset of html. On any parser failure it
// returns the empty string rather than propagating — callers treat empty
// HTML as "markdown-only".
func Sanitize(html string) (out string) {
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()
	if html == "" {
		return ""
	}
	return getPolicy().Sanitize(html)
}
