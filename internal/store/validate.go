package store

import (
	"fmt"
	"regexp"

	"github.com/collab-docs/backend/internal/apperr"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

const maxTitleBytes = 512

// ValidateID checks the conservative id pattern: alphanumeric plus "-_",
// bounded length.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("invalid document id %q", id))
	}
	return nil
}

// ValidateTitle bounds title length.
func ValidateTitle(title string) error {
	if title == "" {
		return apperr.New(apperr.KindValidation, "title is required")
	}
	if len(title) > maxTitleBytes {
		return apperr.New(apperr.KindValidation, "title exceeds maximum length")
	}
	return nil
}

// ValidateMarkdown bounds markdown size against the configured maximum.
func ValidateMarkdown(markdown string, maxBytes int) error {
	if markdown == "" {
		return apperr.New(apperr.KindValidation, "markdown content is required")
	}
	if len(markdown) > maxBytes {
		return apperr.New(apperr.KindTooLarge, "markdown exceeds maximum size")
	}
	return nil
}

// ValidateHTML bounds html size against the configured maximum. Empty is
// always valid (html is optional).
func ValidateHTML(html string, maxBytes int) error {
	if len(html) > maxBytes {
		return apperr.New(apperr.KindTooLarge, "html exceeds maximum size")
	}
	return nil
}
