package soda

import (
	"regexp"
	"strings"
)

// linkRegex matches Link header entries: <url>; rel="type".
var linkRegex = regexp.MustCompile(`<([^>]+)>;\s*rel="([^"]+)"`)

// ParseNextLink extracts the "next" URL from an RFC 5988 Link header.
// Returns empty string if no next link is present.
func ParseNextLink(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}

	// Split by comma for multiple links
	parts := strings.Split(linkHeader, ",")
	for _, part := range parts {
		matches := linkRegex.FindStringSubmatch(strings.TrimSpace(part))
		if len(matches) == 3 && matches[2] == "next" {
			return matches[1]
		}
	}

	return ""
}

// NextPageURL resolves the URL of the page after current, enforcing
// strict advance: a next link identical to the current page would loop
// forever, so it is rejected as ErrCursorStalled.
func NextPageURL(current, linkHeader string) (string, error) {
	next := ParseNextLink(linkHeader)
	if next == "" {
		return "", nil
	}
	if next == current {
		return "", ErrCursorStalled
	}
	return next, nil
}

// HasNextPage checks if there is a next page available.
func HasNextPage(linkHeader string) bool {
	return ParseNextLink(linkHeader) != ""
}
