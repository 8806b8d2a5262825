// Package types provides common type definitions for the app directory tracker.
package types

import (
	"fmt"
	"strings"
)

// SearchFilter selects which columns a search query is matched against
type SearchFilter string

const (
	// SearchFilterID matches the query as a substring of the application id
	SearchFilterID SearchFilter = "id"
	// SearchFilterText matches the query as a substring of the name or description
	SearchFilterText SearchFilter = "text"
)

// ParseSearchFilter parses a filter mode, defaulting to text when empty
func ParseSearchFilter(s string) (SearchFilter, error) {
	switch SearchFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchFilterText:
		return SearchFilterText, nil
	case SearchFilterID:
		return SearchFilterID, nil
	default:
		return "", fmt.Errorf("unknown search filter %q (must be 'id' or 'text')", s)
	}
}

// Pagination and history bounds
const (
	DefaultPageLimit    = 20
	MaxPageLimit        = 50
	DefaultHistoryLimit = 90
	MaxHistoryLimit     = 1000
)
