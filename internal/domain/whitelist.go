package domain

import (
	"fmt"
	"strings"
	"time"
)

// WhitelistCategory selects which filter an entry feeds.
type WhitelistCategory string

const (
	CategorySuppress   WhitelistCategory = "SUPPRESS"
	CategoryBackground WhitelistCategory = "BACKGROUND"
)

// ParseCategory accepts either case.
func ParseCategory(s string) (WhitelistCategory, error) {
	switch WhitelistCategory(strings.ToUpper(strings.TrimSpace(s))) {
	case CategorySuppress:
		return CategorySuppress, nil
	case CategoryBackground:
		return CategoryBackground, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// WhitelistEntry exempts matching processes or packages from suppression
// or background restriction.
type WhitelistEntry struct {
	ID         string            `json:"id" yaml:"id,omitempty"`
	Identifier string            `json:"identifier" yaml:"identifier"`
	Note       string            `json:"note,omitempty" yaml:"note,omitempty"`
	Category   WhitelistCategory `json:"category" yaml:"category"`
	CreatedAt  time.Time         `json:"created_at" yaml:"-"`
}

// Matches reports whether name contains the entry's identifier.
// Matching is a case-sensitive substring test so vendor prefixes work.
// An empty identifier matches nothing.
func (e WhitelistEntry) Matches(name string) bool {
	return e.Identifier != "" && strings.Contains(name, e.Identifier)
}

// AnyMatches reports whether any entry matches any of the names.
func AnyMatches(entries []WhitelistEntry, names ...string) bool {
	for _, e := range entries {
		for _, n := range names {
			if e.Matches(n) {
				return true
			}
		}
	}
	return false
}
