package sqlite

import "strings"

// normalizedTitleKey is the identity-key normalization used to enforce
// the (normalized_title, season, year) uniqueness invariant. This is
// deliberately cruder than pkg/titlerecognition's matching normalization:
// it only needs to be stable and case/space-insensitive, not fuzzy.
func normalizedTitleKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
