package payment

import "strings"

// IsMintWhitelisted reports whether mintURL matches one of the
// configured whitelisted mints. Matching is trailing-slash- and
// case-insensitive, and accepts the whitelisted entry as either an
// exact match or a prefix of the mint URL (so a whitelist entry for a
// mint's base domain also covers its versioned API paths).
func IsMintWhitelisted(mintURL string, whitelistedMints []string) bool {
	normalizedMint := strings.ToLower(strings.TrimRight(mintURL, "/"))

	for _, whitelisted := range whitelistedMints {
		normalizedWhitelisted := strings.ToLower(strings.TrimRight(whitelisted, "/"))
		if normalizedMint == normalizedWhitelisted || strings.HasPrefix(normalizedMint, normalizedWhitelisted) {
			return true
		}
	}
	return false
}
