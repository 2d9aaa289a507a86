package context

import "unicode/utf8"

const truncatedMarker = "\n[truncated]\n"

// EstimateTokens uses the chars/4 heuristic. It only has to be stable, not
// exact, because every budget decision is made against the same estimate.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// truncateTokens cuts s so that s plus the marker fits in limit tokens.
// It returns "" when not even the marker fits.
func truncateTokens(s string, limit int) string {
	if EstimateTokens(s) <= limit {
		return s
	}
	maxBytes := limit*4 - len(truncatedMarker)
	if maxBytes <= 0 {
		return ""
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedMarker
}
