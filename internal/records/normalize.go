package records

import (
	"strings"
	"unicode"
)

// NormalizeText lowercases, strips punctuation, and collapses runs of
// whitespace, yielding a stable key for fuzzy name fields like
// subdivision and school zone.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// Punctuation separates tokens rather than vanishing, so
			// "Oak-Ridge" and "Oak Ridge" normalize identically.
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// schoolZoneFromAddress derives a coarse school-zone key from the city
// segment of a street address ("123 Elm St, Leander, TX" -> "leander").
// Returns "" when the address carries no city segment.
func schoolZoneFromAddress(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return ""
	}
	return NormalizeText(parts[1])
}

// parseStatus maps free-form status strings onto the canonical enum.
func parseStatus(raw string) Status {
	switch NormalizeText(raw) {
	case "sold", "closed":
		return StatusSold
	case "pending", "under contract", "contingent":
		return StatusPending
	case "active", "for sale", "available":
		return StatusActive
	case "spec", "move in ready", "quick move in":
		return StatusSpec
	case "model", "model home":
		return StatusModel
	case "to be built", "tbb", "presale", "pre sale":
		return StatusToBeBuilt
	default:
		return StatusUnknown
	}
}
