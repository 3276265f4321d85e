// Package order canonicalizes human-entered order references into the
// fulfillment system's expected identifier format.
package order

import "strings"

// Normalize coerces a raw order reference into the canonical
// "Shopify #<digits>.1" form where a rule applies. It is a best-effort
// heuristic, not a validator: unrecognized input passes through unchanged so
// a human reviewer can still act on it.
//
// Rules, first match wins:
//  1. empty after trim -> empty
//  2. "91057" / "order 91057" / "shopify 91057" -> "Shopify #91057.1"
//  3. "Shopify #91057" -> "Shopify #91057.1"
//  4. anything else -> unchanged
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	digits := keepDigits(s)
	lower := strings.ToLower(s)

	// Already-canonical "Shopify #..." ids must not be re-digested, only
	// completed with the ".1" suffix when it is missing.
	if strings.HasPrefix(lower, "shopify #") {
		if !strings.Contains(s, ".1") {
			return s + ".1"
		}
		return s
	}

	if digits != "" && (digits == s || strings.HasPrefix(lower, "order") || strings.HasPrefix(lower, "shopify")) {
		return "Shopify #" + digits + ".1"
	}

	return s
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
