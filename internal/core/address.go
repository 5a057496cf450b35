package core

import "strings"

const (
	freeTierSuffix = "@free.kindle.com"
	standardSuffix = "@kindle.com"
)

// NormalizeDeliveryAddress turns raw user-submitted text into the local part
// of a Kindle delivery address. The free-tier suffix is rewritten to the
// standard one first, then the standard suffix is stripped; the two checks
// stay sequential on purpose. Anything without a recognized suffix is
// rejected, and callers skip rejected candidates silently.
//
// There is deliberately no further validation here: no RFC-5322 syntax
// check, no dedup, no reachability check. Known gap, kept permissive.
func NormalizeDeliveryAddress(raw string) (string, bool) {
	address := strings.ToLower(raw)

	if strings.HasSuffix(address, freeTierSuffix) {
		address = strings.TrimSuffix(address, freeTierSuffix) + standardSuffix
	}

	if strings.HasSuffix(address, standardSuffix) {
		return strings.TrimSuffix(address, standardSuffix), true
	}

	return "", false
}
