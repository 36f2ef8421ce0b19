package common

import "strings"

// NormalizeRegion strips every space and lower-cases the location name, so
// "West Europe" and "westeurope" resolve to the same forecast location.
func NormalizeRegion(region string) string {
	return strings.ToLower(strings.ReplaceAll(region, " ", ""))
}

// IsBlank reports whether s is empty or only whitespace
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
