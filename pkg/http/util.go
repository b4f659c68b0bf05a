package http

import (
	"strconv"

	xutil "StockSentinel/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseBoolDefault parses string to bool or returns default if empty/invalid.
func ParseBoolDefault(s string, def bool) bool {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}

// ParseTickers splits a comma separated ticker list and normalizes it.
func ParseTickers(s string) []string {
	return xutil.NormalizeTickers(xutil.SplitList(s))
}
