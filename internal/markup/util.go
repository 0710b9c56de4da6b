package markup

import (
	"strconv"
	"strings"
)

// parseIntDefault parses s as a decimal integer, returning def for an empty
// or unparsable string.
func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// parseIntSuffix parses s after stripping a trailing unit suffix (e.g. "mm",
// "ms"), returning def on failure.
func parseIntSuffix(s, suffix string, def int) int {
	if s == "" {
		return def
	}
	return parseIntDefault(strings.TrimSuffix(strings.TrimSpace(s), suffix), def)
}
