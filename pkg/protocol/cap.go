package protocol

import "fmt"

// sprintfCapped formats then truncates to max runes, appending an
// ellipsis marker when truncated. Full detail always still goes to
// logs; this only bounds what crosses the wire to the client.
func sprintfCapped(max int, format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
