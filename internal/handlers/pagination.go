package handlers

import (
	"fmt"
	"strconv"
)

const maxPageLimit = 50

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// parseCursor reads a message-id cursor; an empty value means "newest page".
// Garbage is rejected rather than treated as the newest page, since the
// initial page also marks the conversation read.
func parseCursor(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid cursor %q", raw)
	}
	return parsed, nil
}
