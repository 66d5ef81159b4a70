package handlers

import (
	"strings"

	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func isValidMemberRole(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "admin", "member":
		return true
	default:
		return false
	}
}
