package audit

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Outcome values for an audit entry.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// maxDescriptionLen caps the free-text description column.
const maxDescriptionLen = 500

// Entry is one immutable line of the audit trail. ActorID is nil for
// actions without an authenticated actor (failed logins, system jobs).
type Entry struct {
	ID          uuid.UUID  `json:"id"`
	ActorID     *uuid.UUID `json:"actor_id,omitempty"`
	Action      string     `json:"action"`
	EntityType  string     `json:"entity_type"`
	EntityID    *uuid.UUID `json:"entity_id,omitempty"`
	Description string     `json:"description"`
	Origin      string     `json:"origin"`
	Outcome     string     `json:"outcome"`
	ErrorCode   *string    `json:"error_code,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// truncateDescription trims to the column cap without splitting a rune.
func truncateDescription(s string) string {
	if len(s) <= maxDescriptionLen {
		return s
	}
	cut := maxDescriptionLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
