package conversation

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusInvited   Status = "INVITED"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusResolved  Status = "RESOLVED"
	StatusAbandoned Status = "ABANDONED"
)

// Session is one guided conversation between two participants, or one
// participant awaiting a partner.
type Session struct {
	ID             string    `json:"id"`
	Status         Status    `json:"status"`
	RelationshipID string    `json:"relationshipId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Relationship links the initiating user to a counterpart, who may still be
// a placeholder identified only by nickname until they join.
type Relationship struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	CounterpartID string    `json:"counterpartId,omitempty"`
	Nickname      string    `json:"nickname,omitempty"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DisplayName resolves the counterpart's display name through the fixed
// fallback chain: nickname, first name, last name, generic placeholder.
func (r Relationship) DisplayName() string {
	if name := strings.TrimSpace(r.Nickname); name != "" {
		return name
	}
	if name := strings.TrimSpace(r.FirstName); name != "" {
		return name
	}
	if name := strings.TrimSpace(r.LastName); name != "" {
		return name
	}
	return "your conversation partner"
}

// Terminal reports whether the session can no longer accept turns.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusAbandoned
}
