package conversation

import "time"

// InvitationValidity is how long a pending invitation stays redeemable.
const InvitationValidity = 7 * 24 * time.Hour

// Invitation is a pending request for the named counterpart to join a
// session.
type Invitation struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	InviteeName string    `json:"inviteeName"`
	Contact     string    `json:"contact,omitempty"`
	Confirmed   bool      `json:"confirmed"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the invitation's validity window has lapsed.
func (i Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
