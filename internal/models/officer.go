package models

import "time"

// Officer represents an onboarded community member with a badge assignment
type Officer struct {
	ID          int64     `json:"id"`
	MemberID    string    `json:"member_id"` // chat-platform member ID
	Name        string    `json:"name"`
	BadgeNumber string    `json:"badge_number"` // zero-padded, e.g. "00042"
	Timezone    string    `json:"timezone"`
	OnboardedAt time.Time `json:"onboarded_at"`
}

// MemberRole is one capability held by a member
type MemberRole struct {
	MemberID  string    `json:"member_id"`
	Role      string    `json:"role"`
	GrantedAt time.Time `json:"granted_at"`
}
