package models

import "time"

// Punishment types assignable to a member
const (
	PunishmentVerbalWarning  = "Verbal Warning"
	PunishmentWrittenWarning = "Written Warning"
	PunishmentStrike         = "Strike"
	PunishmentTermination    = "Termination"
)

// ValidPunishmentType reports whether t is one of the assignable types
func ValidPunishmentType(t string) bool {
	switch t {
	case PunishmentVerbalWarning, PunishmentWrittenWarning, PunishmentStrike, PunishmentTermination:
		return true
	}
	return false
}

// Punishment is one disciplinary record
type Punishment struct {
	ID           int64     `json:"id"`
	MemberID     string    `json:"member_id"`
	MemberName   string    `json:"member_name"`
	Type         string    `json:"type"`
	Reason       string    `json:"reason"`
	ExecutorID   string    `json:"executor_id"`
	ExecutorName string    `json:"executor_name"`
	CreatedAt    time.Time `json:"created_at"`
}
