package models

import "time"

// Stage is the position of a PendingTransaction in its protocol.
type Stage string

const (
	StageLookup     Stage = "lookup"
	StageConfirming Stage = "confirming"
	StageDelivering Stage = "delivering"
	StageSubmitting Stage = "submitting"

	// Terminal stages.
	StageDelivered Stage = "delivered"
	StageRejected  Stage = "rejected"
	StageFailed    Stage = "failed"
)

// Terminal reports whether no further request follows this stage.
func (s Stage) Terminal() bool {
	switch s {
	case StageDelivered, StageRejected, StageFailed:
		return true
	}
	return false
}

// OrderRef is the order record returned by a lookup call.
type OrderRef struct {
	ID               string `json:"id"`
	Size             string `json:"size"`
	ParticipantEmail string `json:"participantEmail"`
}

// PendingTransaction tracks one admitted scan until it reaches a
// terminal stage.
type PendingTransaction struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Stage     Stage     `json:"stage"`
	OrderRef  *OrderRef `json:"order_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Verdict is the operator's answer at the confirmation gate.
type Verdict string

const (
	VerdictCancel  Verdict = "cancel"
	VerdictConfirm Verdict = "confirm"
)

// ParseVerdict accepts the two verdict names plus the usual y/n shorthands.
func ParseVerdict(s string) (Verdict, bool) {
	switch s {
	case "confirm", "y", "yes":
		return VerdictConfirm, true
	case "cancel", "n", "no":
		return VerdictCancel, true
	}
	return "", false
}
