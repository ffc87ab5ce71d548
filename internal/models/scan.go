package models

import "time"

// ScanEvent is one decoded-text notification from a scan source.
type ScanEvent struct {
	Text       string    `json:"text"`
	ObservedAt time.Time `json:"observed_at"`
}

// DropReason explains why the gate refused a scan event.
type DropReason string

const (
	DropNone      DropReason = ""
	DropBusy      DropReason = "busy"
	DropCooldown  DropReason = "cooldown"
	DropDuplicate DropReason = "duplicate"
	DropEmpty     DropReason = "empty"

	// DropUnconfigured is reported after the gate admitted the text but
	// the settings were incomplete, so no transaction started.
	DropUnconfigured DropReason = "configuration_incomplete"
)

// Decision is the gate's verdict on a raw scan event. Text is set only
// when Admit is true.
type Decision struct {
	Admit  bool       `json:"admit"`
	Text   string     `json:"text,omitempty"`
	Reason DropReason `json:"reason,omitempty"`
}

func Admit(text string) Decision { return Decision{Admit: true, Text: text} }

func Drop(reason DropReason) Decision { return Decision{Reason: reason} }
