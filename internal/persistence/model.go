package persistence

import "time"

// CallEvent is the durable record of a recognized on_b_dial or on_transfer
// event. Caller-id fields are flattened rather than nested, to keep the
// table queryable with plain SQL from an operator console.
type CallEvent struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	At   time.Time `gorm:"index;not null" json:"at"`
	Kind string    `gorm:"index;size:16;not null" json:"kind"` // "b_dial" or "transfer"

	CallerName   string `gorm:"size:64" json:"caller_name,omitempty"`
	CallerNumber string `gorm:"index;size:32" json:"caller_number,omitempty"`
	CalleeName   string `gorm:"size:64" json:"callee_name,omitempty"`
	CalleeNumber string `gorm:"index;size:32" json:"callee_number,omitempty"`

	RedirectorName   string `gorm:"size:64" json:"redirector_name,omitempty"`
	RedirectorNumber string `gorm:"index;size:32" json:"redirector_number,omitempty"`
	Party1Name       string `gorm:"size:64" json:"party1_name,omitempty"`
	Party1Number     string `gorm:"size:32" json:"party1_number,omitempty"`
	Party2Name       string `gorm:"size:64" json:"party2_name,omitempty"`
	Party2Number     string `gorm:"size:32" json:"party2_number,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName overrides the default pluralization.
func (CallEvent) TableName() string {
	return "call_events"
}
