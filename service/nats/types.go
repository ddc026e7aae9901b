package nats

import (
	"time"

	"github.com/abelmarnk/zero-fun/service/db"
)

// InvocationEvent represents an invocation lifecycle event published to NATS.
// This is published to the subject "invocations.{method}" in JetStream.
type InvocationEvent struct {
	// Transaction identifiers
	Signature string `json:"signature"`
	Slot      int64  `json:"slot,omitempty"`

	// Invocation details
	Method         string `json:"method"`
	ProgramAddress string `json:"program_address"`
	Network        string `json:"network"`
	Payer          string `json:"payer"`

	// Outcome
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromDBInvocation converts a journal row to an InvocationEvent for publishing.
func FromDBInvocation(inv *db.Invocation) *InvocationEvent {
	event := &InvocationEvent{
		Signature:      inv.Signature,
		Method:         inv.Method,
		ProgramAddress: inv.ProgramAddress,
		Network:        inv.Network,
		Payer:          inv.Payer,
		Status:         inv.Status,
		PublishedAt:    time.Now().UTC(),
	}

	if inv.Slot != nil {
		event.Slot = *inv.Slot
	}
	if inv.Error != nil {
		event.Error = *inv.Error
	}

	return event
}
