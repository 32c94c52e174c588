package amqp

import (
	"encoding/json"
	"time"

	"conti/internal/core"
)

// Trigger reasons carried on sync messages.
const (
	TriggerCreate  = "create"
	TriggerUpdate  = "update"
	TriggerDelete  = "delete"
	TriggerManual  = "manual"
	TriggerStartup = "startup"
)

// SyncTriggerMessage asks the worker to run a reconcile cycle. It names
// what changed for logging only; the cycle always reconciles everything.
type SyncTriggerMessage struct {
	Reason    string    `json:"reason"`
	Kind      core.Kind `json:"kind,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSyncTriggerMessage creates a trigger for the given change.
func NewSyncTriggerMessage(reason string, kind core.Kind, entityID string) *SyncTriggerMessage {
	return &SyncTriggerMessage{
		Reason:    reason,
		Kind:      kind,
		EntityID:  entityID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncTriggerMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncTriggerMessageFromJSON creates a message from JSON bytes
func SyncTriggerMessageFromJSON(data []byte) (*SyncTriggerMessage, error) {
	var msg SyncTriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
