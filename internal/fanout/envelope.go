// Package fanout pushes engine events to live listeners. Every scope
// (a tenant inbox or a single workflow) is owned by one actor goroutine
// so events reach subscribers in publish order.
package fanout

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

const (
	EventMessageSent     = "message_sent"
	EventMessageRecalled = "message_recalled"
	EventLinkAdded       = "link_added"
	EventLinkRemoved     = "link_removed"
	EventWorkflowStatus  = "workflow_status_changed"
)

// Envelope is the wire shape of every pushed event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals the payload eagerly so a bad payload surfaces at
// publish time, not per subscriber.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: data}, nil
}

func TenantScope(tenantID snowflake.ID) string {
	return fmt.Sprintf("tenant:%s", tenantID)
}

func WorkflowScope(workflowID snowflake.ID) string {
	return fmt.Sprintf("workflow:%s", workflowID)
}
