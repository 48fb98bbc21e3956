package kafka

import (
	"encoding/json"
	"time"

	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	ClientMessage *models.CreateClientRequest
}

// ParseClientMessage parses the message value as a raw client record
func (m *IncomingMessage) ParseClientMessage() error {
	var req models.CreateClientRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return err
	}
	m.ClientMessage = &req
	return nil
}

// GetClientID returns the client ID from the parsed message, falling back
// to the Kafka key
func (m *IncomingMessage) GetClientID() string {
	if m.ClientMessage != nil && m.ClientMessage.ClientID != "" {
		return m.ClientMessage.ClientID
	}
	return m.Key
}

// GetSource returns the originating CRM system from the message headers
func (m *IncomingMessage) GetSource() string {
	return m.Headers["source"]
}

// RunRequestMessage represents a run.requested event used to trigger an
// assignment run out of band
type RunRequestMessage struct {
	Type        string    `json:"type"` // "run.requested"
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsRunRequest checks if the message is a run.requested event
func (m *IncomingMessage) IsRunRequest() bool {
	if msgType := m.Headers["type"]; msgType == "run.requested" {
		return true
	}

	var evt RunRequestMessage
	if err := json.Unmarshal(m.Value, &evt); err == nil {
		return evt.Type == "run.requested"
	}

	return false
}
