package models

import (
	"encoding/json"
	"time"
)

// Client is a business client record from the staging feed. Client IDs are
// externally assigned and stable; records are deactivated, never deleted.
type Client struct {
	ID            string          `json:"id" db:"id"`
	ClientID      string          `json:"client_id" db:"client_id"`
	Name          string          `json:"name" db:"name"`
	Region        string          `json:"region" db:"region"`
	Segment       string          `json:"segment" db:"segment"`
	ParentOrg     string          `json:"parent_org" db:"parent_org"`
	AdvisorEmail  string          `json:"advisor_email" db:"advisor_email"`
	Attributes    json.RawMessage `json:"attributes,omitempty" db:"attributes"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	MergedInto    *string         `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	DeactivatedAt *time.Time      `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

// CreateClientRequest is the ingestion payload for a raw client record.
type CreateClientRequest struct {
	ClientID     string          `json:"client_id" validate:"required"`
	Name         string          `json:"client_name" validate:"required"`
	Region       string          `json:"region"`
	Segment      string          `json:"segment"`
	ParentOrg    string          `json:"parent_org"`
	AdvisorEmail string          `json:"advisor_email" validate:"omitempty,email"`
	Attributes   json.RawMessage `json:"attributes,omitempty"`
	IsActive     *bool           `json:"active,omitempty"`
}

// Data flattens the client into a field map for criteria evaluation. Extra
// JSONB attributes are merged in under their own keys; built-in fields win on
// collision.
func (c *Client) Data() map[string]any {
	data := make(map[string]any)
	if len(c.Attributes) > 0 {
		_ = json.Unmarshal(c.Attributes, &data)
	}
	data["client_id"] = c.ClientID
	data["name"] = c.Name
	data["region"] = c.Region
	data["segment"] = c.Segment
	data["parent_org"] = c.ParentOrg
	data["advisor_email"] = c.AdvisorEmail
	return data
}

// Completeness counts the populated attribute fields on the client. Used by
// the most_complete merge strategy to pick a canonical record.
func (c *Client) Completeness() int {
	count := 0
	for _, v := range []string{c.Name, c.Region, c.Segment, c.ParentOrg, c.AdvisorEmail} {
		if v != "" {
			count++
		}
	}
	return count
}
