// Package model defines the canonical call record and run reporting types
// shared across the ingestion pipeline.
package model

import (
	"fmt"
	"time"
)

// Priority is the severity bucket assigned to a call.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// AllPriorities returns the priority buckets from most to least severe.
func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

// Valid reports whether p is one of the known buckets.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Call is the canonical dispatch call record. It is produced by the
// normalizer, enriched by the geocoder and classifier, and persisted by the
// store keyed on CallID.
type Call struct {
	ID              string   `json:"id,omitempty"`
	CallID          string   `json:"call_id"`
	Incident        string   `json:"incident"`
	Location        string   `json:"location"`
	RawLocation     string   `json:"raw_location,omitempty"`
	Agency          string   `json:"agency"`
	Status          string   `json:"status"`
	Priority        Priority `json:"priority"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	TimeReceivedMS  int64    `json:"-"`
	Source          Source   `json:"source"`
	Description     string   `json:"description"`
	GeocodeStrategy string   `json:"geocode_strategy,omitempty"`

	// Jurisdiction is the "County/City, State" suffix handed to the geocoder.
	// It is derived from the agency and never stored.
	Jurisdiction string `json:"-"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// TimeReceived returns the receive time as a UTC time.Time.
func (c *Call) TimeReceived() time.Time {
	return time.UnixMilli(c.TimeReceivedMS).UTC()
}

// SetTimeReceived stores t as milliseconds since the epoch.
func (c *Call) SetTimeReceived(t time.Time) {
	c.TimeReceivedMS = t.UnixMilli()
}

// SetCoordinates sets both coordinates together.
func (c *Call) SetCoordinates(lat, lon float64) {
	c.Latitude = &lat
	c.Longitude = &lon
}

// ClearCoordinates nulls both coordinates together.
func (c *Call) ClearCoordinates() {
	c.Latitude = nil
	c.Longitude = nil
}

// HasCoordinates reports whether the call has been geocoded.
func (c *Call) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// BuildDescription returns the display string "{incident} at {location}".
func BuildDescription(incident, location string) string {
	if location == "" {
		return incident
	}
	return fmt.Sprintf("%s at %s", incident, location)
}

// callJSON is the wire shape of Call: time_received is rendered as ISO-8601 UTC.
type callJSON struct {
	callAlias
	TimeReceived string `json:"time_received"`
}

type callAlias Call
