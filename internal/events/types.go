// Package events provides the in-process event bus for the playback engine.
// This enables real-time notifications to the diagnostics API and dashboards.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

// Engine-wide event types
const (
	// Playback session events
	EventSessionStarted EventType = "playback.session.started"
	EventSessionStopped EventType = "playback.session.stopped"
	EventSessionStalled EventType = "playback.session.stalled"

	// Decoder pool events
	EventPoolRebalanced EventType = "playback.pool.rebalanced"
	EventDecoderReset   EventType = "playback.decoder.reset"

	// Scrub detection events
	EventScrubStarted EventType = "playback.scrub.started"
	EventScrubStopped EventType = "playback.scrub.stopped"

	// Project events
	EventProjectReloaded EventType = "project.reloaded"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"

	// General events
	EventError   EventType = "error"
	EventWarning EventType = "warning"
	EventInfo    EventType = "info"
)

// EventPriority represents the priority level of an event
type EventPriority int

const (
	PriorityLow      EventPriority = 1
	PriorityNormal   EventPriority = 5
	PriorityHigh     EventPriority = 10
	PriorityCritical EventPriority = 20
)

// Event represents an engine event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // system, module:id, session:id
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Priority  EventPriority          `json:"priority"`
	Tags      []string               `json:"tags"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter selects which events a subscription receives.
// Empty fields match everything.
type EventFilter struct {
	Types   []EventType `json:"types"`
	Sources []string    `json:"sources"`
}

// Matches reports whether an event passes the filter
func (f EventFilter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Sources) > 0 {
		found := false
		for _, s := range f.Sources {
			if s == event.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// Subscription represents an active event subscription
type Subscription struct {
	ID           string       `json:"id"`
	Filter       EventFilter  `json:"filter"`
	Handler      EventHandler `json:"-"`
	Subscriber   string       `json:"subscriber"`
	Created      time.Time    `json:"created"`
	TriggerCount uint64       `json:"trigger_count"`
}

// EventBusConfig configures the event bus
type EventBusConfig struct {
	BufferSize   int `json:"buffer_size"`
	RecentEvents int `json:"recent_events"`
}

// DefaultEventBusConfig returns the default bus configuration
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		BufferSize:   256,
		RecentEvents: 100,
	}
}

// EventStats holds counters for the event bus
type EventStats struct {
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}
