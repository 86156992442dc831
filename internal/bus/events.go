// Package bus hands admitted webhook events from the HTTP path to the
// workers that process them.
package bus

import "time"

// EventType is the webhook event type.
type EventType string

// EventCastCreated is the only event type the bot acts on.
const EventCastCreated EventType = "cast.created"

// InboundEvent is a parsed cast.created webhook.
type InboundEvent struct {
	Type             EventType `json:"type"`
	CastHash         string    `json:"cast_hash"`
	Text             string    `json:"text"`
	AuthorHandle     string    `json:"author_handle"`
	AuthorFID        uint64    `json:"author_fid"`
	MentionedHandles []string  `json:"mentioned_handles,omitempty"`
	MentionedFIDs    []uint64  `json:"mentioned_fids,omitempty"`
	ParentHash       string    `json:"parent_hash,omitempty"`
	ChannelID        string    `json:"channel_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Task is one admitted event waiting for a worker.
type Task struct {
	ID         string       `json:"id"`
	Key        string       `json:"key"` // dedup key the event was admitted under
	Event      InboundEvent `json:"event"`
	AdmittedAt time.Time    `json:"admitted_at"`
}
