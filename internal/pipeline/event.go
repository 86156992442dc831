package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dayuer/castbot/internal/bus"
	"github.com/dayuer/castbot/internal/mention"
)

// InboundEvent is a parsed webhook event.
type InboundEvent = bus.InboundEvent

// KeyMode selects how dedup keys are derived from an event.
type KeyMode string

const (
	// KeyHash keys on the cast hash alone.
	KeyHash KeyMode = "hash"
	// KeyComposite keys on type, cast hash and author fid.
	KeyComposite KeyMode = "composite"
)

type webhookProfile struct {
	FID      uint64 `json:"fid"`
	Username string `json:"username"`
}

type webhookBody struct {
	Type      string           `json:"type"`
	CreatedAt int64            `json:"created_at"`
	Data      *json.RawMessage `json:"data"`
}

type castData struct {
	Hash              string           `json:"hash"`
	Text              string           `json:"text"`
	ParentHash        string           `json:"parent_hash"`
	Author            webhookProfile   `json:"author"`
	MentionedProfiles []webhookProfile `json:"mentioned_profiles"`
	Channel           *struct {
		ID string `json:"id"`
	} `json:"channel"`
}

// ParseEvent decodes and shape-checks a raw webhook body.
func ParseEvent(body []byte) (InboundEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return InboundEvent{}, &ValidationError{Reason: "body is not a JSON object"}
	}

	var wb webhookBody
	if err := json.Unmarshal(trimmed, &wb); err != nil {
		return InboundEvent{}, &ValidationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if wb.Type == "" {
		return InboundEvent{}, &ValidationError{Reason: "missing event type"}
	}
	if bus.EventType(wb.Type) != bus.EventCastCreated {
		return InboundEvent{}, &ValidationError{Reason: fmt.Sprintf("unsupported event type %q", wb.Type)}
	}
	if wb.Data == nil || !bytes.HasPrefix(bytes.TrimSpace(*wb.Data), []byte("{")) {
		return InboundEvent{}, &ValidationError{Reason: "missing data object"}
	}

	var cd castData
	if err := json.Unmarshal(*wb.Data, &cd); err != nil {
		return InboundEvent{}, &ValidationError{Reason: fmt.Sprintf("malformed data: %v", err)}
	}
	if strings.TrimSpace(cd.Hash) == "" {
		return InboundEvent{}, &ValidationError{Reason: "missing cast hash"}
	}

	ev := InboundEvent{
		Type:         bus.EventCastCreated,
		CastHash:     cd.Hash,
		Text:         cd.Text,
		AuthorHandle: cd.Author.Username,
		AuthorFID:    cd.Author.FID,
		ParentHash:   cd.ParentHash,
	}
	if wb.CreatedAt > 0 {
		ev.CreatedAt = time.Unix(wb.CreatedAt, 0).UTC()
	}
	if cd.Channel != nil {
		ev.ChannelID = cd.Channel.ID
	}
	for _, p := range cd.MentionedProfiles {
		if p.Username != "" {
			ev.MentionedHandles = append(ev.MentionedHandles, p.Username)
		}
		if p.FID != 0 {
			ev.MentionedFIDs = append(ev.MentionedFIDs, p.FID)
		}
	}
	return ev, nil
}

// DedupKey derives the admission key for ev.
func DedupKey(ev InboundEvent, mode KeyMode) string {
	if mode == KeyComposite {
		return fmt.Sprintf("%s:%s:%d", ev.Type, ev.CastHash, ev.AuthorFID)
	}
	return ev.CastHash
}

func mentionEvent(ev InboundEvent) mention.Event {
	return mention.Event{
		AuthorHandle:     ev.AuthorHandle,
		AuthorFID:        ev.AuthorFID,
		Text:             ev.Text,
		MentionedHandles: ev.MentionedHandles,
		MentionedFIDs:    ev.MentionedFIDs,
	}
}
