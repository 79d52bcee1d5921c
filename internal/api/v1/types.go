package apiv1

import (
	"encoding/json"
	"time"

	"github.com/ManuelReschke/zalohook/app/models"
)

type Pong struct {
	Ping string `json:"ping"`
}

type Error struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Event is the inspection view of a stored webhook event.
type Event struct {
	EventID           string          `json:"event_id"`
	EventName         string          `json:"event_name"`
	EventKind         string          `json:"event_kind"`
	AppID             string          `json:"app_id"`
	OAID              string          `json:"oa_id,omitempty"`
	SenderID          string          `json:"sender_id,omitempty"`
	EventTimestamp    int64           `json:"event_timestamp"`
	ProcessingStatus  string          `json:"processing_status"`
	SignatureVerified bool            `json:"signature_verified"`
	ClientIP          string          `json:"client_ip,omitempty"`
	ReceivedAt        string          `json:"received_at"`
	ProcessedAt       *string         `json:"processed_at,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	RetryCount        int             `json:"retry_count"`
	RawPayload        json.RawMessage `json:"raw_payload,omitempty"`
}

type EventList struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
	Limit  int     `json:"limit"`
}

type Stats struct {
	Process      map[string]int64 `json:"process"`
	Cluster      map[string]int64 `json:"cluster,omitempty"`
	StoredEvents int64            `json:"stored_events"`
	ByStatus     map[string]int64 `json:"by_status"`
	GeneratedAt  string           `json:"generated_at"`
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// toEvent maps a row to its API view; the raw payload is only included for
// single-event lookups.
func toEvent(m models.WebhookEvent, withPayload bool) Event {
	e := Event{
		EventID:           m.EventID,
		EventName:         m.EventName,
		EventKind:         m.EventKind,
		AppID:             m.AppID,
		OAID:              m.OAID,
		SenderID:          m.SenderID,
		EventTimestamp:    m.EventTimestamp,
		ProcessingStatus:  m.ProcessingStatus,
		SignatureVerified: m.SignatureVerified,
		ClientIP:          m.ClientIP,
		ReceivedAt:        m.ReceivedAt.UTC().Format(time.RFC3339),
		ProcessedAt:       formatTimePtr(m.ProcessedAt),
		ErrorMessage:      m.ErrorMessage,
		RetryCount:        m.RetryCount,
	}
	if withPayload && json.Valid(m.RawPayload) {
		e.RawPayload = m.RawPayload
	}
	return e
}
