package models

import (
	"encoding/json"
	"time"
)

const (
	StatusReceived   = "received"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// WebhookEvent is one logical provider event. EventID is unique, so a
// redelivered event never produces a second row.
type WebhookEvent struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	EventID           string          `gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_event_id" json:"event_id"`
	EventName         string          `gorm:"type:varchar(100);not null;index" json:"event_name"`
	EventKind         string          `gorm:"type:varchar(32);not null" json:"event_kind"`
	AppID             string          `gorm:"type:varchar(100);not null" json:"app_id"`
	OAID              string          `gorm:"column:oa_id;type:varchar(100)" json:"oa_id"`
	SenderID          string          `gorm:"type:varchar(100);index" json:"sender_id"`
	EventTimestamp    int64           `gorm:"not null" json:"event_timestamp"`
	RawPayload        json.RawMessage `gorm:"not null" json:"raw_payload"`
	ProcessingStatus  string          `gorm:"type:varchar(20);not null;default:'received';index" json:"processing_status"`
	SignatureVerified bool            `gorm:"not null;default:false" json:"signature_verified"`
	ClientIP          string          `gorm:"type:varchar(45)" json:"client_ip"`
	ReceivedAt        time.Time       `gorm:"not null;index" json:"received_at"`
	ProcessedAt       *time.Time      `gorm:"default:null" json:"processed_at,omitempty"`
	ErrorMessage      string          `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount        int             `gorm:"type:smallint;not null;default:0" json:"retry_count"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
