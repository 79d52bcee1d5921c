package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/zalohook/app/models"
)

const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultListLimit    = 50
	MaxListLimit        = 200
)

// ErrStorageUnavailable wraps every failure of the event store other than a
// duplicate event ID. Callers may retry.
var ErrStorageUnavailable = errors.New("event store unavailable")

type RecordResult int

const (
	RecordInserted RecordResult = iota + 1
	RecordAlreadyExists
)

func (r RecordResult) String() string {
	switch r {
	case RecordInserted:
		return "inserted"
	case RecordAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// EventFilter narrows ListRecent. Empty fields match everything.
type EventFilter struct {
	EventName string
	Status    string
	Limit     int
}

type webhookEventRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewWebhookEventRepository creates a new webhook event repository. A
// non-positive timeout uses DefaultStoreTimeout.
func NewWebhookEventRepository(db *gorm.DB, timeout time.Duration) WebhookEventRepository {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &webhookEventRepository{db: db, timeout: timeout}
}

// Record inserts event unless a row with the same event_id exists. The insert
// and the existence check are one statement, so concurrent deliveries of one
// event yield exactly one RecordInserted.
func (r *webhookEventRepository) Record(ctx context.Context, event *models.WebhookEvent) (RecordResult, error) {
	if event == nil || strings.TrimSpace(event.EventID) == "" {
		return 0, fmt.Errorf("%w: event id required", ErrStorageUnavailable)
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	if event.ProcessingStatus == "" {
		event.ProcessingStatus = models.StatusReceived
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageUnavailable, tx.Error)
	}
	if tx.RowsAffected > 0 {
		return RecordInserted, nil
	}
	return RecordAlreadyExists, nil
}

func (r *webhookEventRepository) GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var event models.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return &event, nil
}

// ListRecent returns the newest events first.
func (r *webhookEventRepository) ListRecent(ctx context.Context, filter EventFilter) ([]models.WebhookEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	q := r.db.WithContext(ctx).Model(&models.WebhookEvent{})
	if filter.EventName != "" {
		q = q.Where("event_name = ?", filter.EventName)
	}
	if filter.Status != "" {
		q = q.Where("processing_status = ?", filter.Status)
	}

	var events []models.WebhookEvent
	if err := q.Order("received_at DESC").Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return events, nil
}

func (r *webhookEventRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return count, nil
}

// CountByStatus returns the number of events per processing status.
func (r *webhookEventRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []struct {
		ProcessingStatus string
		Total            int64
	}
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Select("processing_status, COUNT(*) AS total").
		Group("processing_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.ProcessingStatus] = row.Total
	}
	return out, nil
}
