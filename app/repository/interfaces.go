package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/zalohook/app/models"
)

// WebhookEventRepository defines the operations on stored webhook events
type WebhookEventRepository interface {
	Record(ctx context.Context, event *models.WebhookEvent) (RecordResult, error)
	GetByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	ListRecent(ctx context.Context, filter EventFilter) ([]models.WebhookEvent, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB, storeTimeout time.Duration) *Repositories {
	return &Repositories{
		WebhookEvent: NewWebhookEventRepository(db, storeTimeout),
	}
}
