package apiv1

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/zalohook/app/models"
	"github.com/ManuelReschke/zalohook/app/repository"
	"github.com/ManuelReschke/zalohook/internal/pkg/metrics/counter"
)

// APIServer serves the read-only event inspection API.
type APIServer struct {
	events   repository.WebhookEventRepository
	counters *counter.Counters
	rdb      redis.Cmdable
}

// NewAPIServer creates a new API server instance. rdb may be nil, in which
// case stats only report this process.
func NewAPIServer(events repository.WebhookEventRepository, counters *counter.Counters, rdb redis.Cmdable) *APIServer {
	return &APIServer{events: events, counters: counters, rdb: rdb}
}

// RegisterHandlers mounts the v1 routes on router.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)
	router.Get("/events", s.ListEvents)
	router.Get("/events/:event_id", s.GetEvent)
	router.Get("/stats", s.GetStats)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

var validStatuses = map[string]bool{
	models.StatusReceived:   true,
	models.StatusProcessing: true,
	models.StatusProcessed:  true,
	models.StatusFailed:     true,
}

// ListEvents returns stored events, newest first.
func (s *APIServer) ListEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", repository.DefaultListLimit)
	if limit <= 0 || limit > repository.MaxListLimit {
		return c.Status(fiber.StatusBadRequest).JSON(Error{Error: "invalid_limit", Message: "limit must be between 1 and 200"})
	}
	status := strings.TrimSpace(c.Query("status"))
	if status != "" && !validStatuses[status] {
		return c.Status(fiber.StatusBadRequest).JSON(Error{Error: "invalid_status", Message: "unknown processing status"})
	}

	rows, err := s.events.ListRecent(c.UserContext(), repository.EventFilter{
		EventName: strings.TrimSpace(c.Query("event_name")),
		Status:    status,
		Limit:     limit,
	})
	if err != nil {
		log.Errorf("[API] list events failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(Error{Error: "storage_unavailable"})
	}

	out := EventList{Events: make([]Event, 0, len(rows)), Limit: limit}
	for _, row := range rows {
		out.Events = append(out.Events, toEvent(row, false))
	}
	out.Count = len(out.Events)
	return c.Status(fiber.StatusOK).JSON(out)
}

// GetEvent returns one event including its raw payload.
func (s *APIServer) GetEvent(c *fiber.Ctx) error {
	eventID := strings.TrimSpace(c.Params("event_id"))
	if eventID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(Error{Error: "invalid_event_id"})
	}

	row, err := s.events.GetByEventID(c.UserContext(), eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(Error{Error: "not_found", Message: "Event not found"})
		}
		log.Errorf("[API] get event %s failed: %v", eventID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(Error{Error: "storage_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(toEvent(*row, true))
}

// GetStats reports outcome counters and stored event totals.
func (s *APIServer) GetStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	total, err := s.events.Count(ctx)
	if err != nil {
		log.Errorf("[API] count events failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(Error{Error: "storage_unavailable"})
	}
	byStatus, err := s.events.CountByStatus(ctx)
	if err != nil {
		log.Errorf("[API] count events by status failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(Error{Error: "storage_unavailable"})
	}

	stats := Stats{
		Process:      map[string]int64{},
		StoredEvents: total,
		ByStatus:     byStatus,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if s.counters != nil {
		stats.Process = s.counters.Snapshot()
	}
	if s.rdb != nil {
		cluster, err := counter.Totals(ctx, s.rdb)
		if err != nil {
			log.Warnf("[API] reading cluster counters failed: %v", err)
		} else {
			stats.Cluster = cluster
		}
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}
