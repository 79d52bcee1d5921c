// Package webhook runs one inbound provider callback through rate limiting,
// authentication, decoding and idempotent storage.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/zalohook/app/models"
	"github.com/ManuelReschke/zalohook/app/repository"
	"github.com/ManuelReschke/zalohook/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/zalohook/internal/pkg/ratelimit"
	"github.com/ManuelReschke/zalohook/internal/pkg/signature"
	"github.com/ManuelReschke/zalohook/internal/pkg/zalo"
)

const (
	HeaderTimestamp = "X-ZEvent-Timestamp"
	HeaderAppID     = "X-ZEvent-App-Id"
)

type State int

const (
	StateReceived State = iota
	StateRateLimitChecked
	StateSignatureChecked
	StateParsed
	StateStored
	StateAcknowledged
	StateRateLimited
	StateUnauthorized
	StateMalformedPayload
	StatePayloadTooLarge
	StateStorageUnavailable
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateRateLimitChecked:
		return "rate_limit_checked"
	case StateSignatureChecked:
		return "signature_checked"
	case StateParsed:
		return "parsed"
	case StateStored:
		return "stored"
	case StateAcknowledged:
		return "acknowledged"
	case StateRateLimited:
		return "rate_limited"
	case StateUnauthorized:
		return "unauthorized"
	case StateMalformedPayload:
		return "malformed_payload"
	case StatePayloadTooLarge:
		return "payload_too_large"
	case StateStorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// HTTPStatus is the response code for a terminal state.
func (s State) HTTPStatus() int {
	switch s {
	case StateAcknowledged:
		return http.StatusOK
	case StateRateLimited:
		return http.StatusTooManyRequests
	case StateUnauthorized:
		return http.StatusUnauthorized
	case StateMalformedPayload:
		return http.StatusBadRequest
	case StatePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusServiceUnavailable
	}
}

// InboundRequest is the transport-independent view of one POST.
type InboundRequest struct {
	ID         string
	Body       []byte
	Headers    http.Header
	ClientIP   string
	ReceivedAt time.Time
}

// Outcome is the terminal result of Handle.
type Outcome struct {
	State State
	// Status is the HTTP status code for State.
	Status int
	Err    error
	// Reason is the internal cause, logged but never sent to the client.
	Reason     string
	EventID    string
	Duplicate  bool
	RetryAfter int
}

type RateLimiter interface {
	Allow(ctx context.Context, clientKey string) ratelimit.Decision
}

type Verifier interface {
	Verify(body []byte, sc signature.Context, now time.Time) signature.Result
}

type EventStore interface {
	Record(ctx context.Context, event *models.WebhookEvent) (repository.RecordResult, error)
}

type Recorder interface {
	Incr(name counter.Name)
}

type Options struct {
	SignatureHeader string
	MaxPayloadBytes int
	// SkipVerification bypasses the signature stage. Only honoured for dev
	// deployments; config validation refuses it elsewhere.
	SkipVerification bool
	Now              func() time.Time
}

type Pipeline struct {
	limiter  RateLimiter
	verifier Verifier
	store    EventStore
	metrics  Recorder

	signatureHeader  string
	maxPayloadBytes  int
	skipVerification bool
	now              func() time.Time
}

func NewPipeline(limiter RateLimiter, verifier Verifier, store EventStore, metrics Recorder, opts Options) *Pipeline {
	p := &Pipeline{
		limiter:          limiter,
		verifier:         verifier,
		store:            store,
		metrics:          metrics,
		signatureHeader:  opts.SignatureHeader,
		maxPayloadBytes:  opts.MaxPayloadBytes,
		skipVerification: opts.SkipVerification,
		now:              opts.Now,
	}
	if p.signatureHeader == "" {
		p.signatureHeader = "X-ZEvent-Signature"
	}
	if p.maxPayloadBytes <= 0 {
		p.maxPayloadBytes = 1_000_000
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Handle processes req. Stages run in a fixed order and the first failing
// stage decides the outcome; nothing is written before the store stage.
func (p *Pipeline) Handle(ctx context.Context, req InboundRequest) Outcome {
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = p.now()
	}

	decision := p.limiter.Allow(ctx, req.ClientIP)
	if decision.FailOpen {
		p.incr(counter.RateLimitFailOpen)
	}
	if !decision.Allowed {
		p.incr(counter.RateLimited)
		log.Debugf("[Webhook] %s rate limited %s (%d/%d)", req.ID, req.ClientIP, decision.Count, decision.Limit)
		return Outcome{
			State:      StateRateLimited,
			Status:     StateRateLimited.HTTPStatus(),
			Err:        ErrRateLimited,
			Reason:     "rate_limit_exceeded",
			RetryAfter: decision.RetryAfterSeconds(),
		}
	}

	if len(req.Body) > p.maxPayloadBytes {
		p.incr(counter.TooLarge)
		log.Warnf("[Webhook] %s payload of %d bytes from %s exceeds %d", req.ID, len(req.Body), req.ClientIP, p.maxPayloadBytes)
		return p.fail(StatePayloadTooLarge, ErrPayloadTooLarge, "payload_too_large")
	}

	verified := false
	sc, err := p.signatureContext(req)
	if err != nil {
		p.incr(counter.Malformed)
		log.Warnf("[Webhook] %s unreadable body from %s: %v", req.ID, req.ClientIP, err)
		return p.fail(StateMalformedPayload, fmt.Errorf("%w: %w", ErrMalformedPayload, err), "invalid_json")
	}
	if p.skipVerification {
		p.incr(counter.SignatureSkipped)
		log.Warnf("[Webhook] %s signature verification skipped", req.ID)
	} else {
		if result := p.verifier.Verify(req.Body, sc, p.now()); result != signature.Valid {
			return p.unauthorized(req, result.String())
		}
		verified = true
	}

	ev, err := zalo.Decode(req.Body)
	if err != nil {
		p.incr(counter.Malformed)
		log.Warnf("[Webhook] %s malformed payload from %s: %v", req.ID, req.ClientIP, err)
		return p.fail(StateMalformedPayload, fmt.Errorf("%w: %w", ErrMalformedPayload, err), "invalid_payload")
	}
	if verified && ev.AppID != sc.AppID {
		return p.unauthorized(req, signature.AppMismatch.String())
	}

	record := &models.WebhookEvent{
		EventID:           ev.ID,
		EventName:         ev.Name,
		EventKind:         string(ev.Kind),
		AppID:             ev.AppID,
		OAID:              ev.OAID,
		SenderID:          ev.SenderID,
		EventTimestamp:    ev.Timestamp,
		RawPayload:        append([]byte(nil), req.Body...),
		ProcessingStatus:  models.StatusReceived,
		SignatureVerified: verified,
		ClientIP:          req.ClientIP,
		ReceivedAt:        req.ReceivedAt.UTC(),
	}
	res, err := p.store.Record(ctx, record)
	if err != nil {
		p.incr(counter.StoreFailed)
		log.Errorf("[Webhook] %s storing event %s failed: %v", req.ID, ev.ID, err)
		out := p.fail(StateStorageUnavailable, fmt.Errorf("%w: %w", ErrStorageUnavailable, err), "storage_unavailable")
		out.EventID = ev.ID
		return out
	}

	out := Outcome{
		State:   StateAcknowledged,
		Status:  StateAcknowledged.HTTPStatus(),
		EventID: ev.ID,
	}
	if res == repository.RecordAlreadyExists {
		p.incr(counter.Duplicate)
		out.Duplicate = true
		out.Reason = "duplicate"
		log.Infof("[Webhook] %s duplicate %s event %s ignored", req.ID, ev.Name, ev.ID)
		return out
	}
	p.incr(counter.Accepted)
	log.Infof("[Webhook] %s stored %s event %s", req.ID, ev.Name, ev.ID)
	return out
}

// signatureContext reads the declared timestamp and app ID from the headers,
// falling back to the top-level body fields.
func (p *Pipeline) signatureContext(req InboundRequest) (signature.Context, error) {
	sc := signature.Context{
		Signature: strings.TrimSpace(req.Headers.Get(p.signatureHeader)),
		Timestamp: strings.TrimSpace(req.Headers.Get(HeaderTimestamp)),
		AppID:     strings.TrimSpace(req.Headers.Get(HeaderAppID)),
	}
	if sc.Timestamp != "" && sc.AppID != "" {
		return sc, nil
	}
	env, err := zalo.Peek(req.Body)
	if err != nil {
		return sc, err
	}
	if sc.Timestamp == "" {
		sc.Timestamp = env.Timestamp
	}
	if sc.AppID == "" {
		sc.AppID = env.AppID
	}
	return sc, nil
}

func (p *Pipeline) unauthorized(req InboundRequest, reason string) Outcome {
	p.incr(counter.Unauthorized)
	log.Warnf("[Webhook] %s rejected request from %s: %s", req.ID, req.ClientIP, reason)
	return p.fail(StateUnauthorized, fmt.Errorf("%w: %s", ErrAuthentication, reason), reason)
}

func (p *Pipeline) fail(state State, err error, reason string) Outcome {
	return Outcome{State: state, Status: state.HTTPStatus(), Err: err, Reason: reason}
}

func (p *Pipeline) incr(name counter.Name) {
	if p.metrics != nil {
		p.metrics.Incr(name)
	}
}
