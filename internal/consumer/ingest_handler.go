package consumer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/events"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/retry"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/wire"
)

// Recorder is the part of the engine the ingest handler drives.
type Recorder interface {
	RecordActivity(ctx context.Context, in domain.ActivityInput) (*domain.Activity, error)
	RecordSession(ctx context.Context, in domain.SessionInput) (*domain.CodingSession, error)
	ApplyPeriodicSessionUpdate(ctx context.Context, in domain.SessionInput) (*domain.SessionAck, error)
}

// IngestHandler records heartbeats and session reports forwarded by the edge gateway.
// Invalid payloads are logged and acknowledged; persistence failures are retried and
// then returned so the offset stays uncommitted.
type IngestHandler struct {
	recorder   Recorder
	log        *logger.Logger
	maxRetries int
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(recorder Recorder, log *logger.Logger, maxRetries int) *IngestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &IngestHandler{recorder: recorder, log: log.With("component", "ingest_handler"), maxRetries: maxRetries}
}

// Handle implements Handler.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	err := h.handle(ctx, msg)
	if err == nil {
		return nil
	}
	if domain.IsValidation(err) {
		h.log.Warn("rejected ingest payload", "event_type", msg.EventType, "user_id", msg.UserID, "offset", msg.Offset, "error", err)
		recordRejected(msg)
		return nil
	}
	return err
}

func (h *IngestHandler) handle(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.UserID) == "" {
		return &domain.ValidationError{Field: "user_id", Reason: "header is required"}
	}

	switch msg.EventType {
	case events.TypeHeartbeatReceived:
		var hb wire.Heartbeat
		if err := decode(msg.Payload, &hb); err != nil {
			return err
		}
		in := hb.ActivityInput(msg.UserID)
		return retry.Persistence(ctx, h.maxRetries, func(ctx context.Context) error {
			_, err := h.recorder.RecordActivity(ctx, in)
			return err
		})

	case events.TypeSessionReceived:
		var s wire.Session
		if err := decode(msg.Payload, &s); err != nil {
			return err
		}
		in := s.SessionInput(msg.UserID)
		return retry.Persistence(ctx, h.maxRetries, func(ctx context.Context) error {
			var err error
			if s.IsPeriodicUpdate {
				_, err = h.recorder.ApplyPeriodicSessionUpdate(ctx, in)
			} else {
				_, err = h.recorder.RecordSession(ctx, in)
			}
			return err
		})

	default:
		h.log.Debug("ignoring event type", "event_type", msg.EventType, "topic", msg.Topic)
		return nil
	}
}

type validator interface {
	Validate() error
}

func decode(payload json.RawMessage, into validator) error {
	if err := json.Unmarshal(payload, into); err != nil {
		return &domain.ValidationError{Field: "payload", Reason: err.Error()}
	}
	return into.Validate()
}
