// Package consumer reads extension payloads from the ingest topics and feeds them to the
// aggregation engine.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
)

// Reader is the subset of kafka.Reader the processor uses.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages. A nil return commits the offset.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded Kafka record.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	// SchemaID is zero when the producer did not use registry framing.
	SchemaID int
	Payload  json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the processor logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithFetchBackoff sets the pause after a failed fetch.
func WithFetchBackoff(d time.Duration) Option {
	return func(p *Processor) { p.fetchBackoff = d }
}

// WithHandlerBackoff sets the first and the longest pause between redeliveries of a
// record whose handler failed.
func WithHandlerBackoff(initial, ceiling time.Duration) Option {
	return func(p *Processor) {
		if initial > 0 {
			p.handlerBackoff = initial
		}
		if ceiling > 0 {
			p.handlerBackoffMax = ceiling
		}
	}
}

// Processor pulls messages, decodes them and dispatches to a Handler.
type Processor struct {
	reader            Reader
	handler           Handler
	log               *logger.Logger
	fetchBackoff      time.Duration
	handlerBackoff    time.Duration
	handlerBackoffMax time.Duration
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		log:               logger.Nop(),
		fetchBackoff:      500 * time.Millisecond,
		handlerBackoff:    500 * time.Millisecond,
		handlerBackoffMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx is cancelled. Offsets are committed only after the
// handler succeeds. A failing record is redelivered to the handler until it succeeds,
// since committing a later offset would skip it. Malformed records are committed so they
// cannot block the partition.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.log.Warn("fetch failed", "error", err)
			if !sleep(ctx, p.fetchBackoff) {
				return ctx.Err()
			}
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.log.Warn("dropping undecodable message", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", decodeErr)
			recordDecodeError(msg.Topic)
			p.commit(ctx, msg)
			continue
		}

		if err := p.handleUntilDone(ctx, event); err != nil {
			return err
		}

		if p.commit(ctx, msg) {
			recordProcessed(event)
		}
	}
}

// handleUntilDone retries the handler on the same record with exponential backoff. It
// only returns an error once ctx is done.
func (p *Processor) handleUntilDone(ctx context.Context, event Message) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.handlerBackoff
	eb.MaxInterval = p.handlerBackoffMax
	eb.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return p.handler.Handle(ctx, event)
	}, backoff.WithContext(eb, ctx), func(err error, wait time.Duration) {
		p.log.Error("handler failed, redelivering", "event_type", event.EventType, "user_id", event.UserID,
			"partition", event.Partition, "offset", event.Offset, "retry_in", wait, "error", err)
		recordHandlerError(event)
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.log.Warn("commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return false
	}
	return true
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) == 0 {
		return Message{}, errors.New("empty payload")
	}
	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	userID, _ := headerValue(msg, "user_id")
	schemaSubject, _ := headerValue(msg, "schema_subject")

	value := msg.Value
	schemaID := 0
	if value[0] == 0 {
		if len(value) < 5 {
			return Message{}, fmt.Errorf("invalid framed payload length: %d", len(value))
		}
		schemaID = int(binary.BigEndian.Uint32(value[1:5]))
		value = value[5:]
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		UserID:        string(userID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       json.RawMessage(append([]byte(nil), value...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
