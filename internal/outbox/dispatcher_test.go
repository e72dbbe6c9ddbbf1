package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/events"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (s *stubRegistry) EnsureSchema(_ context.Context, subject string, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, subject)
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}

func message(id int64, eventType string) Message {
	route, _ := events.RouteFor(eventType)
	return Message{
		EventID:       id,
		UserID:        "user-1",
		AggregateType: "session",
		AggregateID:   "agg-1",
		EventType:     eventType,
		Topic:         route.Topic,
		SchemaSubject: route.SchemaSubject,
		PartitionKey:  "user-1",
		Payload:       json.RawMessage(`{"session_id":"agg-1"}`),
	}
}

func TestEncodeWireFormatRoundTrip(t *testing.T) {
	frame := EncodeWireFormat(258, []byte(`{"a":1}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2}, frame[:5])

	id, payload, err := DecodeWireFormat(frame)
	require.NoError(t, err)
	require.Equal(t, 258, id)
	require.JSONEq(t, `{"a":1}`, string(payload))

	_, _, err = DecodeWireFormat([]byte(`{}`))
	require.Error(t, err)
}

func TestDeliverGroupsByTopicAndCachesSchemas(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, nil, time.Second, 10)

	batch := []Message{
		message(1, events.TypeActivityRecorded),
		message(2, events.TypeSessionRecorded),
		message(3, events.TypeActivityRecorded),
		message(4, events.TypeSessionProgressed),
	}
	require.NoError(t, d.deliver(context.Background(), batch))

	require.Len(t, producer.writes, 2)
	require.Equal(t, events.TopicCodingActivity, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, events.TopicCodingSessions, producer.writes[1].topic)
	require.Len(t, producer.writes[1].messages, 2)

	require.ElementsMatch(t, []string{
		"coding_activity_events-value",
		"coding_session_events-value",
		"coding_session_progressed-value",
	}, registry.calls)

	record := producer.writes[1].messages[1]
	require.Equal(t, []byte("user-1"), record.Key)
	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeSessionProgressed, headers[HeaderEventType])
	require.Equal(t, "user-1", headers[HeaderUserID])
	id, _, err := DecodeWireFormat(record.Value)
	require.NoError(t, err)
	require.Equal(t, 42, id)

	require.NoError(t, d.deliver(context.Background(), batch[:1]))
	require.Len(t, registry.calls, 3)
}

func TestDeliverFailures(t *testing.T) {
	d := NewDispatcher(nil, &stubProducer{}, &stubRegistry{id: 1}, nil, time.Second, 10)
	err := d.deliver(context.Background(), []Message{message(1, "activity.unknown")})
	require.ErrorContains(t, err, "no schema metadata for event_type=activity.unknown")

	d = NewDispatcher(nil, &stubProducer{}, &stubRegistry{err: errors.New("registry down")}, nil, time.Second, 10)
	require.Error(t, d.deliver(context.Background(), []Message{message(1, events.TypeActivityRecorded)}))

	d = NewDispatcher(nil, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 1}, nil, time.Second, 10)
	require.ErrorContains(t, d.deliver(context.Background(), []Message{message(1, events.TypeActivityRecorded)}), "broker down")
}

func TestBackoffDelay(t *testing.T) {
	m := NewDLQManager(nil, nil, 0, 0)
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(7))
	require.Equal(t, time.Hour, m.backoffDelay(40))
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/known-value/versions/latest":
			_, _ = w.Write([]byte(`{"id": 7}`))
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/fresh-value/versions":
			var body struct {
				SchemaType string `json:"schemaType"`
				Schema     string `json:"schema"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "JSON", body.SchemaType)
			registered = body.Schema
			_, _ = w.Write([]byte(`{"id": 11}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "known-value", sessionRecordedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)

	id, err = client.EnsureSchema(context.Background(), "fresh-value", sessionRecordedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.Equal(t, sessionRecordedSchema, registered)
}

func TestSchemasAreValidJSON(t *testing.T) {
	for eventType, schema := range schemaCatalog {
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(schema), &doc), eventType)
		require.Equal(t, "object", doc["type"])
	}
}
