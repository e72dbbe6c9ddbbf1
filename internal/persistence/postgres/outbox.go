package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/events"
)

// insertOutbox records an event in the same transaction as the change it describes.
// Creation events are deduplicated per aggregate; progress events are unique per update.
func insertOutbox(ctx context.Context, tx pgx.Tx, event domain.Event) error {
	route, ok := events.RouteFor(event.Type)
	if !ok {
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Type, err)
	}

	dedupeKey := fmt.Sprintf("%s:%s", event.AggregateID, event.Type)
	if event.Type == events.TypeSessionProgressed {
		dedupeKey += ":" + event.ID
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		event.UserID,
		aggregateType(event.Type),
		event.AggregateID,
		event.Type,
		route.Topic,
		route.SchemaSubject,
		event.UserID,
		body,
		dedupeKey,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

func aggregateType(eventType string) string {
	kind, _, _ := strings.Cut(eventType, ".")
	return kind
}
