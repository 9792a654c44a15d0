package repository

import (
	"context"
	"fmt"
	"time"
)

func (r *Repository) AddOutboxEvent(ctx context.Context, e *OutboxEvent) error {
	query := `INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.q.ExecContext(ctx, query, e.ID, e.AggregateID, e.EventType, string(e.Payload), e.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL ORDER BY created_at LIMIT $1`

	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var (
			e       OutboxEvent
			payload string
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = []byte(payload)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id string) error {
	query := `UPDATE outbox_events SET processed_at = $1 WHERE id = $2`
	if _, err := r.q.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark outbox event %s processed: %w", id, err)
	}
	return nil
}
