package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fitsched/internal/calendar"
)

// CalendarClient serves the calendar.Client capability from the local
// calendar_events table. It stands in for the remote calendar in offline
// operation and in the integration tests; a real deployment implements
// calendar.Client against the remote API instead.
type CalendarClient struct {
	store *Store
}

// Calendar returns a calendar.Client view over the store.
func (s *Store) Calendar() *CalendarClient {
	return &CalendarClient{store: s}
}

// List implements calendar.Client.
func (c *CalendarClient) List(ctx context.Context, start, end time.Time) ([]calendar.Event, error) {
	// Events overlapping the window, not only those starting inside it.
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT external_id, summary, description, start_at, end_at, tags
		FROM calendar_events
		WHERE start_at < ? AND end_at > ?
		ORDER BY start_at ASC, external_id ASC
	`, end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, calendar.NewError(calendar.KindTransient, "list", err)
	}
	defer rows.Close()

	var out []calendar.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, calendar.NewError(calendar.KindPermanent, "list", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, calendar.NewError(calendar.KindTransient, "list", err)
	}
	return out, nil
}

// Upsert implements calendar.Client.
func (c *CalendarClient) Upsert(ctx context.Context, ev calendar.Event) (calendar.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	} else {
		var exists int
		err := c.store.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM calendar_events WHERE external_id = ?`, ev.ID).Scan(&exists)
		if err != nil {
			return calendar.Event{}, calendar.NewError(calendar.KindTransient, "upsert", err)
		}
		if exists == 0 {
			return calendar.Event{}, calendar.NewError(calendar.KindNotFound, "upsert",
				fmt.Errorf("event %s not found", ev.ID))
		}
	}
	origin := string(ev.Origin())
	if err := c.store.MirrorEvent(ctx, ev.ID, ev.Summary, ev.Description, ev.Start, ev.End, ev.Tags, origin); err != nil {
		return calendar.Event{}, calendar.NewError(calendar.KindTransient, "upsert", err)
	}
	return ev, nil
}

// Delete implements calendar.Client.
func (c *CalendarClient) Delete(ctx context.Context, id string) error {
	res, err := c.store.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE external_id = ?`, id)
	if err != nil {
		return calendar.NewError(calendar.KindTransient, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return calendar.NewError(calendar.KindTransient, "delete", err)
	}
	if n == 0 {
		return calendar.NewError(calendar.KindNotFound, "delete", fmt.Errorf("event %s not found", id))
	}
	return nil
}

func scanEvent(rows rowScanner) (calendar.Event, error) {
	var ev calendar.Event
	var start, end string
	var description, tags *string
	if err := rows.Scan(&ev.ID, &ev.Summary, &description, &start, &end, &tags); err != nil {
		return calendar.Event{}, err
	}
	if description != nil {
		ev.Description = *description
	}
	var err error
	if ev.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return calendar.Event{}, fmt.Errorf("parse event start: %w", err)
	}
	if ev.End, err = time.Parse(time.RFC3339, end); err != nil {
		return calendar.Event{}, fmt.Errorf("parse event end: %w", err)
	}
	if tags != nil && *tags != "" {
		if err := unmarshalTags(*tags, &ev.Tags); err != nil {
			return calendar.Event{}, fmt.Errorf("parse event tags: %w", err)
		}
	}
	return ev, nil
}
