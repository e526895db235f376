package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is the capability set the core needs from a calendar backend.
// Implementations must be safe for concurrent use.
type Client interface {
	// List returns events overlapping [start, end), ascending by start.
	List(ctx context.Context, start, end time.Time) ([]Event, error)
	// Upsert creates the event when ID is empty, otherwise updates it.
	// The returned event carries the assigned ID.
	Upsert(ctx context.Context, ev Event) (Event, error)
	// Delete removes an event by external id.
	Delete(ctx context.Context, id string) error
}

// MemClient is an in-memory calendar used by tests and offline operation.
type MemClient struct {
	mu     sync.Mutex
	events map[string]Event
}

// NewMemClient returns an empty in-memory calendar.
func NewMemClient() *MemClient {
	return &MemClient{events: make(map[string]Event)}
}

// Seed inserts events directly, assigning ids where absent.
func (c *MemClient) Seed(events ...Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		c.events[ev.ID] = ev
	}
}

// List implements Client.
func (c *MemClient) List(ctx context.Context, start, end time.Time) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Event
	for _, ev := range c.events {
		if ev.Start.Before(end) && start.Before(ev.End) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Upsert implements Client.
func (c *MemClient) Upsert(ctx context.Context, ev Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	} else if _, ok := c.events[ev.ID]; !ok {
		// Updating by id requires the event to exist.
		return Event{}, NewError(KindNotFound, "upsert", fmt.Errorf("event %s not found", ev.ID))
	}
	c.events[ev.ID] = ev
	return ev, nil
}

// Delete implements Client.
func (c *MemClient) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.events[id]; !ok {
		return NewError(KindNotFound, "delete", fmt.Errorf("event %s not found", id))
	}
	delete(c.events, id)
	return nil
}

// Snapshot returns all events ascending by start, for assertions and mirroring.
func (c *MemClient) Snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
