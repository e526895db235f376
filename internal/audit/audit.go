package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Action types recorded by the planner and reconciler.
const (
	TypePlan             = "plan"
	TypeReschedule       = "reschedule"
	TypeCancel           = "cancel"
	TypeMarkCompleted    = "mark_completed"
	TypeMissed           = "missed"
	TypeSkipDuplicate    = "skip_duplicate"
	TypeSkipTargetMet    = "skip_target_met"
	TypeSkipNoSlot       = "skip_no_slot"
	TypeCycleAborted     = "cycle_aborted"
	TypePermissionDenied = "permission_denied"
)

// Action is an immutable record of one planner or reconciler decision.
type Action struct {
	ID          string
	Timestamp   time.Time
	Agent       string
	Type        string
	Confidence  float64
	Before      any
	After       any
	Reasoning   string
	DataSources []string
	Executed    bool
	Degraded    bool
}

// Appender is the capability the core components need from the audit store.
type Appender interface {
	Append(ctx context.Context, a Action) error
}

// Store writes audit actions to a SQLite-backed log.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Open opens or creates the audit database at path.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve audit db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure audit db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	s := &Store{DBPath: absPath, db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_actions (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			agent TEXT NOT NULL,
			action_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			before_json TEXT,
			after_json TEXT,
			reasoning TEXT NOT NULL,
			data_sources TEXT NOT NULL,
			executed INTEGER NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Append persists one action. Append is called after the corresponding
// calendar mutation succeeds, never before.
func (s *Store) Append(ctx context.Context, a Action) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	beforeJSON, err := marshalState(a.Before)
	if err != nil {
		return fmt.Errorf("marshal before state: %w", err)
	}
	afterJSON, err := marshalState(a.After)
	if err != nil {
		return fmt.Errorf("marshal after state: %w", err)
	}
	sourcesJSON, err := json.Marshal(a.DataSources)
	if err != nil {
		return fmt.Errorf("marshal data sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_actions
			(id, ts, agent, action_type, confidence, before_json, after_json, reasoning, data_sources, executed, degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.Timestamp.UTC().Format(time.RFC3339Nano),
		a.Agent,
		a.Type,
		a.Confidence,
		beforeJSON,
		afterJSON,
		a.Reasoning,
		string(sourcesJSON),
		boolInt(a.Executed),
		boolInt(a.Degraded),
	)
	if err != nil {
		return fmt.Errorf("insert audit action: %w", err)
	}
	return nil
}

// ListSince returns actions with ts >= since, ascending by insertion order.
func (s *Store) ListSince(ctx context.Context, since time.Time) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, agent, action_type, confidence, before_json, after_json, reasoning, data_sources, executed, degraded
		FROM audit_actions
		WHERE ts >= ?
		ORDER BY ts ASC, rowid ASC
	`, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query audit actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		var ts, sources string
		var before, after sql.NullString
		var executed, degraded int
		if err := rows.Scan(&a.ID, &ts, &a.Agent, &a.Type, &a.Confidence, &before, &after, &a.Reasoning, &sources, &executed, &degraded); err != nil {
			return nil, fmt.Errorf("scan audit action: %w", err)
		}
		if a.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		if before.Valid && before.String != "" {
			a.Before = json.RawMessage(before.String)
		}
		if after.Valid && after.String != "" {
			a.After = json.RawMessage(after.String)
		}
		if err := json.Unmarshal([]byte(sources), &a.DataSources); err != nil {
			return nil, fmt.Errorf("parse audit data sources: %w", err)
		}
		a.Executed = executed != 0
		a.Degraded = degraded != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalState(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
