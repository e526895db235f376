package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fitsched/internal/cycle"
	"fitsched/internal/notify"
)

// DefaultHandlers returns the map of built-in daemon handlers.
func DefaultHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		JobRunCycle:     handleRunCycle,
		JobImportGarmin: handleImportGarmin,
		JobWatchTick:    handleWatchTick,
	}
}

// handleRunCycle executes one composite orchestrator cycle.
func handleRunCycle(ctx context.Context, d *Daemon, job *Job) (any, error) {
	if d.RunCycle == nil {
		return nil, fmt.Errorf("daemon has no cycle runner wired")
	}

	summary, err := d.RunCycle(ctx)
	if errors.Is(err, cycle.ErrAlreadyRunning) {
		// A manual invocation holds the lock; the next tick retries.
		return map[string]any{"status": "already_running"}, nil
	}
	if err != nil {
		return nil, err
	}

	if summary.Created+summary.Rescheduled+summary.Cancelled > 0 {
		title, message := notify.FormatCycleComplete(summary)
		_ = d.Notifier.Send(title, message)
	}

	return map[string]any{
		"status":  "ok",
		"summary": summary.String(),
	}, nil
}

// handleImportGarmin pulls the trailing week of wearable data.
func handleImportGarmin(ctx context.Context, d *Daemon, job *Job) (any, error) {
	if d.RunImport == nil {
		return nil, fmt.Errorf("daemon has no importer wired")
	}
	res, err := d.RunImport(ctx, 7)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"samples_inserted":    res.SamplesInserted,
		"activities_inserted": res.ActivitiesInserted,
	}, nil
}

// handleWatchTick polls the goal and template configs; any change enqueues
// an immediate cycle so a target edit takes effect without waiting for the
// half-hour cadence.
func handleWatchTick(ctx context.Context, d *Daemon, job *Job) (any, error) {
	changes := []string{}
	now := time.Now()

	goalsChanged, err := watchFile(d.Store, d.Workspace.GoalsPath, "watch_goals_yml")
	if err != nil {
		return nil, fmt.Errorf("watch goals config: %w", err)
	}
	if goalsChanged {
		changes = append(changes, "goals config changed")
	}

	templatesChanged, err := watchFile(d.Store, d.Workspace.TemplatesPath, "watch_templates_yml")
	if err != nil {
		return nil, fmt.Errorf("watch templates config: %w", err)
	}
	if templatesChanged {
		changes = append(changes, "templates config changed")
	}

	if len(changes) > 0 {
		if _, _, err := d.Store.EnqueueUnique(JobRunCycle, now, map[string]any{
			"trigger": "config_changed",
			"changes": changes,
		}); err != nil {
			return nil, fmt.Errorf("enqueue run_cycle: %w", err)
		}
	}

	result := map[string]any{
		"checked_at":    now.Format(time.RFC3339),
		"changes_count": len(changes),
	}
	if len(changes) > 0 {
		result["status"] = "changes_detected"
		result["changes_detail"] = changes
	} else {
		result["status"] = "no_changes"
	}
	return result, nil
}
