package integration_test

import (
	"strings"
	"testing"

	"fitsched/integration/harness"
)

// smokeGoals points the model chain at an unroutable endpoint so planning
// exercises the degraded template fallback offline.
const smokeGoals = `
weekly_structure:
  swim_sessions: 0
  bike_sessions: 0
  run_sessions: 2
  strength_sessions: 3
preferences:
  preferred_workout_time: flexible
  morning_hours: [6, 9]
  evening_hours: [17, 20]
  user_timezone: America/Chicago
safety:
  max_mutations_per_cycle: 8
planner:
  horizon_days: 2
llm:
  models:
    - name: smoke
      provider: openai
      base_url: http://127.0.0.1:1
      timeout_seconds: 1
`

func initSmokeWorkspace(t *testing.T, binPath string) string {
	t.Helper()
	root := t.TempDir()
	if _, stderr, code := harness.Run(t, binPath, root, []string{"init", "--workspace", root}); code != 0 {
		t.Fatalf("init failed with code %d: %s", code, stderr)
	}
	harness.WriteFile(t, root, "config/goals.yml", smokeGoals)
	return root
}

func TestImportAndStatusSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	root := initSmokeWorkspace(t, binPath)

	stdout, stderr, code := harness.Run(t, binPath, root, []string{"import-garmin", "--workspace", root, "--days", "7"})
	if code != 0 {
		t.Fatalf("import-garmin exit code %d\nstderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "imported:") {
		t.Fatalf("unexpected import output:\n%s", stdout)
	}

	stdout, stderr, code = harness.Run(t, binPath, root, []string{"status", "--workspace", root})
	if code != 0 {
		t.Fatalf("status exit code %d\nstderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "Week of") {
		t.Fatalf("unexpected status output:\n%s", stdout)
	}
}

func TestPlanDryRunSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	root := initSmokeWorkspace(t, binPath)

	stdout, stderr, code := harness.Run(t, binPath, root, []string{"plan", "--workspace", root, "--dry-run"})
	if code != 0 {
		t.Fatalf("plan --dry-run exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "dry_run=true") {
		t.Fatalf("unexpected plan output:\n%s", stdout)
	}
	// Depending on the hour, today may be skipped for lack of a slot, but at
	// least tomorrow always plans, and offline it always degrades.
	if strings.Contains(stdout, "degraded=0") {
		t.Fatalf("offline planning should degrade:\n%s", stdout)
	}
}

// run-all against the unroutable model endpoint still exits 0: degraded mode
// is a success.
func TestRunAllDegradedSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	root := initSmokeWorkspace(t, binPath)

	stdout, stderr, code := harness.Run(t, binPath, root, []string{"run-all", "--workspace", root})
	if code != 0 {
		t.Fatalf("run-all exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if strings.Contains(stdout, "created=0") {
		t.Fatalf("expected at least one created event:\n%s", stdout)
	}

	// A second run is idempotent.
	stdout, _, code = harness.Run(t, binPath, root, []string{"run-all", "--workspace", root})
	if code != 0 {
		t.Fatalf("second run-all exit code %d", code)
	}
	if !strings.Contains(stdout, "created=0") {
		t.Fatalf("second run must create nothing:\n%s", stdout)
	}
}
