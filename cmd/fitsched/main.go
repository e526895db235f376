package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fitsched/internal/audit"
	"fitsched/internal/budget"
	"fitsched/internal/calendar"
	"fitsched/internal/config"
	"fitsched/internal/cycle"
	"fitsched/internal/daemon"
	"fitsched/internal/garmin"
	"fitsched/internal/genai"
	"fitsched/internal/planner"
	"fitsched/internal/reconcile"
	"fitsched/internal/store"
	"fitsched/internal/workspace"
)

const appName = "fitsched"

// Exit codes.
const (
	exitOK        = 0
	exitUserError = 1
	exitTransient = 2
	exitAborted   = 3
)

func main() {
	_ = godotenv.Load(".env")

	flag.String("workspace", "", "Path to workspace root")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: autonomous fitness-workout scheduler\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [--workspace DIR] <command> [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init             Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  plan             Plan workouts over the forward horizon")
		fmt.Fprintln(os.Stderr, "  reconcile        Reconcile planned vs performed workouts")
		fmt.Fprintln(os.Stderr, "  import-garmin    Import wearable health data")
		fmt.Fprintln(os.Stderr, "  import-calendar  Mirror the calendar into local state")
		fmt.Fprintln(os.Stderr, "  run-all          Composite cycle: ingest, reconcile, plan")
		fmt.Fprintln(os.Stderr, "  status           Show week progress vs targets")
		fmt.Fprintln(os.Stderr, "  daemon           Manage the unattended daemon")
		fmt.Fprintln(os.Stderr, "  help             Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUserError)
	}
	if workspacePath == "" {
		workspacePath = os.Getenv("FITSCHED_WORKSPACE")
	}
	if workspacePath == "" {
		workspacePath = "."
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	var cmdErr error
	switch args[0] {
	case "init":
		cmdErr = runInit(args[1:], workspacePath)
	case "plan":
		cmdErr = runPlan(args[1:], workspacePath)
	case "reconcile":
		cmdErr = runReconcile(args[1:], workspacePath)
	case "import-garmin":
		cmdErr = runImportGarmin(args[1:], workspacePath)
	case "import-calendar":
		cmdErr = runImportCalendar(args[1:], workspacePath)
	case "run-all":
		cmdErr = runAll(args[1:], workspacePath)
	case "status":
		cmdErr = runStatus(args[1:], workspacePath)
	case "daemon":
		cmdErr = runDaemon(args[1:], workspacePath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(exitUserError)
	}

	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, cmdErr)
		os.Exit(exitCodeFor(cmdErr))
	}
}

// exitCodeFor maps an error to the documented exit codes: 1 user/config,
// 2 transient external, 3 deadline/cancellation.
func exitCodeFor(err error) int {
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		return exitUserError
	}
	if errors.Is(err, cycle.ErrAborted) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return exitAborted
	}
	if errors.Is(err, cycle.ErrAlreadyRunning) {
		return exitTransient
	}
	var cerr *calendar.Error
	if errors.As(err, &cerr) {
		switch cerr.Kind {
		case calendar.KindTransient:
			return exitTransient
		default:
			return exitUserError
		}
	}
	if os.IsNotExist(err) {
		return exitUserError
	}
	return exitUserError
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--workspace" || arg == "-workspace":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--workspace="):
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
		case strings.HasPrefix(arg, "-workspace="):
			workspacePath = strings.TrimPrefix(arg, "-workspace=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return workspacePath, remaining, nil
}

// env bundles the open collaborators behind one cleanup call.
type env struct {
	WS        *workspace.Workspace
	Goals     *config.Goals
	Templates *config.Templates
	Store     *store.Store
	Audit     *audit.Store
	Logger    *zap.Logger
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.Audit != nil {
		_ = e.Audit.Close()
	}
	if e.Logger != nil {
		_ = e.Logger.Sync()
	}
}

func openEnv(workspacePath string) (*env, error) {
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return nil, err
	}
	goals, err := config.LoadGoals(ws.GoalsPath)
	if err != nil {
		return nil, err
	}
	templates, err := config.LoadTemplates(ws.TemplatesPath)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ws.StateDBPath)
	if err != nil {
		return nil, err
	}
	auditStore, err := audit.Open(ws.AuditDBPath)
	if err != nil {
		st.Close()
		return nil, err
	}
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return &env{
		WS:        ws,
		Goals:     goals,
		Templates: templates,
		Store:     st,
		Audit:     auditStore,
		Logger:    logger,
	}, nil
}

func (e *env) orchestrator(days int, dryRun bool) *cycle.Orchestrator {
	return &cycle.Orchestrator{
		Deps: cycle.Deps{
			Goals:     e.Goals,
			Templates: e.Templates,
			Calendar:  e.Store.Calendar(),
			LM:        genai.NewHTTPClient(),
			Store:     e.Store,
			Audit:     e.Audit,
			Wearable:  garmin.NewOfflineConnector(),
			Now:       time.Now,
			Logger:    e.Logger,
			LockPath:  e.WS.LockPath,
			DryRun:    dryRun,
		},
		HorizonDays: days,
	}
}

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	root, err := workspace.ResolveRoot(workspacePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}
	if err := writeFileIfMissing(ws.GoalsPath, starterGoalsYAML); err != nil {
		return err
	}
	if err := writeFileIfMissing(ws.TemplatesPath, starterTemplatesYAML); err != nil {
		return err
	}

	fmt.Printf("Initialized workspace at %s\n", ws.Root)
	fmt.Printf("Edit %s, then run: %s run-all --workspace %s\n", ws.GoalsPath, appName, ws.Root)
	return nil
}

func runPlan(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	days := fs.Int("days", 0, "Forward horizon in days (default from config)")
	dryRun := fs.Bool("dry-run", false, "Suppress calendar writes; audit entries still recorded")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(workspacePath)
	if err != nil {
		return err
	}
	defer e.Close()

	summary, err := runPlanOnly(e, *days, *dryRun)
	if err != nil {
		return err
	}
	fmt.Println(summary)
	return nil
}

func runPlanOnly(e *env, days int, dryRun bool) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.Goals.CycleDeadline)
	defer cancel()

	view := calendar.NewView(e.Store.Calendar(), calendar.Options{
		MaxMutations: e.Goals.MaxMutationsPerCycle,
		DryRun:       dryRun,
	})
	pl := plannerFor(e, view)
	res, err := pl.PlanHorizon(ctx, days)
	if err != nil {
		return "", err
	}
	if dryRun {
		for _, change := range view.Changes() {
			fmt.Printf("[dry-run] %s:\n%s\n", change.Op, change.Diff)
		}
	}
	return fmt.Sprintf("planned: created=%d updated=%d deleted=%d skipped=%d degraded=%d buffered=%d dry_run=%t",
		res.Created, res.Updated, res.Deleted, res.Skipped, res.Degraded, res.Buffered, dryRun), nil
}

func runReconcile(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	days := fs.Int("days", 7, "Trailing window in days")
	dryRun := fs.Bool("dry-run", false, "Suppress calendar writes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(workspacePath)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), e.Goals.CycleDeadline)
	defer cancel()

	view := calendar.NewView(e.Store.Calendar(), calendar.Options{
		MaxMutations: e.Goals.MaxMutationsPerCycle,
		DryRun:       *dryRun,
	})
	rec := reconcilerFor(e, view)
	res, err := rec.Run(ctx, *days)
	if err != nil {
		return err
	}
	fmt.Printf("reconciled: completed=%d missed=%d rescheduled=%d cancelled=%d dry_run=%t\n",
		res.Completed, res.Missed, res.Rescheduled, res.Cancelled, *dryRun)
	return nil
}

func runImportGarmin(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("import-garmin", flag.ContinueOnError)
	days := fs.Int("days", 7, "Trailing days to import")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(workspacePath)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), e.Goals.CycleDeadline)
	defer cancel()

	importer := &garmin.Importer{
		Connector: garmin.NewOfflineConnector(),
		Store:     e.Store,
		Audit:     e.Audit,
		Now:       time.Now,
	}
	res, err := importer.Import(ctx, *days)
	if err != nil {
		return err
	}
	fmt.Printf("imported: samples=%d (skipped %d) activities=%d (skipped %d)\n",
		res.SamplesInserted, res.SamplesSkipped, res.ActivitiesInserted, res.ActivitiesSkipped)
	return nil
}

func runImportCalendar(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("import-calendar", flag.ContinueOnError)
	past := fs.Int("past", 7, "Trailing days to mirror")
	future := fs.Int("future", 14, "Forward days to mirror")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(workspacePath)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), e.Goals.CycleDeadline)
	defer cancel()

	view := calendar.NewView(e.Store.Calendar(), calendar.Options{})
	now := time.Now().In(e.Goals.Location)
	events, err := view.ListRange(ctx, now.AddDate(0, 0, -*past), now.AddDate(0, 0, *future))
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := e.Store.MirrorEvent(ctx, ev.ID, ev.Summary, ev.Description, ev.Start, ev.End, ev.Tags, string(ev.Origin())); err != nil {
			return err
		}
	}
	fmt.Printf("mirrored %d events\n", len(events))
	return nil
}

func runAll(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("run-all", flag.ContinueOnError)
	days := fs.Int("days", 0, "Forward horizon in days (default from config)")
	dryRun := fs.Bool("dry-run", false, "Suppress calendar writes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(workspacePath)
	if err != nil {
		return err
	}
	defer e.Close()

	orch := e.orchestrator(*days, *dryRun)
	summary, err := orch.Run(context.Background())
	if summary != nil {
		fmt.Println(summary)
	}
	return err
}

func runStatus(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(workspacePath)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	loc := e.Goals.Location
	now := time.Now().In(loc)
	weekStart := budget.WeekStart(now, loc)
	weekEnd := weekStart.AddDate(0, 0, 7)

	view := calendar.NewView(e.Store.Calendar(), calendar.Options{})
	events, err := view.ListRange(ctx, weekStart, weekEnd)
	if err != nil {
		return err
	}
	activities, err := e.Store.ActivitiesIn(ctx, weekStart, weekEnd)
	if err != nil {
		return err
	}

	tally := budget.CountWeek(events, activities, weekStart, now)
	remaining := budget.Remaining(e.Goals, tally)

	fmt.Printf("Week of %s (%s)\n", weekStart.Format("2006-01-02"), e.Goals.TimezoneName)
	for _, d := range e.Goals.Priority {
		target := e.Goals.Target(d)
		if target == 0 {
			continue
		}
		fmt.Printf("  %-9s done %d, scheduled %d, target %d, remaining %d\n",
			d, tally.Completed[d], tally.Scheduled[d], target, remaining[d])
	}
	return nil
}

func runDaemon(args []string, workspacePath string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s daemon run|status|install|uninstall", appName)
	}
	switch args[0] {
	case "run":
		return runDaemonRun(args[1:], workspacePath)
	case "status":
		return runDaemonStatus(args[1:], workspacePath)
	case "install":
		return runDaemonInstall(args[1:], workspacePath)
	case "uninstall":
		return runDaemonUninstall(args[1:], workspacePath)
	default:
		return fmt.Errorf("unknown daemon subcommand: %s", args[0])
	}
}

func runDaemonRun(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("daemon run", flag.ContinueOnError)
	notifications := fs.Bool("notify", false, "Send desktop notifications")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(workspacePath)
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := daemon.New(daemon.Config{
		Workspace:     e.WS,
		StorePath:     e.WS.DaemonDBPath,
		TimeZone:      e.Goals.TimezoneName,
		Logger:        e.Logger,
		Notifications: *notifications,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	d.RunCycle = func(ctx context.Context) (*cycle.Summary, error) {
		// Reload config each cycle so goal edits take effect unattended.
		fresh, err := openEnv(workspacePath)
		if err != nil {
			return nil, err
		}
		defer fresh.Close()
		return fresh.orchestrator(0, false).Run(ctx)
	}
	d.RunImport = func(ctx context.Context, days int) (*garmin.ImportResult, error) {
		importer := &garmin.Importer{
			Connector: garmin.NewOfflineConnector(),
			Store:     e.Store,
			Audit:     e.Audit,
			Now:       time.Now,
		}
		return importer.Import(ctx, days)
	}

	return d.Run(context.Background())
}

func runDaemonStatus(args []string, workspacePath string) error {
	e, err := openEnv(workspacePath)
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := daemon.Open(e.WS.DaemonDBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	jobs, err := st.ListJobs(10)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no daemon jobs recorded")
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%-40s %-12s %s\n", job.ID, job.Status, job.ScheduledAt.Format(time.RFC3339))
	}
	return nil
}

func runDaemonInstall(args []string, workspacePath string) error {
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return err
	}
	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve binary path: %w", err)
	}
	if err := daemon.Install(ws, binaryPath); err != nil {
		return err
	}
	fmt.Printf("Installed LaunchAgent %s\n", daemon.PlistLabel(ws.Root))
	return nil
}

func runDaemonUninstall(args []string, workspacePath string) error {
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return err
	}
	if err := daemon.Uninstall(ws); err != nil {
		return err
	}
	fmt.Printf("Removed LaunchAgent %s\n", daemon.PlistLabel(ws.Root))
	return nil
}

func plannerFor(e *env, view *calendar.View) *planner.Planner {
	return &planner.Planner{
		Goals:     e.Goals,
		Templates: e.Templates,
		View:      view,
		Health:    e.Store,
		Gen: &genai.Generator{
			Client: genai.NewHTTPClient(),
			Models: e.Goals.Models,
		},
		Audit:       e.Audit,
		Now:         time.Now,
		Concurrency: e.Goals.LMConcurrency,
	}
}

func reconcilerFor(e *env, view *calendar.View) *reconcile.Reconciler {
	return &reconcile.Reconciler{
		Goals:      e.Goals,
		View:       view,
		Health:     e.Store,
		Audit:      e.Audit,
		Deviations: e.Store,
		Now:        time.Now,
	}
}

func writeFileIfMissing(path string, contents string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
