package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fitsched/internal/cycle"
	"fitsched/internal/garmin"
	"fitsched/internal/notify"
	"fitsched/internal/workspace"
)

// HandlerFunc is the function signature for job handlers.
type HandlerFunc func(ctx context.Context, d *Daemon, job *Job) (any, error)

// Daemon is a long-running process that claims and executes jobs on the
// unattended planning cadence.
type Daemon struct {
	Workspace    *workspace.Workspace
	Store        *Store
	Scheduler    *Scheduler
	Handlers     map[string]HandlerFunc
	Logger       *zap.Logger
	Notifier     *notify.Notifier
	LeaseOwner   string
	LeaseFor     time.Duration
	PollInterval time.Duration

	// RunCycle executes one full orchestrator cycle; wired by the CLI.
	RunCycle func(ctx context.Context) (*cycle.Summary, error)
	// RunImport executes one wearable ingestion; wired by the CLI.
	RunImport func(ctx context.Context, days int) (*garmin.ImportResult, error)
}

// Config holds daemon configuration.
type Config struct {
	Workspace     *workspace.Workspace
	StorePath     string
	TimeZone      string
	Logger        *zap.Logger
	LeaseOwner    string
	LeaseFor      time.Duration
	PollInterval  time.Duration
	Notifications bool
}

// New creates a new daemon with the default handlers.
func New(cfg Config) (*Daemon, error) {
	store, err := Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	scheduler, err := NewScheduler(store, cfg.TimeZone)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	if cfg.LeaseOwner == "" {
		hostname, _ := os.Hostname()
		cfg.LeaseOwner = fmt.Sprintf("daemon-%s-%d", hostname, os.Getpid())
	}
	if cfg.LeaseFor == 0 {
		cfg.LeaseFor = 15 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Daemon{
		Workspace:    cfg.Workspace,
		Store:        store,
		Scheduler:    scheduler,
		Handlers:     DefaultHandlers(),
		Logger:       logger,
		Notifier:     &notify.Notifier{Enabled: cfg.Notifications},
		LeaseOwner:   cfg.LeaseOwner,
		LeaseFor:     cfg.LeaseFor,
		PollInterval: cfg.PollInterval,
	}, nil
}

// RegisterHandler registers a handler for a specific job type.
func (d *Daemon) RegisterHandler(jobType string, handler HandlerFunc) {
	d.Handlers[jobType] = handler
}

// Run starts the daemon run loop until the context is cancelled or a signal
// arrives.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	d.Logger.Info("daemon started",
		zap.String("workspace", d.Workspace.Root),
		zap.String("lease_owner", d.LeaseOwner),
		zap.Duration("poll_interval", d.PollInterval),
	)

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Logger.Info("daemon stopped", zap.String("workspace", d.Workspace.Root))
			return nil

		case <-ticker.C:
			if err := d.Scheduler.Tick(time.Now()); err != nil {
				d.Logger.Warn("scheduler tick failed", zap.Error(err))
			}
			if err := d.claimAndExecute(ctx); err != nil {
				d.Logger.Warn("job execution failed", zap.Error(err))
			}
		}
	}
}

func (d *Daemon) claimAndExecute(ctx context.Context) error {
	job, err := d.Store.ClaimNext(time.Now(), d.LeaseOwner, d.LeaseFor)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return nil
	}

	if job.Type != JobWatchTick {
		d.Logger.Info("job started", zap.String("job_id", job.ID), zap.String("job_type", job.Type))
	}

	handler, ok := d.Handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type: %s", job.Type)
		_ = d.Store.Fail(job.ID, err)
		return err
	}

	result, execErr := handler(ctx, d, job)
	if execErr != nil {
		_ = d.Store.Fail(job.ID, execErr)
		d.Logger.Warn("job failed", zap.String("job_id", job.ID), zap.Error(execErr))
		return execErr
	}

	if err := d.Store.Succeed(job.ID, result); err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	if job.Type != JobWatchTick {
		d.Logger.Info("job succeeded", zap.String("job_id", job.ID), zap.String("job_type", job.Type))
	}
	return nil
}

// Close closes the daemon's store.
func (d *Daemon) Close() error {
	return d.Store.Close()
}
