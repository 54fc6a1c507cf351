// Package schedule runs the periodic tick started by `sitebak cron`: a
// scheduled backup when one is due, then a drain of the job queue.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mcdonaldj/sitebak/internal/backup"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/jobs"
	"github.com/mcdonaldj/sitebak/internal/notice"
)

// Tick modes.
const (
	ModeBackup  = "backup"
	ModeRestore = "restore"
)

// LastRunMarker names the state marker holding the last scheduled backup.
const LastRunMarker = "schedule.last_run"

// Backuper creates backups.
type Backuper interface {
	Create(ctx context.Context, opts backup.Options) (backup.Result, error)
}

// Drainer runs the queued jobs.
type Drainer interface {
	RunAll(ctx context.Context) (jobs.Summary, error)
}

// Notifier surfaces messages to the user.
type Notifier interface {
	Add(level notice.Level, message string) error
}

// Markers persists named timestamps between invocations.
type Markers interface {
	GetTime(name string) (time.Time, error)
	SetTime(name string, t time.Time) error
}

// Result describes one tick.
type Result struct {
	Mode      string
	Due       bool
	NextRun   time.Time
	Backup    *backup.Result
	BackupErr error
	Jobs      jobs.Summary
}

// Ticker runs ticks.
type Ticker struct {
	schedule cron.Schedule
	backups  Backuper
	queue    Drainer
	notices  Notifier
	markers  Markers
	log      zerolog.Logger
}

// ParseSchedule parses a five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(strings.TrimSpace(expr))
}

// NextRunAt returns the first fire time of expr after from.
func NextRunAt(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// New creates a Ticker for the cron expression expr.
func New(expr string, backups Backuper, queue Drainer, notices Notifier, markers Markers, log zerolog.Logger) (*Ticker, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", expr, err)
	}
	return &Ticker{
		schedule: sched,
		backups:  backups,
		queue:    queue,
		notices:  notices,
		markers:  markers,
		log:      log.With().Str("component", "schedule").Logger(),
	}, nil
}

// Tick runs one tick at now. In backup mode a backup runs when the
// schedule fired since the last scheduled backup; the first tick only
// records the marker. Both modes then drain the job queue.
func (t *Ticker) Tick(ctx context.Context, mode string, now time.Time) (Result, error) {
	res := Result{Mode: mode}

	switch mode {
	case ModeBackup:
		if err := t.backupIfDue(ctx, now, &res); err != nil {
			return res, err
		}
	case ModeRestore:
	default:
		return res, fmt.Errorf("invalid mode %q", mode)
	}

	sum, err := t.queue.RunAll(ctx)
	res.Jobs = sum
	if err != nil {
		return res, fmt.Errorf("running jobs: %w", err)
	}
	t.log.Info().
		Str("mode", mode).
		Int("completed", sum.Completed).
		Int("retrying", sum.Retrying).
		Int("dropped", sum.Dropped).
		Msg("tick finished")
	return res, nil
}

func (t *Ticker) backupIfDue(ctx context.Context, now time.Time, res *Result) error {
	last, err := t.markers.GetTime(LastRunMarker)
	if err != nil {
		return fmt.Errorf("reading last run: %w", err)
	}
	if last.IsZero() {
		res.NextRun = t.schedule.Next(now)
		return t.markers.SetTime(LastRunMarker, now)
	}

	due := t.schedule.Next(last)
	if due.After(now) {
		res.NextRun = due
		return nil
	}
	res.Due = true

	// The marker moves first so a failing backup is not retried every tick.
	if err := t.markers.SetTime(LastRunMarker, now); err != nil {
		return fmt.Errorf("recording last run: %w", err)
	}
	res.NextRun = t.schedule.Next(now)

	b, err := t.backups.Create(ctx, backup.Options{Trigger: catalog.TriggerScheduled})
	if err != nil {
		res.BackupErr = err
		t.log.Error().Err(err).Msg("scheduled backup failed")
		if nerr := t.notices.Add(notice.LevelError, "Scheduled backup failed: "+err.Error()); nerr != nil {
			t.log.Warn().Err(nerr).Msg("adding notice")
		}
		return nil
	}
	res.Backup = &b
	return nil
}
