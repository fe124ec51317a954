// Package scheduler triggers notification runs on a cron schedule and
// records each outcome for the status API and metrics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/albapepper/stock-notifier/internal/api/handler"
	"github.com/albapepper/stock-notifier/internal/metrics"
	"github.com/albapepper/stock-notifier/internal/notifications"
	"github.com/albapepper/stock-notifier/internal/runlock"
)

// Runner performs one run. *app.App implements it.
type Runner interface {
	Run(ctx context.Context, now time.Time, dryRun bool) (*notifications.Summary, error)
}

// Job is the scheduled unit of work.
type Job struct {
	runner   Runner
	history  *handler.RunHistory
	recorder *metrics.Recorder
	dryRun   bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewJob creates a Job. recorder may be nil.
func NewJob(runner Runner, history *handler.RunHistory, recorder *metrics.Recorder, dryRun bool, logger *slog.Logger) *Job {
	return &Job{
		runner:   runner,
		history:  history,
		recorder: recorder,
		dryRun:   dryRun,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce runs the job at the current time and records the result.
func (j *Job) RunOnce(ctx context.Context) handler.RunRecord {
	summary, err := j.runner.Run(ctx, j.now().UTC(), j.dryRun)

	rec := handler.RunRecord{Result: handler.ResultOK, Summary: summary}
	switch {
	case errors.Is(err, runlock.ErrLocked):
		rec.Result = handler.ResultLocked
		j.logger.Info("Run skipped, lock held elsewhere")
	case err != nil:
		rec.Result = handler.ResultError
		rec.Error = err.Error()
		j.logger.Error("Scheduled run failed", "error", err)
	}
	rec.FinishedAt = j.now().UTC()

	j.history.Record(rec)
	if j.recorder != nil {
		j.recorder.ObserveRun(rec.Result, rec.FinishedAt)
	}
	return rec
}

// Start schedules job on expr (standard five-field cron, UTC). A tick that
// fires while the previous run is still going is skipped. The returned cron
// is already running; call Stop to drain it.
func Start(ctx context.Context, expr string, job *Job, logger *slog.Logger) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(expr); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}

	cl := cronLogger{logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(expr, func() { job.RunOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule job: %w", err)
	}
	c.Start()
	return c, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
