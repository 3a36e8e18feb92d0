// Package scheduler runs the in-process cron entries for the nightly jobs.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron with context plumbing so jobs observe process
// shutdown.
type Scheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
}

// New creates a Scheduler whose jobs receive baseCtx.
func New(baseCtx context.Context) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		baseCtx: baseCtx,
	}
}

// Add registers job under a six-field cron spec.
func (s *Scheduler) Add(spec string, name string, job func(context.Context)) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		slog.Info("cron job firing", "job", name)
		job(s.baseCtx)
	})
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	slog.Info("cron started")
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("cron stopped")
}
