package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryosukesatoh/autumn/internal/scheduler"
)

const (
	dailyJob  = "daily-crawl"
	weeklyJob = "weekly-digest"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daily crawl and weekly digest on their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.web != nil {
		if err := a.web.Start(); err != nil {
			return err
		}
	}

	sched := scheduler.New(a.cfg.Location(), a.logger)
	if err := sched.Add(scheduler.Job{Name: dailyJob, Spec: a.cfg.Schedule.Daily, Run: a.runner.Daily}); err != nil {
		return err
	}
	if err := sched.Add(scheduler.Job{Name: weeklyJob, Spec: a.cfg.Schedule.Weekly, Run: a.runner.Weekly}); err != nil {
		return err
	}

	if a.cfg.RunOnStart {
		a.logger.Info("Running initial crawl")
		if err := sched.RunNow(ctx, dailyJob); err != nil {
			a.logger.Warn("Initial crawl failed", zap.Error(err))
		}
	}

	sched.Start()
	for _, e := range sched.Entries() {
		a.logger.Info("Next run", zap.String("job", e.Name), zap.Time("at", e.Next))
	}

	<-ctx.Done()
	a.logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("Scheduler shutdown", zap.Error(err))
	}
	if a.web != nil {
		if err := a.web.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Web server shutdown error", zap.Error(err))
		}
	}

	a.logger.Info("Shutdown complete")
	return nil
}
