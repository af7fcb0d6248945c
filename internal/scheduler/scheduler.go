package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every trigger with the local trigger time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Spec is a standard five-field cron expression or a descriptor such as @daily.
	Spec string
	// Timezone names the IANA location Spec is evaluated in; empty means local time.
	Timezone   string
	RunOnStart bool
}

// Scheduler fires a tick function on a cron schedule. A trigger that arrives while the
// previous tick is still running is skipped.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	location *time.Location
	logger   zerolog.Logger
}

// New parses the schedule and constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	loc := time.Local
	if opts.Timezone != "" {
		l, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
		}
		loc = l
	}

	schedule, err := cron.ParseStandard(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", opts.Spec, err)
	}

	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		location: loc,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next reports the first trigger strictly after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.location))
}

// Run blocks, invoking tick on every trigger until ctx is cancelled. It waits for an
// in-flight tick to return before exiting.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	c := cron.New(cron.WithLocation(s.location), cron.WithLogger(cronLogger{s.logger}))
	job := s.job(ctx, tick)
	c.Schedule(s.schedule, job)

	s.logger.Info().Str("spec", s.opts.Spec).Str("timezone", s.location.String()).
		Time("next", s.Next(time.Now())).Msg("scheduler started")

	var startup sync.WaitGroup
	c.Start()
	if s.opts.RunOnStart {
		startup.Add(1)
		go func() {
			defer startup.Done()
			job.Run()
		}()
	}

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	startup.Wait()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

// job wraps tick so that panics are recovered and overlapping triggers are skipped.
func (s *Scheduler) job(ctx context.Context, tick TickFunc) cron.Job {
	l := cronLogger{s.logger}
	chain := cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l))
	return chain.Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		at := time.Now().In(s.location)
		s.logger.Info().Time("at", at).Msg("executing scheduled tick")
		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
			return
		}
		s.logger.Debug().Time("next", s.Next(time.Now())).Msg("tick finished")
	}))
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
