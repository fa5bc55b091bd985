package serverfx

import (
	"context"
	"slices"
	"time"

	"github.com/joeydtaylor/steeze-worker/pkg/host/nethost"
	"github.com/joeydtaylor/steeze-worker/pkg/manifest"
	"github.com/joeydtaylor/steeze-worker/pkg/worker"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// scheduler fires the scheduled entry for each manifest cron.
type scheduler struct {
	mod *worker.Module
	env *nethost.Env
	bg  *nethost.Background
	log *zap.Logger
	c   *cron.Cron
}

func newScheduler(mod *worker.Module, env *nethost.Env, bg *nethost.Background, log *zap.Logger) *scheduler {
	return &scheduler{
		mod: mod,
		env: env,
		bg:  bg,
		log: log,
		c: cron.New(
			cron.WithParser(manifest.CronParser),
			cron.WithLogger(cronLogger{log}),
		),
	}
}

func (s *scheduler) schedule(crons []string) error {
	if len(crons) == 0 {
		return nil
	}
	if !slices.Contains(s.mod.Exports(), worker.RoleScheduled) {
		s.log.Warn("cron triggers configured but no scheduled entry is exported", zap.Strings("crons", crons))
		return nil
	}
	for _, expr := range crons {
		sched, err := manifest.CronParser.Parse(expr)
		if err != nil {
			return err
		}
		s.c.Schedule(sched, s.job(expr))
		s.log.Info("cron scheduled", zap.String("cron", expr))
	}
	return nil
}

// job stamps the event with the firing second; cron fires on whole seconds.
func (s *scheduler) job(expr string) cron.FuncJob {
	return func() { s.fire(expr, time.Now().Truncate(time.Second)) }
}

func (s *scheduler) fire(expr string, at time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("scheduled invocation aborted", zap.String("cron", expr), zap.Error(recovered(rec)))
		}
	}()
	ev := nethost.ScheduledEvent{Expr: expr, At: at}
	if err := s.mod.Scheduled(context.Background(), ev, s.env, s.bg.Context()); err != nil {
		s.log.Error("scheduled invocation failed", zap.String("cron", expr), zap.Error(err))
	}
}

func (s *scheduler) start() { s.c.Start() }

// stop waits for running jobs until ctx ends.
func (s *scheduler) stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, zap.Any("kv", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, zap.Error(err), zap.Any("kv", kv))
}
