package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

type Redeliverer interface {
	Redeliver(ctx context.Context, failed *model.Email) *model.Email
}

// RetryResult summarises one retry pass.
type RetryResult struct {
	Selected int `json:"selected"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
}

// RetryScheduler periodically resubmits Failed rows created within the
// lookback window. Passes never overlap; a pass that is still running when the
// next tick fires causes that tick to be skipped.
type RetryScheduler struct {
	Emails      repository.EmailRepositoryInterface
	Delivery    Redeliverer
	Metrics     metrics.Sink
	Log         *zap.Logger
	Interval    time.Duration
	Lookback    time.Duration
	Concurrency int
	Now         func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	startup sync.WaitGroup
}

// Start runs one pass immediately, then every Interval.
func (s *RetryScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	clog := cronLogger{s.Log.Named("retry")}
	s.cron = cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog)))

	job := cron.NewChain(cron.SkipIfStillRunning(clog)).Then(cron.FuncJob(func() { s.RunOnce(ctx) }))
	s.cron.Schedule(cron.Every(s.Interval), job)
	s.cron.Start()

	s.startup.Add(1)
	go func() {
		defer s.startup.Done()
		job.Run()
	}()

	s.Log.Info("🔁 retry scheduler started",
		zap.Duration("interval", s.Interval), zap.Duration("lookback", s.Lookback))
}

// Stop halts scheduling. The returned context is done once a pass that was
// already running has returned; cancelling the context given to Start cuts
// that pass short.
func (s *RetryScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	scheduled := s.cron.Stop()
	s.cron = nil

	done, finish := context.WithCancel(context.Background())
	go func() {
		<-scheduled.Done()
		s.startup.Wait()
		finish()
		s.Log.Info("retry scheduler stopped")
	}()
	return done
}

func (s *RetryScheduler) RunOnce(ctx context.Context) {
	if _, err := s.RunWindow(ctx, s.Lookback); err != nil {
		s.Log.Error("retry pass aborted", zap.Error(err))
	}
}

// RunWindow resubmits every Failed row created within lookback of now. A
// failed scan aborts the pass; the next tick tries again.
func (s *RetryScheduler) RunWindow(ctx context.Context, lookback time.Duration) (RetryResult, error) {
	since := s.Now().Add(-lookback)
	failed, err := s.Emails.ListFailedSince(ctx, since)
	if err != nil {
		s.Metrics.RetryCycle(0, 0, err)
		return RetryResult{}, err
	}

	res := RetryResult{Selected: len(failed)}
	if len(failed) == 0 {
		s.Metrics.RetryCycle(0, 0, nil)
		return res, nil
	}
	s.Log.Info("retrying failed emails", zap.Int("count", len(failed)), zap.Time("since", since))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	for _, e := range failed {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out := s.Delivery.Redeliver(gctx, e)
			mu.Lock()
			defer mu.Unlock()
			if out != nil && out.Status == model.StatusSent {
				res.Sent++
			} else {
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.Metrics.RetryCycle(res.Selected, res.Sent, nil)
	s.Log.Info("retry pass complete",
		zap.Int("selected", res.Selected), zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
	return res, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
