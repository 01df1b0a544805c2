package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sylvia_browser_agent/internal/page"
)

// PageFetcher loads the target page of an automation before each run.
type PageFetcher interface {
	FetchContext(ctx context.Context, url string) (page.Context, error)
}

// CommandRunner executes the automation's command against fetched values.
type CommandRunner interface {
	RunSlug(ctx context.Context, slug string, values map[string]any) (string, error)
}

// Notifier delivers a run report out of band. Delivery failures are recorded
// on the result but never fail the run itself.
type Notifier interface {
	SendRunReport(ctx context.Context, a Automation, r Result) error
}

type SchedulerOptions struct {
	Store   Store
	Log     ResultLog
	Fetcher PageFetcher
	Runner  CommandRunner

	Hub      *Hub
	Notifier Notifier
	Logger   *slog.Logger

	TickInterval time.Duration
	RunTimeout   time.Duration
}

// Scheduler wakes on a fixed tick, finds due enabled automations and runs
// them one at a time. A failing automation never prevents later ones in the
// same tick from running.
type Scheduler struct {
	store    Store
	log      ResultLog
	fetcher  PageFetcher
	runner   CommandRunner
	hub      *Hub
	notifier Notifier
	logger   *slog.Logger

	tickInterval time.Duration
	runTimeout   time.Duration
	now          func() time.Time

	wakeCh chan struct{}
	doneCh chan struct{}
}

func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Log == nil {
		return nil, errors.New("result log is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("runner is required")
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}
	timeout := opts.RunTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        opts.Store,
		log:          opts.Log,
		fetcher:      opts.Fetcher,
		runner:       opts.Runner,
		hub:          opts.Hub,
		notifier:     opts.Notifier,
		logger:       logger,
		tickInterval: tick,
		runTimeout:   timeout,
		now:          func() time.Time { return time.Now().UTC() },
		wakeCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start launches the tick loop. It returns immediately; use Done to wait
// for shutdown after cancelling ctx.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Scheduler) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.doneCh
}

// Wake forces an immediate tick, e.g. right after an automation is saved.
func (s *Scheduler) Wake() {
	if s == nil {
		return
	}
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wakeCh:
		case <-ticker.C:
		}
		s.Tick(ctx, s.now())
	}
}

// Tick runs every enabled, due automation sequentially.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	autos, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("scheduler: list automations", "error", err)
		return
	}
	for _, a := range autos {
		if ctx.Err() != nil {
			return
		}
		if !a.Enabled {
			continue
		}
		due, err := s.due(a, now)
		if err != nil {
			s.logger.Warn("scheduler: skip automation", "id", a.ID, "error", err)
			continue
		}
		if !due {
			continue
		}
		s.execute(ctx, a, now)
	}
}

// due decides whether a should run at now. Interval automations measure
// elapsed time since the last run; an automation that never ran is due
// immediately. Cron automations fire when the expression's next firing
// after the last run is not in the future.
func (s *Scheduler) due(a Automation, now time.Time) (bool, error) {
	switch a.Trigger.Type {
	case TriggerInterval:
		if a.Trigger.Minutes <= 0 {
			return false, fmt.Errorf("interval trigger has minutes=%d", a.Trigger.Minutes)
		}
		elapsed := now.Sub(a.LastRunAt)
		return elapsed >= time.Duration(a.Trigger.Minutes)*time.Minute, nil
	case TriggerCron:
		base := a.LastRunAt
		if base.IsZero() {
			base = a.CreatedAt
		}
		if base.IsZero() {
			return true, nil
		}
		next, err := NextCronRun(a.Trigger, base)
		if err != nil {
			return false, err
		}
		return !next.After(now), nil
	default:
		return false, fmt.Errorf("unknown trigger type %q", a.Trigger.Type)
	}
}

// RunNow executes one automation immediately, outside its schedule. The
// result is recorded exactly like a scheduled run.
func (s *Scheduler) RunNow(ctx context.Context, id string) (Result, error) {
	a, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrNotFound
	}
	return s.execute(ctx, a, s.now()), nil
}

func (s *Scheduler) execute(ctx context.Context, a Automation, startedAt time.Time) Result {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	start := time.Now()
	pageCtx, err := s.fetcher.FetchContext(runCtx, a.TargetURL)
	var output string
	if err == nil {
		output, err = s.runner.RunSlug(runCtx, a.CommandSlug, pageCtx.AsValues())
	}

	res := Result{
		ID:             generateResultID(time.Now()),
		AutomationID:   a.ID,
		AutomationName: a.Name,
		CommandSlug:    a.CommandSlug,
		Timestamp:      startedAt,
		DurationMs:     time.Since(start).Milliseconds(),
		Input:          &ResultInput{URL: a.TargetURL},
	}

	a.LastRunAt = startedAt
	if err != nil {
		res.Error = err.Error()
		a.LastStatus = StatusError
		a.LastError = err.Error()
		s.logger.Warn("automation run failed", "id", a.ID, "command", a.CommandSlug, "error", err)
	} else {
		res.Success = true
		res.Output = output
		res.Input.Page = &PageRef{Title: pageCtx.Title, URL: pageCtx.URL}
		a.LastStatus = StatusOK
		a.LastError = ""
		s.logger.Info("automation run ok", "id", a.ID, "command", a.CommandSlug, "duration_ms", res.DurationMs)
	}

	if s.notifier != nil && len(a.Notify.Email) > 0 {
		if derr := s.notifier.SendRunReport(runCtx, a, res); derr != nil {
			res.DeliveryError = derr.Error()
			s.logger.Warn("run report delivery failed", "id", a.ID, "error", derr)
		}
	}

	if err := s.log.Append(ctx, res); err != nil {
		s.logger.Error("scheduler: append result", "id", a.ID, "error", err)
	}
	if _, err := s.store.Save(ctx, a); err != nil {
		s.logger.Error("scheduler: save automation", "id", a.ID, "error", err)
	}
	s.hub.Publish(res)
	return res
}
