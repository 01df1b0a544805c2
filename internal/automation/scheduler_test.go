package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"sylvia_browser_agent/internal/page"
)

type stubFetcher struct {
	ctx  page.Context
	err  error
	urls []string
}

func (f *stubFetcher) FetchContext(ctx context.Context, url string) (page.Context, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return page.Context{}, f.err
	}
	out := f.ctx
	if out.URL == "" {
		out.URL = url
	}
	return out, nil
}

type stubRunner struct {
	output string
	err    error
	slugs  []string
}

func (r *stubRunner) RunSlug(ctx context.Context, slug string, values map[string]any) (string, error) {
	r.slugs = append(r.slugs, slug)
	return r.output, r.err
}

type stubNotifier struct {
	err   error
	calls int
}

func (n *stubNotifier) SendRunReport(ctx context.Context, a Automation, r Result) error {
	n.calls++
	return n.err
}

func newTestScheduler(t *testing.T, store Store, log ResultLog, fetcher PageFetcher, runner CommandRunner, notifier Notifier) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerOptions{
		Store:    store,
		Log:      log,
		Fetcher:  fetcher,
		Runner:   runner,
		Notifier: notifier,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	return s
}

func saveTestAutomation(t *testing.T, store Store, a Automation) Automation {
	t.Helper()
	saved, err := store.Save(context.Background(), a)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	return saved
}

func TestSchedulerDue_Interval(t *testing.T) {
	s := newTestScheduler(t, NewMemoryStore(), NewMemoryResultLog(), &stubFetcher{}, &stubRunner{}, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		lastRunAt time.Time
		minutes   int
		want      bool
	}{
		{name: "never_ran", minutes: 60, want: true},
		{name: "ran_recently", lastRunAt: now.Add(-30 * time.Minute), minutes: 60, want: false},
		{name: "exactly_elapsed", lastRunAt: now.Add(-60 * time.Minute), minutes: 60, want: true},
		{name: "overdue", lastRunAt: now.Add(-90 * time.Minute), minutes: 60, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Automation{
				Trigger:   Trigger{Type: "interval", Minutes: tc.minutes},
				LastRunAt: tc.lastRunAt,
			}
			got, err := s.due(a, now)
			if err != nil {
				t.Fatalf("due() error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("due() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSchedulerDue_Cron(t *testing.T) {
	s := newTestScheduler(t, NewMemoryStore(), NewMemoryResultLog(), &stubFetcher{}, &stubRunner{}, nil)
	now := time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC) // Monday 09:00:30

	daily9 := Trigger{Type: "cron", Expression: "0 9 * * *"}

	cases := []struct {
		name      string
		lastRunAt time.Time
		want      bool
	}{
		{name: "fired_since_last_run", lastRunAt: now.Add(-24 * time.Hour), want: true},
		{name: "already_ran_this_firing", lastRunAt: now.Add(-20 * time.Second), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Automation{
				Trigger:   daily9,
				CreatedAt: now.Add(-48 * time.Hour),
				LastRunAt: tc.lastRunAt,
			}
			got, err := s.due(a, now)
			if err != nil {
				t.Fatalf("due() error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("due() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSchedulerTick_SuccessRecordsResultAndUpdatesAutomation(t *testing.T) {
	store := NewMemoryStore()
	log := NewMemoryResultLog()
	fetcher := &stubFetcher{ctx: page.Context{Title: "Example", Content: "body text"}}
	runner := &stubRunner{output: "a fine summary"}
	s := newTestScheduler(t, store, log, fetcher, runner, nil)

	a := saveTestAutomation(t, store, Automation{
		Name:        "daily watch",
		CommandSlug: "summarize-page",
		TargetURL:   "https://example.com",
		Enabled:     true,
		Trigger:     Trigger{Type: "interval", Minutes: 60},
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Tick(context.Background(), now)

	if len(fetcher.urls) != 1 || fetcher.urls[0] != "https://example.com" {
		t.Fatalf("fetched urls = %v", fetcher.urls)
	}
	if len(runner.slugs) != 1 || runner.slugs[0] != "summarize-page" {
		t.Fatalf("ran slugs = %v", runner.slugs)
	}

	results, err := log.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if results.Total != 1 {
		t.Fatalf("results total = %d, want 1", results.Total)
	}
	res := results.Results[0]
	if !res.Success || res.Output != "a fine summary" || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}
	if res.AutomationID != a.ID || res.AutomationName != "daily watch" {
		t.Fatalf("result attribution = %+v", res)
	}
	if res.Input == nil || res.Input.Page == nil || res.Input.Page.Title != "Example" {
		t.Fatalf("result input = %+v", res.Input)
	}

	got, _, _ := store.Get(context.Background(), a.ID)
	if !got.LastRunAt.Equal(now) {
		t.Fatalf("lastRunAt = %v, want %v", got.LastRunAt, now)
	}
	if got.LastStatus != StatusOK || got.LastError != "" {
		t.Fatalf("automation status = %q / %q", got.LastStatus, got.LastError)
	}
}

func TestSchedulerTick_FetchFailureIsRecordedAndIsolated(t *testing.T) {
	store := NewMemoryStore()
	log := NewMemoryResultLog()
	fetcher := &stubFetcher{err: errors.New("timeout")}
	runner := &stubRunner{output: "unused"}
	s := newTestScheduler(t, store, log, fetcher, runner, nil)

	first := saveTestAutomation(t, store, Automation{
		Name:        "broken",
		CommandSlug: "summarize-page",
		TargetURL:   "https://down.example.com",
		Enabled:     true,
		Trigger:     Trigger{Type: "interval", Minutes: 60},
	})
	second := saveTestAutomation(t, store, Automation{
		Name:        "also due",
		CommandSlug: "extract-tasks",
		TargetURL:   "https://up.example.com",
		Enabled:     true,
		Trigger:     Trigger{Type: "interval", Minutes: 60},
	})

	s.Tick(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	// Both automations were attempted despite the first failing.
	if len(fetcher.urls) != 2 {
		t.Fatalf("fetched urls = %v, want both automations attempted", fetcher.urls)
	}

	results, _ := log.Query(context.Background(), Query{AutomationID: first.ID})
	if results.Total != 1 {
		t.Fatalf("results for failing automation = %d", results.Total)
	}
	res := results.Results[0]
	if res.Success || res.Error != "timeout" || res.Output != "" {
		t.Fatalf("failure result = %+v", res)
	}
	if res.Input == nil || res.Input.URL != "https://down.example.com" || res.Input.Page != nil {
		t.Fatalf("failure input = %+v", res.Input)
	}

	got, _, _ := store.Get(context.Background(), first.ID)
	if got.LastStatus != StatusError || got.LastError != "timeout" {
		t.Fatalf("automation status = %q / %q", got.LastStatus, got.LastError)
	}
	if got.LastRunAt.IsZero() {
		t.Fatalf("lastRunAt not advanced on failure")
	}

	secondResults, _ := log.Query(context.Background(), Query{AutomationID: second.ID})
	if secondResults.Total != 1 {
		t.Fatalf("results for second automation = %d, want 1", secondResults.Total)
	}
}

func TestSchedulerTick_SkipsDisabledAndNotDue(t *testing.T) {
	store := NewMemoryStore()
	log := NewMemoryResultLog()
	fetcher := &stubFetcher{}
	s := newTestScheduler(t, store, log, fetcher, &stubRunner{}, nil)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	saveTestAutomation(t, store, Automation{
		Name:        "off",
		CommandSlug: "summarize-page",
		TargetURL:   "https://example.com/off",
		Enabled:     false,
		Trigger:     Trigger{Type: "interval", Minutes: 60},
	})
	recent := saveTestAutomation(t, store, Automation{
		Name:        "recent",
		CommandSlug: "summarize-page",
		TargetURL:   "https://example.com/recent",
		Enabled:     true,
		Trigger:     Trigger{Type: "interval", Minutes: 60},
	})
	recent.LastRunAt = now.Add(-10 * time.Minute)
	if _, err := store.Save(context.Background(), recent); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	s.Tick(context.Background(), now)

	if len(fetcher.urls) != 0 {
		t.Fatalf("fetched urls = %v, want none", fetcher.urls)
	}
	recorded, _ := log.Query(context.Background(), Query{})
	if recorded.Total != 0 {
		t.Fatalf("results total = %d, want 0", recorded.Total)
	}
}

func TestSchedulerRunNow(t *testing.T) {
	store := NewMemoryStore()
	log := NewMemoryResultLog()
	fetcher := &stubFetcher{ctx: page.Context{Title: "T"}}
	runner := &stubRunner{output: "done"}
	s := newTestScheduler(t, store, log, fetcher, runner, nil)

	a := saveTestAutomation(t, store, Automation{
		Name:        "manual",
		CommandSlug: "summarize-page",
		TargetURL:   "https://example.com",
		Enabled:     false, // run-now ignores the enabled flag
		Trigger:     Trigger{Type: "interval", Minutes: 60},
	})

	res, err := s.RunNow(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("RunNow() error: %v", err)
	}
	if !res.Success || res.Output != "done" {
		t.Fatalf("RunNow() result = %+v", res)
	}

	if _, err := s.RunNow(context.Background(), "auto-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RunNow(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestSchedulerNotifier_DeliveryFailureRecordedNotFatal(t *testing.T) {
	store := NewMemoryStore()
	log := NewMemoryResultLog()
	notifier := &stubNotifier{err: errors.New("smtp refused")}
	s := newTestScheduler(t, store, log, &stubFetcher{}, &stubRunner{output: "ok"}, notifier)

	a := saveTestAutomation(t, store, Automation{
		Name:        "notify me",
		CommandSlug: "summarize-page",
		TargetURL:   "https://example.com",
		Enabled:     true,
		Trigger:     Trigger{Type: "interval", Minutes: 60},
		Notify:      Notify{Email: []string{"ops@example.com"}},
	})

	res, err := s.RunNow(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("RunNow() error: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", notifier.calls)
	}
	if !res.Success {
		t.Fatalf("delivery failure marked the run failed: %+v", res)
	}
	if res.DeliveryError != "smtp refused" {
		t.Fatalf("deliveryError = %q", res.DeliveryError)
	}

	stored, _, _ := log.Get(context.Background(), res.ID)
	if stored.DeliveryError != "smtp refused" {
		t.Fatalf("persisted deliveryError = %q", stored.DeliveryError)
	}
}

func TestHub_PublishFanOut(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(Result{ID: "run-1"})
	select {
	case got := <-ch:
		if got.ID != "run-1" {
			t.Fatalf("received %+v", got)
		}
	default:
		t.Fatalf("no result delivered to subscriber")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed after cancel")
	}
}
