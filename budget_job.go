package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// budgetJobs tracks the cancellation channel of every running interval job.
// Closing a channel stops its job at the next wake point; jobs are never
// joined.
type budgetJobs struct {
	mu     sync.Mutex
	cancel map[string]chan struct{}
}

func newBudgetJobs() *budgetJobs {
	return &budgetJobs{cancel: make(map[string]chan struct{})}
}

// install replaces any running job for the label and returns the channel
// the new job must watch.
func (b *budgetJobs) install(label string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.cancel[label]; ok {
		close(old)
	}
	ch := make(chan struct{})
	b.cancel[label] = ch
	return ch
}

func (b *budgetJobs) stop(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.cancel[label]; ok {
		close(ch)
		delete(b.cancel, label)
	}
}

func (b *budgetJobs) stopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for label, ch := range b.cancel {
		close(ch)
		delete(b.cancel, label)
	}
}

func (s *PluginState) startBudgetJob(label string) {
	cancel := s.budgetJobs.install(label)
	go runBudgetJob(s, label, cancel)
}

func (s *PluginState) stopBudgetJob(label string) {
	s.budgetJobs.stop(label)
}

// runBudgetJob restores one connection's budget every interval. Waking up
// short of a full interval after a restart is expected: the wait is
// measured from the persisted last_reset, not from job start. The record is
// reloaded at fire time so the reset never writes back values an admin
// replaced while the timer slept. Load or persist failures end the job with
// an error log.
func runBudgetJob(s *PluginState, label string, cancel <-chan struct{}) {
	ctx := context.Background()
	for {
		s.nodeMu.Lock()
		rec, err := s.records.Load(ctx, label)
		s.nodeMu.Unlock()
		if err != nil {
			slog.Error("Budget job could not load record", "label", label, "error", err)
			return
		}
		if rec.Interval == nil {
			slog.Error("Budget job found no interval config", "label", label)
			return
		}

		now := uint64(time.Now().Unix())
		var elapsed uint64
		if now > rec.Interval.LastReset {
			elapsed = now - rec.Interval.LastReset
		}
		nextFire := uint64(1)
		if rec.Interval.IntervalSecs > elapsed {
			nextFire = rec.Interval.IntervalSecs - elapsed
		}
		slog.Debug("Budget job sleeping", "label", label, "next_fire_secs", nextFire)

		timer := time.NewTimer(time.Duration(nextFire) * time.Second)
		select {
		case <-cancel:
			timer.Stop()
			slog.Info("Budget job stopping", "label", label)
			return
		case <-timer.C:
		}

		s.nodeMu.Lock()
		rec, err = s.records.Load(ctx, label)
		if err == nil {
			if rec.Interval == nil {
				s.nodeMu.Unlock()
				slog.Error("Budget job found no interval config", "label", label)
				return
			}
			rec.BudgetMsat = u64ptr(rec.Interval.ResetBudgetMsat)
			rec.Interval.LastReset = uint64(time.Now().Unix())
			err = s.records.Save(ctx, label, rec)
		}
		s.nodeMu.Unlock()
		if err != nil {
			slog.Error("Budget job could not reset budget", "label", label, "error", err)
			return
		}
		slog.Info("Budget refreshed", "label", label, "budget_msat", *rec.BudgetMsat)
	}
}
