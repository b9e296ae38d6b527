package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// DecayStore is the rule store surface used by the decayer.
type DecayStore interface {
	Ping(ctx context.Context) error
	FindByEvent(ctx context.Context, eventNames ...string) ([]*types.Rule, error)
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)
	SaveTriggered(ctx context.Context, id types.RuleID, state types.TriggeredState) error
}

// fade describes which counter a decaying kind owns and where its
// decrement is configured.
type fade struct {
	counter string
	amount  string
}

var fadingKinds = map[string]fade{
	KindCommandSendXTimes: {counter: types.TriggeredRunEveryXCommands, amount: "fadeOutXCommands"},
	KindKeywordSendXTimes: {counter: types.TriggeredRunEveryXKeywords, amount: "fadeOutXKeywords"},
}

// Decay applies one fade-out step to rule at now and reports whether
// rule.Triggered changed. The counter never goes below zero.
func Decay(rule *types.Rule, now time.Time) bool {
	f, ok := fadingKinds[rule.EventName]
	if !ok {
		return false
	}
	rule.EnsureState()
	nowMs := float64(now.UnixMilli())

	anchor := rule.Triggered.Get(types.TriggeredFadeOutInterval)
	if anchor == 0 {
		rule.Triggered[types.TriggeredFadeOutInterval] = nowMs
		return true
	}
	if nowMs-anchor < rule.Definitions.Number("fadeOutInterval")*1000 {
		return false
	}
	if !rule.Triggered.Has(f.counter) {
		return false
	}
	counter := rule.Triggered.Get(f.counter)
	amount := rule.Definitions.Number(f.amount)
	if counter <= 0 || amount <= 0 {
		return false
	}

	rule.Triggered[types.TriggeredFadeOutInterval] = nowMs
	rule.Triggered[f.counter] = max(0, counter-amount)
	return true
}

// Decayer periodically fades out counting conditions. Passes run inline in
// the Run goroutine, so at most one is in flight.
type Decayer struct {
	store   DecayStore
	locks   *ruleLocks
	period  time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// Period returns the tick interval.
func (d *Decayer) Period() time.Duration { return d.period }

// Run ticks until ctx is cancelled. Pass failures are logged and never stop the loop.
func (d *Decayer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	d.logger.Info("decay scheduler started", "period", d.period)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("decay scheduler stopped")
			return nil
		case <-ticker.C:
			if err := d.Pass(ctx); err != nil {
				if errors.Is(err, types.ErrStoreNotReady) {
					d.logger.Debug("decay deferred, store not ready", "error", err)
				} else {
					d.logger.Warn("decay pass failed", "error", err)
				}
			}
		}
	}
}

// Pass runs one decay pass over every fading rule.
func (d *Decayer) Pass(ctx context.Context) error {
	if err := d.store.Ping(ctx); err != nil {
		d.count("not_ready")
		if !errors.Is(err, types.ErrStoreNotReady) {
			err = errors.Join(types.ErrStoreNotReady, err)
		}
		return err
	}

	rules, err := d.store.FindByEvent(ctx, KindCommandSendXTimes, KindKeywordSendXTimes)
	if err != nil {
		d.count("error")
		return err
	}

	var errs []error
	for _, r := range rules {
		if err := d.decayOne(ctx, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		d.count("error")
		return errors.Join(errs...)
	}
	d.count("ok")
	return nil
}

// decayOne re-reads the rule under its lock so a concurrent checker write is
// never overwritten with stale state.
func (d *Decayer) decayOne(ctx context.Context, id types.RuleID) error {
	unlock := d.locks.lock(id)
	defer unlock()

	rule, err := d.store.Get(ctx, id)
	if errors.Is(err, types.ErrRuleNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	before := rule.Triggered.Get(fadingKinds[rule.EventName].counter)
	if !Decay(rule, d.now()) {
		return nil
	}
	if err := d.store.SaveTriggered(ctx, id, rule.Triggered); err != nil {
		return err
	}
	if after := rule.Triggered.Get(fadingKinds[rule.EventName].counter); after < before {
		if d.metrics != nil {
			d.metrics.decayedCounters.Inc()
		}
		d.logger.Debug("counter decayed", "rule_id", id, "from", before, "to", after)
	}
	return nil
}

func (d *Decayer) count(result string) {
	if d.metrics != nil {
		d.metrics.decayPasses.WithLabelValues(result).Inc()
	}
}
