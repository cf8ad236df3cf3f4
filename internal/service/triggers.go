package service

import (
	"context"
	"sync"
	"time"

	"house_screens/internal/events"
	"house_screens/internal/logger"
)

// Trigger defaults.
const (
	DefaultHouseCreatedDebounce = time.Second
	DefaultSecondRefreshDelay   = 5 * time.Second
)

// Triggers schedules reconciliation runs: once on start ("mount"), after a
// debounced house-created signal, and once more when a run leaves the silent
// second-refresh flag set.
type Triggers struct {
	rec                Reconciler
	flags              *FlagStore
	bus                *events.Bus
	log                *logger.Logger
	debounce           time.Duration
	secondRefreshDelay time.Duration
}

func NewTriggers(rec Reconciler, flags *FlagStore, bus *events.Bus, debounce, secondRefreshDelay time.Duration, log *logger.Logger) *Triggers {
	if debounce <= 0 {
		debounce = DefaultHouseCreatedDebounce
	}
	if secondRefreshDelay <= 0 {
		secondRefreshDelay = DefaultSecondRefreshDelay
	}
	return &Triggers{
		rec:                rec,
		flags:              flags,
		bus:                bus,
		log:                log,
		debounce:           debounce,
		secondRefreshDelay: secondRefreshDelay,
	}
}

// Run blocks until ctx is cancelled. Every timer and run it started has
// stopped by the time it returns.
func (t *Triggers) Run(ctx context.Context) {
	sub := t.bus.Subscribe(events.HouseCreated)
	defer sub.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	outcomes := make(chan Outcome, 1)
	fire := func(force bool, reason string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.log.Infow("reconcile_triggered", "reason", reason, "force", force)
			out, err := t.rec.Reconcile(ctx, force)
			if err != nil {
				t.log.Warnw("reconcile_trigger_failed", "reason", reason, "result", out.Result, "err", err)
			}
			select {
			case outcomes <- out:
			case <-ctx.Done():
			}
		}()
	}

	var debounce, followUp *time.Timer
	var debounceC, followUpC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		if followUp != nil {
			followUp.Stop()
		}
	}()

	fire(false, "mount")

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			houseID := houseCreatedID(ev)
			if houseID == "" {
				t.log.Warnw("house_created_without_id")
				continue
			}
			marked, err := t.flags.MarkAccountCreated(ctx, houseID)
			if err != nil {
				t.log.Errorw("mark_account_created_failed", "house_id", houseID, "err", err)
			}
			t.log.Infow("house_created", "house_id", houseID, "marked", marked)
			if debounce == nil {
				debounce = time.NewTimer(t.debounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(t.debounce)
			}
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			fire(true, "house-created")

		case <-followUpC:
			followUpC = nil
			fire(false, "second-refresh")

		case out := <-outcomes:
			if out.NeedsSecondRefresh && followUpC == nil {
				if followUp == nil {
					followUp = time.NewTimer(t.secondRefreshDelay)
				} else {
					followUp.Reset(t.secondRefreshDelay)
				}
				followUpC = followUp.C
			}
		}
	}
}

func houseCreatedID(ev events.Event) string {
	switch p := ev.Payload.(type) {
	case events.HouseCreatedPayload:
		return p.HouseID
	case *events.HouseCreatedPayload:
		if p != nil {
			return p.HouseID
		}
	case string:
		return p
	}
	return ""
}
