package service

import (
	"context"
	"time"

	"house_screens/internal/gateway"
	"house_screens/internal/logger"
	"house_screens/internal/models"
)

// Waiter defaults. Both attempt numbers are overridable through config.
const (
	DefaultWaitInterval      = time.Second
	DefaultMaxAttempts       = 10
	DefaultReactivateAttempt = 3
)

// WaitResult is the outcome of one DimensionWaiter run.
type WaitResult string

const (
	WaitSuccess  WaitResult = "success"
	WaitTimeout  WaitResult = "timeout"
	WaitNotFound WaitResult = "not_found"
)

// ReactivateFunc re-issues the activation call mid-wait.
type ReactivateFunc func(ctx context.Context) error

// DimensionWaiter polls the backend until an activated screen reports
// dimensions and power.
type DimensionWaiter struct {
	gw  gateway.BackendGateway
	log *logger.Logger

	Interval          time.Duration
	MaxAttempts       int
	ReactivateAttempt int
}

func NewDimensionWaiter(gw gateway.BackendGateway, log *logger.Logger) *DimensionWaiter {
	return &DimensionWaiter{
		gw:                gw,
		log:               log,
		Interval:          DefaultWaitInterval,
		MaxAttempts:       DefaultMaxAttempts,
		ReactivateAttempt: DefaultReactivateAttempt,
	}
}

// Wait polls once per Interval, bypassing the graph cache, for at most
// MaxAttempts polls. At poll ReactivateAttempt it calls reactivate once if
// the screen is still unpopulated. Only transport failures and ctx
// cancellation are returned as errors.
func (w *DimensionWaiter) Wait(ctx context.Context, screenID, environmentID string, reactivate ReactivateFunc) (WaitResult, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	reactivated := false
	for attempt := 1; attempt <= w.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}

		houses, err := w.gw.FetchGraph(ctx, true)
		if err != nil {
			return "", err
		}
		screen, found := locateScreen(houses, environmentID, screenID)
		if !found {
			w.log.Infow("dimension_wait_not_found", "screen_id", screenID, "environment_id", environmentID, "attempt", attempt)
			return WaitNotFound, nil
		}
		if populated(screen) {
			w.log.Debugw("dimension_wait_success", "screen_id", screenID, "attempt", attempt)
			return WaitSuccess, nil
		}
		if attempt == w.ReactivateAttempt && !reactivated && reactivate != nil {
			reactivated = true
			w.log.Infow("dimension_wait_reactivate", "screen_id", screenID, "attempt", attempt)
			if err := reactivate(ctx); err != nil {
				return "", err
			}
		}
	}
	w.log.Infow("dimension_wait_timeout", "screen_id", screenID, "attempts", w.MaxAttempts)
	return WaitTimeout, nil
}

func populated(s models.Screen) bool {
	return s.Width != 0 && s.Height != 0 && s.On
}

func locateScreen(houses []models.House, environmentID, screenID string) (models.Screen, bool) {
	for _, h := range houses {
		if e, ok := h.FindEnvironment(environmentID); ok {
			return e.FindScreen(screenID)
		}
	}
	return models.Screen{}, false
}
