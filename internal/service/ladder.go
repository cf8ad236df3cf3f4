package service

import (
	"context"

	"house_screens/internal/events"
	"house_screens/internal/models"
)

// exhaustAfter is the refreshAttempts value at which the ladder gives up.
const exhaustAfter = 2

// escalate applies one step of the refresh ladder after a failed dimension
// wait. It runs at most once per run.
func (s *ReconcileService) escalate(ctx context.Context, rn *run, houseID string, ho *HouseOutcome) error {
	if rn.escalated {
		return nil
	}
	rn.escalated = true
	if rn.stale() {
		return ErrSuperseded
	}
	s.setPhase(rn, PhaseEscalating)

	attempts, err := s.flags.Attempts(ctx)
	if err != nil {
		return err
	}

	if attempts >= exhaustAfter {
		for _, key := range []string{models.KeyNeedsRefresh, models.KeyNeedsSecondRefresh, models.KeyRefreshShown} {
			if err := rn.setBool(ctx, key, false); err != nil {
				return err
			}
		}
		if err := rn.setString(ctx, models.KeyRefreshAttempts, "0"); err != nil {
			return err
		}
		if err := rn.setBool(ctx, models.KeyScreenSetupFailed, true); err != nil {
			return err
		}
		ho.Ladder = LadderExhausted
		s.record(ctx, models.EventExhausted, houseID, ErrExhausted.Error(), map[string]any{"attempts": attempts, "wait": ho.Wait})
		rn.log.Warnw("screen_setup_exhausted", "house_id", houseID, "attempts", attempts)
		rn.publish(ctx, events.Event{
			Topic:   events.ScreenSetupError,
			Payload: events.SetupErrorPayload{Message: ErrExhausted.Error()},
		})
		return nil
	}

	shown, err := s.flags.Bool(ctx, models.KeyRefreshShown)
	if err != nil {
		return err
	}
	complete, err := s.flags.Bool(ctx, models.KeyActivationComplete)
	if err != nil {
		return err
	}

	if !shown && !complete {
		if err := rn.setBool(ctx, models.KeyNeedsRefresh, true); err != nil {
			return err
		}
		ho.Ladder = LadderNeedsRefresh
		rn.publish(ctx, events.Event{Topic: events.ScreenNeedsRefresh})
	} else {
		if err := rn.setBool(ctx, models.KeyNeedsRefresh, false); err != nil {
			return err
		}
		if err := rn.setBool(ctx, models.KeyNeedsSecondRefresh, true); err != nil {
			return err
		}
		ho.Ladder = LadderSecondRefresh
	}

	if rn.stale() {
		return ErrSuperseded
	}
	n, err := s.flags.IncrementAttempts(ctx)
	if err != nil {
		return err
	}
	s.record(ctx, models.EventLadder, houseID, "refresh ladder step "+string(ho.Ladder), map[string]any{"attempts": n, "wait": ho.Wait})
	rn.log.Infow("refresh_ladder", "house_id", houseID, "step", ho.Ladder, "attempts", n)
	return nil
}

// ladderPending reports whether any ladder flag is away from its zero value.
func ladderPending(st models.RefreshState) bool {
	return st.NeedsRefresh || st.NeedsSecondRefresh || st.RefreshShown || st.RefreshAttempts != 0
}

// resetLadder returns the refresh ladder to its zero state.
func (s *ReconcileService) resetLadder(ctx context.Context, rn *run) error {
	for _, key := range []string{models.KeyNeedsRefresh, models.KeyNeedsSecondRefresh, models.KeyRefreshShown} {
		if err := rn.setBool(ctx, key, false); err != nil {
			return err
		}
	}
	return rn.setString(ctx, models.KeyRefreshAttempts, "0")
}

// settle records a successful activation and resets the ladder. The flags are
// device-wide, so a step another house escalated earlier in the same run is
// left in place.
func (s *ReconcileService) settle(ctx context.Context, rn *run, houseID, screenID string) error {
	if !rn.escalated {
		if err := s.resetLadder(ctx, rn); err != nil {
			return err
		}
	}
	if err := rn.setBool(ctx, models.KeyActivationComplete, true); err != nil {
		return err
	}
	s.record(ctx, models.EventConverged, houseID, "screen reports dimensions", map[string]any{"screen_id": screenID})
	rn.log.Infow("screen_converged", "house_id", houseID, "screen_id", screenID)
	return nil
}
