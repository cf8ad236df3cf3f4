package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"house_screens/internal/events"
	"house_screens/internal/gateway"
	"house_screens/internal/logger"
	"house_screens/internal/models"
	"house_screens/internal/repository"

	"github.com/google/uuid"
)

// DefaultRunDeadline bounds a whole run including every dimension wait.
const DefaultRunDeadline = 90 * time.Second

var (
	ErrSuperseded = errors.New("reconcile run superseded by a newer trigger")
	ErrExhausted  = errors.New("screen setup failed after repeated attempts; waiting for a forced trigger")
)

// ReconcilerConfig carries the values a run needs besides its collaborators.
type ReconcilerConfig struct {
	Domain                string
	Session               models.Session
	Dimensions            models.Dimensions // locally detected; zero means unknown
	PlayerEnvironmentName string
	Deadline              time.Duration
}

// ReconcileService drives each house towards at least one working screen.
// Runs are serialized; a newer call cancels the one in flight and the stale
// run stops writing flags or publishing events.
type ReconcileService struct {
	gw        gateway.BackendGateway
	flags     *FlagStore
	eventRepo repository.EventRepo
	pub       events.Publisher
	waiter    *DimensionWaiter
	log       *logger.Logger
	cfg       ReconcilerConfig
	now       func() time.Time

	runMu sync.Mutex

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	phase  Phase
	last   *Outcome
}

func NewReconcileService(
	gw gateway.BackendGateway,
	flags *FlagStore,
	eventRepo repository.EventRepo,
	pub events.Publisher,
	waiter *DimensionWaiter,
	cfg ReconcilerConfig,
	log *logger.Logger,
) *ReconcileService {
	if pub == nil {
		pub = events.NopPublisher()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultRunDeadline
	}
	return &ReconcileService{
		gw:        gw,
		flags:     flags,
		eventRepo: eventRepo,
		pub:       pub,
		waiter:    waiter,
		log:       log,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		phase:     PhaseIdle,
	}
}

// run is the per-call state. Flag writes and publishes go through it so a
// superseded run cannot commit anything.
type run struct {
	s         *ReconcileService
	gen       uint64
	forced    bool
	escalated bool
	log       *logger.Logger
	out       Outcome
}

func (rn *run) stale() bool { return !rn.s.isCurrent(rn.gen) }

func (rn *run) setBool(ctx context.Context, key string, v bool) error {
	if rn.stale() {
		return ErrSuperseded
	}
	return rn.s.flags.SetBool(ctx, key, v)
}

func (rn *run) setString(ctx context.Context, key, v string) error {
	if rn.stale() {
		return ErrSuperseded
	}
	return rn.s.flags.SetString(ctx, key, v)
}

func (rn *run) delete(ctx context.Context, key string) error {
	if rn.stale() {
		return ErrSuperseded
	}
	return rn.s.flags.Delete(ctx, key)
}

func (rn *run) publish(ctx context.Context, ev events.Event) {
	if rn.stale() {
		return
	}
	rn.s.pub.Publish(ctx, ev)
}

// Reconcile runs one reconciliation pass. forceRefresh bypasses the graph
// cache and clears a previous screen-setup failure; without it a failed
// device is left alone. Gateway failures are reported in the Outcome and
// returned, but leave the process healthy.
func (s *ReconcileService) Reconcile(ctx context.Context, forceRefresh bool) (Outcome, error) {
	gen, runCtx, cancel := s.begin(ctx)
	defer cancel()

	s.runMu.Lock()
	defer s.runMu.Unlock()

	rn := &run{
		s:      s,
		gen:    gen,
		forced: forceRefresh,
		out: Outcome{
			RunID:      uuid.NewString(),
			Generation: gen,
			Forced:     forceRefresh,
			StartedAt:  s.now(),
		},
	}
	rn.log = s.log.With("run_id", rn.out.RunID, "generation", gen)

	if rn.stale() {
		return s.finish(ctx, rn, ResultSuperseded, ErrSuperseded)
	}
	rn.log.Infow("reconcile_started", "force", forceRefresh)

	result, err := s.execute(runCtx, rn)
	if err != nil {
		if errors.Is(err, ErrSuperseded) || rn.stale() {
			result, err = ResultSuperseded, ErrSuperseded
		} else {
			result = ResultSyncError
			s.syncFailed(context.WithoutCancel(ctx), rn, err)
		}
	}
	return s.finish(ctx, rn, result, err)
}

// Status reports the controller phase and the last finished run.
func (s *ReconcileService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Phase: s.phase, Generation: s.gen}
	if s.last != nil {
		out := *s.last
		st.LastOutcome = &out
	}
	return st
}

func (s *ReconcileService) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	s.cancel = cancel
	return s.gen, runCtx, cancel
}

func (s *ReconcileService) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *ReconcileService) setPhase(rn *run, p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == rn.gen {
		s.phase = p
	}
}

func (s *ReconcileService) finish(ctx context.Context, rn *run, result Result, err error) (Outcome, error) {
	rn.out.Result = result
	rn.out.FinishedAt = s.now()
	switch {
	case err != nil:
		rn.out.Error = err.Error()
	case result == ResultExhausted || result == ResultSkipped:
		rn.out.Error = ErrExhausted.Error()
	}
	if result != ResultSuperseded {
		if v, ferr := s.flags.Bool(context.WithoutCancel(ctx), models.KeyNeedsSecondRefresh); ferr == nil {
			rn.out.NeedsSecondRefresh = v
		}
	}

	s.mu.Lock()
	if s.gen == rn.gen {
		out := rn.out
		s.last = &out
		s.phase = PhaseIdle
		if result == ResultExhausted || result == ResultSkipped {
			s.phase = PhaseFailed
		}
	}
	s.mu.Unlock()

	rn.log.Infow("reconcile_finished", "result", result, "elapsed", rn.out.FinishedAt.Sub(rn.out.StartedAt))
	return rn.out, err
}

func (s *ReconcileService) execute(ctx context.Context, rn *run) (Result, error) {
	st, err := s.flags.Load(ctx)
	if err != nil {
		return ResultSyncError, fmt.Errorf("load flags: %w", err)
	}

	if st.ScreenSetupFailed {
		if !rn.forced {
			rn.log.Infow("reconcile_skipped", "reason", "screen_setup_failed")
			return ResultSkipped, nil
		}
		if err := rn.setBool(ctx, models.KeyScreenSetupFailed, false); err != nil {
			return ResultSyncError, err
		}
		st.ScreenSetupFailed = false
		s.record(ctx, models.EventSetupReset, "", "forced trigger cleared screen setup failure", nil)
	}

	s.setPhase(rn, PhaseFetching)
	houses, err := s.gw.FetchGraph(ctx, rn.forced)
	if err != nil {
		return ResultSyncError, err
	}

	s.setPhase(rn, PhaseClassifying)
	result := ResultConverged
	envNeeded := false
	for _, h := range houses {
		ho, err := s.reconcileHouse(ctx, rn, h, &st)
		rn.out.Houses = append(rn.out.Houses, ho)
		if err != nil {
			return ResultSyncError, err
		}
		envNeeded = envNeeded || ho.EnvironmentNeeded
		switch {
		case ho.Ladder == LadderExhausted:
			return ResultExhausted, nil
		case ho.Ladder != "":
			result = ResultEscalated
		case result == ResultConverged && (ho.ContentCopied || len(ho.Activated) > 0 || len(ho.Removed) > 0 || len(ho.CreatedScreens) > 0):
			result = ResultRepaired
		}
	}

	if !envNeeded && st.EnvironmentCreationNeeded {
		if err := rn.setBool(ctx, models.KeyEnvironmentCreationNeeded, false); err != nil {
			return ResultSyncError, err
		}
	}
	if result == ResultConverged && ladderPending(st) {
		// A healthy graph ends the failure episode; the next one starts at the bottom.
		if err := s.resetLadder(ctx, rn); err != nil {
			return ResultSyncError, err
		}
	}
	if st.LastSyncError != "" {
		if err := rn.delete(ctx, models.KeyLastSyncError); err != nil {
			return ResultSyncError, err
		}
	}
	if result == ResultConverged {
		s.setPhase(rn, PhaseConverged)
	}
	return result, nil
}

func (s *ReconcileService) reconcileHouse(ctx context.Context, rn *run, h models.House, st *models.RefreshState) (HouseOutcome, error) {
	ho := HouseOutcome{HouseID: h.ID}

	// Content first: a screen is useless without something to play.
	if st.AccountJustCreated && (st.NewAccountHouseID == "" || st.NewAccountHouseID == h.ID) {
		if !st.HasCopied(h.ID) {
			res, err := s.gw.CopyDefaultContent(ctx, s.cfg.Domain, s.cfg.Session, h.ID)
			if err != nil {
				return ho, err
			}
			// Mirrors a backend fact, so it is kept even if this run is stale.
			if err := s.flags.AddCopiedHouse(context.WithoutCancel(ctx), h.ID); err != nil {
				return ho, err
			}
			st.CopiedHouses = append(st.CopiedHouses, h.ID)
			ho.ContentCopied = true
			s.record(ctx, models.EventCopyContent, h.ID, "default content copied", res)
			rn.log.Infow("content_copied", "house_id", h.ID, "playlists", res.Playlists, "media", res.Media)
		}
		if err := rn.setBool(ctx, models.KeyAccountJustCreated, false); err != nil {
			return ho, err
		}
		if err := rn.delete(ctx, models.KeyNewAccountHouseID); err != nil {
			return ho, err
		}
		st.AccountJustCreated = false
		st.NewAccountHouseID = ""
	}

	if len(h.Environments) == 0 {
		ho.EnvironmentNeeded = true
		if !st.EnvironmentCreationNeeded {
			if err := rn.setBool(ctx, models.KeyEnvironmentCreationNeeded, true); err != nil {
				return ho, err
			}
			st.EnvironmentCreationNeeded = true
			s.record(ctx, models.EventEnvNeeded, h.ID, "house has no environment; waiting for pairing", nil)
		}
		rn.log.Infow("environment_creation_needed", "house_id", h.ID)
		return ho, nil
	}

	if !hasActiveScreen(h) {
		return ho, s.bootstrapScreen(ctx, rn, h, &ho)
	}
	return ho, s.repairPlayers(ctx, rn, h, &ho)
}

// bootstrapScreen brings up a screen in a house that has none working.
func (s *ReconcileService) bootstrapScreen(ctx context.Context, rn *run, h models.House, ho *HouseOutcome) error {
	s.setPhase(rn, PhaseRepairing)
	env, _ := primaryEnvironment(h)

	screen, ok := pickScreen(env)
	if !ok {
		if err := s.gw.CreateScreen(ctx, env.ID); err != nil {
			return err
		}
		ho.CreatedScreens = append(ho.CreatedScreens, env.ID)
		s.record(ctx, models.EventCreateScreen, h.ID, "screen created", map[string]any{"environment_id": env.ID})

		houses, err := s.gw.FetchGraph(ctx, true)
		if err != nil {
			return err
		}
		if screen, ok = findPickedScreen(houses, h.ID, env.ID); !ok {
			ho.Wait = WaitNotFound
			return s.escalate(ctx, rn, h.ID, ho)
		}
	}

	converged, err := s.activateAndWait(ctx, rn, h.ID, env.ID, screen.ID, ho)
	if err != nil {
		return err
	}
	ho.Converged = converged

	if _, err := s.gw.FetchGraph(ctx, true); err != nil {
		return err
	}
	return nil
}

// repairPlayers fixes faulty player environments of a house that already
// has a working screen. Non-essential ones are only removed once an
// essential environment is known to work.
func (s *ReconcileService) repairPlayers(ctx context.Context, rn *run, h models.House, ho *HouseOutcome) error {
	candidates := faultyPlayerEnvironments(h, s.cfg.PlayerEnvironmentName)
	if len(candidates) == 0 {
		ho.Converged = true
		return nil
	}
	s.setPhase(rn, PhaseRepairing)
	essential, other := partitionEssential(h, candidates)

	repaired, failed := false, false
	for _, env := range essential {
		screen, _ := firstFaultyScreen(env)
		ok, err := s.activateAndWait(ctx, rn, h.ID, env.ID, screen.ID, ho)
		if err != nil {
			return err
		}
		if ho.Ladder == LadderExhausted {
			return nil
		}
		repaired = repaired || ok
		failed = failed || !ok
	}

	if len(other) == 0 {
		ho.Converged = !failed
		return nil
	}
	if !repaired && !(len(essential) == 0 && essentialHasActive(h)) {
		rn.log.Infow("removal_deferred", "house_id", h.ID, "environments", len(other))
		return nil
	}

	s.setPhase(rn, PhaseRepairing)
	for _, env := range other {
		if err := s.gw.RemoveEnvironment(ctx, env.ID); err != nil {
			return err
		}
		ho.Removed = append(ho.Removed, env.ID)
		s.record(ctx, models.EventRemoveEnv, h.ID, "faulty player environment removed", map[string]any{"environment_id": env.ID})
	}
	if _, err := s.gw.FetchGraph(ctx, true); err != nil {
		return err
	}
	ho.Converged = !failed
	return nil
}

// activateAndWait powers screenID on and waits for it to report dimensions,
// applying the ladder on failure. It reports whether the screen came up.
func (s *ReconcileService) activateAndWait(ctx context.Context, rn *run, houseID, environmentID, screenID string, ho *HouseOutcome) (bool, error) {
	dims := s.dimensions()
	meta := map[string]any{
		"screen_id":      screenID,
		"environment_id": environmentID,
		"width":          dims.Width,
		"height":         dims.Height,
	}
	if err := s.gw.ActivateScreen(ctx, screenID, true, dims, s.cfg.Session); err != nil {
		return false, err
	}
	ho.Activated = append(ho.Activated, screenID)
	s.record(ctx, models.EventActivate, houseID, "screen activated", meta)

	s.setPhase(rn, PhaseWaitingDimensions)
	res, err := s.waiter.Wait(ctx, screenID, environmentID, func(ctx context.Context) error {
		if err := s.gw.ActivateScreen(ctx, screenID, true, dims, s.cfg.Session); err != nil {
			return err
		}
		s.record(ctx, models.EventReactivate, houseID, "screen re-activated while waiting for dimensions", meta)
		return nil
	})
	if err != nil {
		return false, err
	}
	ho.Wait = res

	if res == WaitSuccess {
		return true, s.settle(ctx, rn, houseID, screenID)
	}
	return false, s.escalate(ctx, rn, houseID, ho)
}

func (s *ReconcileService) dimensions() models.Dimensions {
	if s.cfg.Dimensions.IsZero() {
		return models.DefaultDimensions
	}
	return s.cfg.Dimensions
}

// syncFailed degrades a failed run to a flag, an event and a log line.
func (s *ReconcileService) syncFailed(ctx context.Context, rn *run, err error) {
	meta := map[string]any{}
	if ne, ok := gateway.AsNetworkError(err); ok {
		meta["op"] = ne.Op
		if ne.StatusCode != 0 {
			meta["status"] = ne.StatusCode
		}
	}
	rn.log.Errorw("reconcile_sync_failed", "err", err)
	s.record(ctx, models.EventSyncError, "", err.Error(), meta)

	if werr := rn.setString(ctx, models.KeyLastSyncError, err.Error()); werr != nil {
		rn.log.Warnw("last_sync_error_not_saved", "err", werr)
		return
	}
	rn.publish(ctx, events.Event{
		Topic:   events.ScreenSetupError,
		Payload: events.SetupErrorPayload{Message: err.Error()},
	})
}

// record appends to the event log. Failures are logged, never returned.
func (s *ReconcileService) record(ctx context.Context, typ, houseID, desc string, meta any) {
	if s.eventRepo == nil {
		return
	}
	err := s.eventRepo.Append(context.WithoutCancel(ctx), models.ReconcileEvent{
		OccurredAt:  s.now(),
		Type:        typ,
		HouseID:     houseID,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Warnw("event_log_append_failed", "type", typ, "err", err)
	}
}

func findPickedScreen(houses []models.House, houseID, environmentID string) (models.Screen, bool) {
	h, ok := models.FindHouse(houses, houseID)
	if !ok {
		return models.Screen{}, false
	}
	env, ok := h.FindEnvironment(environmentID)
	if !ok {
		return models.Screen{}, false
	}
	return pickScreen(env)
}
