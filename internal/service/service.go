package service

import (
	"context"

	"house_screens/internal/config"
	"house_screens/internal/events"
	"house_screens/internal/gateway"
	"house_screens/internal/logger"
	"house_screens/internal/models"
	"house_screens/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Reconciler runs reconciliation passes.
type Reconciler interface {
	Reconcile(ctx context.Context, forceRefresh bool) (Outcome, error)
}

// Monitoring exposes the reconciliation state to the UI.
type Monitoring interface {
	GetState(ctx context.Context) (StateSnapshot, error)
	MarkRefreshShown(ctx context.Context) error
}

// Pairing covers the house bootstrap signals coming from outside.
type Pairing interface {
	Pair(ctx context.Context, houseID string) (PairResult, error)
	AnnounceHouseCreated(ctx context.Context, houseID string) error
}

// EventLog exposes the append-only reconciliation log.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ReconcileEvent, error)
}

// Service aggregates the sub-services used by handlers and the CLI.
type Service struct {
	Reconciler
	Monitoring
	Pairing
	EventLog
	Authorization

	Triggers *Triggers
}

// Deps are the collaborators NewService wires together.
type Deps struct {
	Repos   *repository.Repository
	Gateway gateway.BackendGateway
	Bus     *events.Bus
	Config  config.Config
	Log     *logger.Logger
}

func NewService(d Deps) *Service {
	cfg := d.Config
	flags := NewFlagStore(d.Repos.Flags)

	waiter := NewDimensionWaiter(d.Gateway, d.Log.Component("waiter"))
	if cfg.Waiter.Interval > 0 {
		waiter.Interval = cfg.Waiter.Interval
	}
	if cfg.Waiter.MaxAttempts > 0 {
		waiter.MaxAttempts = cfg.Waiter.MaxAttempts
	}
	if cfg.Waiter.ReactivateAttempt > 0 {
		waiter.ReactivateAttempt = cfg.Waiter.ReactivateAttempt
	}

	rec := NewReconcileService(d.Gateway, flags, d.Repos.EventRepo, d.Bus, waiter, ReconcilerConfig{
		Domain:                cfg.Backend.Domain,
		Session:               models.Session{Token: cfg.Backend.SessionToken},
		Dimensions:            models.Dimensions{Width: cfg.Screen.Width, Height: cfg.Screen.Height},
		PlayerEnvironmentName: cfg.Screen.PlayerEnvironmentName,
		Deadline:              cfg.Reconcile.Deadline,
	}, d.Log.Component("reconciler"))

	return &Service{
		Reconciler:    rec,
		Monitoring:    NewMonitoringService(flags, rec, d.Repos.EventRepo, d.Log.Component("monitoring")),
		Pairing:       NewPairingService(d.Gateway, flags, d.Repos.EventRepo, rec, d.Bus, d.Log.Component("pairing")),
		EventLog:      NewEventLogService(d.Repos.EventRepo),
		Authorization: NewAuthService(d.Repos.Auth, cfg.Auth.SigningKey, cfg.Auth.TokenTTL),
		Triggers: NewTriggers(rec, flags, d.Bus, cfg.Reconcile.HouseCreatedDebounce,
			cfg.Reconcile.SecondRefreshDelay, d.Log.Component("triggers")),
	}
}
