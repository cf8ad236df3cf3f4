package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"house_screens/internal/events"
	"house_screens/internal/gateway"
	"house_screens/internal/logger"
	"house_screens/internal/models"
	"house_screens/internal/repository"
)

var errEmptyHouseID = errors.New("house id is required")

// PairingService stands in for the device-pairing flow: it creates the
// environment a brand-new house is missing and hands over to the reconciler.
type PairingService struct {
	gw        gateway.BackendGateway
	flags     *FlagStore
	eventRepo repository.EventRepo
	rec       Reconciler
	pub       events.Publisher
	log       *logger.Logger
}

func NewPairingService(gw gateway.BackendGateway, flags *FlagStore, eventRepo repository.EventRepo, rec Reconciler, pub events.Publisher, log *logger.Logger) *PairingService {
	if pub == nil {
		pub = events.NopPublisher()
	}
	return &PairingService{gw: gw, flags: flags, eventRepo: eventRepo, rec: rec, pub: pub, log: log}
}

// Pair creates an environment with one screen in houseID, clears
// environmentCreationNeeded and runs a forced reconciliation.
func (p *PairingService) Pair(ctx context.Context, houseID string) (PairResult, error) {
	houseID = strings.TrimSpace(houseID)
	if houseID == "" {
		return PairResult{}, errEmptyHouseID
	}

	envID, err := p.gw.CreateEnvironment(ctx, houseID)
	if err != nil {
		return PairResult{}, fmt.Errorf("pair house %s: %w", houseID, err)
	}
	if err := p.gw.CreateScreen(ctx, envID); err != nil {
		return PairResult{HouseID: houseID, EnvironmentID: envID}, fmt.Errorf("pair house %s: %w", houseID, err)
	}
	if err := p.flags.SetBool(ctx, models.KeyEnvironmentCreationNeeded, false); err != nil {
		return PairResult{HouseID: houseID, EnvironmentID: envID}, err
	}
	if p.eventRepo != nil {
		if err := p.eventRepo.Append(ctx, models.ReconcileEvent{
			Type:        models.EventPairing,
			HouseID:     houseID,
			Description: "environment paired",
			Metadata:    map[string]any{"environment_id": envID},
		}); err != nil {
			p.log.Warnw("event_log_append_failed", "type", models.EventPairing, "err", err)
		}
	}
	p.log.Infow("environment_paired", "house_id", houseID, "environment_id", envID)

	out, err := p.rec.Reconcile(ctx, true)
	return PairResult{HouseID: houseID, EnvironmentID: envID, Outcome: out}, err
}

// AnnounceHouseCreated publishes house-created for houseID onto the bus.
func (p *PairingService) AnnounceHouseCreated(ctx context.Context, houseID string) error {
	houseID = strings.TrimSpace(houseID)
	if houseID == "" {
		return errEmptyHouseID
	}
	p.pub.Publish(ctx, events.Event{
		Topic:   events.HouseCreated,
		Payload: events.HouseCreatedPayload{HouseID: houseID},
	})
	return nil
}
