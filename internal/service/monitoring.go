package service

import (
	"context"

	"house_screens/internal/logger"
	"house_screens/internal/models"
	"house_screens/internal/repository"
)

type statusSource interface {
	Status() Status
}

// MonitoringService exposes the persisted flags and controller status, and
// takes acknowledgements from the UI.
type MonitoringService struct {
	flags     *FlagStore
	status    statusSource
	eventRepo repository.EventRepo
	log       *logger.Logger
}

func NewMonitoringService(flags *FlagStore, status statusSource, eventRepo repository.EventRepo, log *logger.Logger) *MonitoringService {
	return &MonitoringService{flags: flags, status: status, eventRepo: eventRepo, log: log}
}

// GetState returns the current flags and controller status.
func (s *MonitoringService) GetState(ctx context.Context) (StateSnapshot, error) {
	st, err := s.flags.Load(ctx)
	if err != nil {
		return StateSnapshot{}, err
	}
	snap := StateSnapshot{Flags: st, Controller: Status{Phase: PhaseIdle}}
	if s.status != nil {
		snap.Controller = s.status.Status()
	}
	return snap, nil
}

// MarkRefreshShown records that the UI displayed the refresh prompt. The
// next ladder step then takes the silent second-refresh path.
func (s *MonitoringService) MarkRefreshShown(ctx context.Context) error {
	if err := s.flags.SetBool(ctx, models.KeyRefreshShown, true); err != nil {
		return err
	}
	if err := s.flags.SetBool(ctx, models.KeyNeedsRefresh, false); err != nil {
		return err
	}
	if s.eventRepo != nil {
		if err := s.eventRepo.Append(ctx, models.ReconcileEvent{
			Type:        models.EventRefreshShown,
			Description: "refresh prompt shown",
		}); err != nil {
			s.log.Warnw("event_log_append_failed", "type", models.EventRefreshShown, "err", err)
		}
	}
	return nil
}
