package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"house_screens/internal/models"
	"house_screens/internal/repository"
)

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}
	return from, to, normalizeEventType(f.Type), nil
}

// List returns reconciliation events matching f, oldest first. The house
// filter is applied here; the repository only indexes time and type.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.ReconcileEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	events, err := s.eventRepo.List(ctx, from, to, typ)
	if err != nil {
		return nil, err
	}
	houseID := strings.TrimSpace(f.HouseID)
	if houseID == "" {
		return events, nil
	}
	out := events[:0:0]
	for _, e := range events {
		if e.HouseID == houseID {
			out = append(out, e)
		}
	}
	return out, nil
}
