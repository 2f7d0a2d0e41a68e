package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"platewatch/internal/domain/lpr"
)

// AlertService handles operator triage: acknowledge, resolve, dismiss. The
// pipeline creates alerts; this service only moves them through the
// lifecycle and never re-opens a terminal alert.
type AlertService struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewAlertService(store Store, log zerolog.Logger) *AlertService {
	return &AlertService{store: store, log: log, now: time.Now}
}

func (s *AlertService) Get(ctx context.Context, id int64) (*lpr.Alert, error) {
	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("%w: alert %d", ErrNotFound, id)
	}
	return alert, nil
}

func (s *AlertService) List(ctx context.Context, f AlertFilter) ([]lpr.Alert, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListAlerts(ctx, f)
}

func (s *AlertService) Acknowledge(ctx context.Context, alertID, userID int64) (*lpr.Alert, error) {
	return s.transition(ctx, alertID, lpr.AlertStatusAcknowledged, func(a *lpr.Alert, now time.Time) {
		a.AcknowledgedByID = &userID
		a.AcknowledgedAt = &now
	})
}

func (s *AlertService) Resolve(ctx context.Context, alertID, userID int64) (*lpr.Alert, error) {
	return s.transition(ctx, alertID, lpr.AlertStatusResolved, func(a *lpr.Alert, now time.Time) {
		a.ResolvedByID = &userID
		a.ResolvedAt = &now
	})
}

func (s *AlertService) Dismiss(ctx context.Context, alertID, userID int64) (*lpr.Alert, error) {
	return s.transition(ctx, alertID, lpr.AlertStatusDismissed, func(a *lpr.Alert, now time.Time) {
		a.ResolvedByID = &userID
		a.ResolvedAt = &now
	})
}

func (s *AlertService) transition(ctx context.Context, alertID int64, next lpr.AlertStatus, audit func(*lpr.Alert, time.Time)) (*lpr.Alert, error) {
	var result *lpr.Alert
	err := s.store.InTx(ctx, func(tx Store) error {
		alert, err := tx.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		if alert == nil {
			return fmt.Errorf("%w: alert %d", ErrNotFound, alertID)
		}
		if !alert.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, next)
		}
		now := s.now()
		alert.Status = next
		alert.UpdatedAt = now
		audit(alert, now)
		if err := tx.UpdateAlert(ctx, alert); err != nil {
			return err
		}
		result = alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int64("alert_id", result.ID).
		Str("status", string(result.Status)).
		Msg("alert transitioned")
	return result, nil
}
