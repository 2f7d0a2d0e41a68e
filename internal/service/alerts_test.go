package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"platewatch/internal/domain/lpr"
	"platewatch/internal/repository/memory"
	"platewatch/internal/service"
)

func seedAlert(t *testing.T, store *memory.Store, status lpr.AlertStatus) *lpr.Alert {
	t.Helper()
	vehicleID := int64(1)
	alert := &lpr.Alert{
		Type:      lpr.AlertTypeStolenVehicle,
		Severity:  lpr.SeverityCritical,
		Status:    status,
		Title:     "Stolen vehicle detected: AB123CD",
		Message:   "test alert",
		VehicleID: &vehicleID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.CreateAlert(context.Background(), alert); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	return alert
}

func TestAlertService_AcknowledgeThenResolve(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewAlertService(store, zerolog.Nop())
	ctx := context.Background()
	alert := seedAlert(t, store, lpr.AlertStatusNew)

	acked, err := svc.Acknowledge(ctx, alert.ID, 42)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if acked.Status != lpr.AlertStatusAcknowledged {
		t.Fatalf("status = %s, want acknowledged", acked.Status)
	}
	if acked.AcknowledgedByID == nil || *acked.AcknowledgedByID != 42 || acked.AcknowledgedAt == nil {
		t.Error("acknowledge audit fields must be set")
	}

	resolved, err := svc.Resolve(ctx, alert.ID, 43)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != lpr.AlertStatusResolved {
		t.Fatalf("status = %s, want resolved", resolved.Status)
	}
	if resolved.ResolvedByID == nil || *resolved.ResolvedByID != 43 || resolved.ResolvedAt == nil {
		t.Error("resolve audit fields must be set")
	}
}

func TestAlertService_DismissFromNew(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewAlertService(store, zerolog.Nop())
	alert := seedAlert(t, store, lpr.AlertStatusNew)

	dismissed, err := svc.Dismiss(context.Background(), alert.ID, 42)
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if dismissed.Status != lpr.AlertStatusDismissed {
		t.Fatalf("status = %s, want dismissed", dismissed.Status)
	}
}

func TestAlertService_RejectsInvalidTransitions(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewAlertService(store, zerolog.Nop())
	ctx := context.Background()

	cases := []struct {
		name string
		from lpr.AlertStatus
		op   func(int64) error
	}{
		{"resolve from new", lpr.AlertStatusNew, func(id int64) error {
			_, err := svc.Resolve(ctx, id, 1)
			return err
		}},
		{"dismiss from acknowledged", lpr.AlertStatusAcknowledged, func(id int64) error {
			_, err := svc.Dismiss(ctx, id, 1)
			return err
		}},
		{"acknowledge resolved", lpr.AlertStatusResolved, func(id int64) error {
			_, err := svc.Acknowledge(ctx, id, 1)
			return err
		}},
		{"resolve dismissed", lpr.AlertStatusDismissed, func(id int64) error {
			_, err := svc.Resolve(ctx, id, 1)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alert := seedAlert(t, store, tc.from)
			err := tc.op(alert.ID)
			if !errors.Is(err, service.ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
			// the stored alert must be untouched
			stored, _ := store.GetAlert(ctx, alert.ID)
			if stored.Status != tc.from {
				t.Errorf("status mutated to %s", stored.Status)
			}
		})
	}
}

func TestAlertService_NotFound(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewAlertService(store, zerolog.Nop())

	if _, err := svc.Acknowledge(context.Background(), 999, 1); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
