package lpr

import "testing"

func TestAlertStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AlertStatus
		want     bool
	}{
		{AlertStatusNew, AlertStatusAcknowledged, true},
		{AlertStatusNew, AlertStatusDismissed, true},
		{AlertStatusNew, AlertStatusResolved, false},
		{AlertStatusAcknowledged, AlertStatusResolved, true},
		{AlertStatusAcknowledged, AlertStatusDismissed, false},
		{AlertStatusAcknowledged, AlertStatusNew, false},
		{AlertStatusResolved, AlertStatusAcknowledged, false},
		{AlertStatusResolved, AlertStatusNew, false},
		{AlertStatusDismissed, AlertStatusResolved, false},
		{AlertStatusDismissed, AlertStatusAcknowledged, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAlertStatusIsOpen(t *testing.T) {
	open := []AlertStatus{AlertStatusNew, AlertStatusAcknowledged}
	closed := []AlertStatus{AlertStatusResolved, AlertStatusDismissed}
	for _, s := range open {
		if !s.IsOpen() {
			t.Errorf("%s should be open", s)
		}
	}
	for _, s := range closed {
		if s.IsOpen() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestAlertTypeValid(t *testing.T) {
	for _, at := range []AlertType{
		AlertTypeStolenVehicle, AlertTypeSuspiciousVehicle, AlertTypeCameraOffline,
		AlertTypeDetectionError, AlertTypeSystemError, AlertTypeLowConfidence,
	} {
		if !at.Valid() {
			t.Errorf("%s should be valid", at)
		}
	}
	if AlertType("something_else").Valid() {
		t.Error("unknown type should be invalid")
	}
}
