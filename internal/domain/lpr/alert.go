package lpr

import "time"

type AlertType string

const (
	AlertTypeStolenVehicle     AlertType = "stolen_vehicle"
	AlertTypeSuspiciousVehicle AlertType = "suspicious_vehicle"
	AlertTypeCameraOffline     AlertType = "camera_offline"
	AlertTypeDetectionError    AlertType = "detection_error"
	AlertTypeSystemError       AlertType = "system_error"
	AlertTypeLowConfidence     AlertType = "low_confidence"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeStolenVehicle, AlertTypeSuspiciousVehicle, AlertTypeCameraOffline,
		AlertTypeDetectionError, AlertTypeSystemError, AlertTypeLowConfidence:
		return true
	}
	return false
}

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusDismissed    AlertStatus = "dismissed"
)

// IsOpen reports whether the alert still needs operator attention. Open
// alerts are the correlation targets for repeat detections.
func (s AlertStatus) IsOpen() bool {
	return s == AlertStatusNew || s == AlertStatusAcknowledged
}

// CanTransitionTo encodes the lifecycle: NEW may be acknowledged or
// dismissed, ACKNOWLEDGED may only be resolved. Resolved and dismissed are
// terminal.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertStatusNew:
		return next == AlertStatusAcknowledged || next == AlertStatusDismissed
	case AlertStatusAcknowledged:
		return next == AlertStatusResolved
	}
	return false
}

// Alert is a unit of operator-facing work. At most one open alert exists per
// (vehicle, type); repeat detections relink DetectionID instead of creating
// a duplicate.
type Alert struct {
	ID               int64
	Type             AlertType
	Severity         AlertSeverity
	Status           AlertStatus
	Title            string
	Message          string
	Details          map[string]interface{}
	DetectionID      *int64
	VehicleID        *int64
	CameraID         *int64
	CreatedByID      *int64
	AcknowledgedByID *int64
	ResolvedByID     *int64
	AcknowledgedAt   *time.Time
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
