package service

import (
	"context"
	"errors"
	"time"

	"platewatch/internal/domain/lpr"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid alert transition")
	// ErrAlertPersistence means the detection is already committed but the
	// alert write failed; retry at alert granularity, never the whole
	// pipeline.
	ErrAlertPersistence = errors.New("alert persistence failed")
)

type DetectionFilter struct {
	Plate    *string
	CameraID *int64
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

type AlertFilter struct {
	Status    *lpr.AlertStatus
	Type      *lpr.AlertType
	VehicleID *int64
	Limit     int
	Offset    int
}

// Store is the persistence boundary of the engine. Implementations must
// honor upsert-by-unique-key semantics: GetOrCreateVehicle is a conditional
// insert resolved by the unique plate constraint, never read-then-write.
// Lookup methods return (nil, nil) on a miss.
type Store interface {
	// InTx runs fn against a transactional view of the store; all writes
	// inside fn commit or roll back together.
	InTx(ctx context.Context, fn func(Store) error) error

	GetOrCreateVehicle(ctx context.Context, v *lpr.Vehicle) (created bool, err error)
	UpdateVehicle(ctx context.Context, v *lpr.Vehicle) error
	GetVehicle(ctx context.Context, id int64) (*lpr.Vehicle, error)
	FindVehicleByPlate(ctx context.Context, plate string) (*lpr.Vehicle, error)
	// RecentPlatesByCamera returns the distinct canonical plates detected by
	// one camera since the given time, for the fuzzy resolver.
	RecentPlatesByCamera(ctx context.Context, cameraID int64, since time.Time) ([]string, error)

	CreateDetection(ctx context.Context, d *lpr.Detection) error
	UpdateDetection(ctx context.Context, d *lpr.Detection) error
	GetDetection(ctx context.Context, id int64) (*lpr.Detection, error)
	FindRecentDetection(ctx context.Context, vehicleID, cameraID int64, since time.Time) (*lpr.Detection, error)
	ListDetections(ctx context.Context, f DetectionFilter) ([]lpr.Detection, error)

	CreateStolenReport(ctx context.Context, r *lpr.StolenVehicleReport) error
	UpdateStolenReport(ctx context.Context, r *lpr.StolenVehicleReport) error
	ActiveStolenReport(ctx context.Context, vehicleID int64) (*lpr.StolenVehicleReport, error)
	StolenReportByNumber(ctx context.Context, number string) (*lpr.StolenVehicleReport, error)

	CreateAlert(ctx context.Context, a *lpr.Alert) error
	UpdateAlert(ctx context.Context, a *lpr.Alert) error
	GetAlert(ctx context.Context, id int64) (*lpr.Alert, error)
	FindOpenAlert(ctx context.Context, vehicleID int64, t lpr.AlertType) (*lpr.Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]lpr.Alert, error)

	GetCamera(ctx context.Context, id int64) (*lpr.Camera, error)
}

// Notifier receives alert events for asynchronous fan-out (email, push,
// dashboards). Delivery failures are the notifier's concern.
type Notifier interface {
	AlertRaised(ctx context.Context, ev lpr.AlertEvent)
	AlertUpdated(ctx context.Context, ev lpr.AlertEvent)
}
