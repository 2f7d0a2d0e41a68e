package lpr

import (
	"time"
)

// BoundingBox locates a plate within a camera frame, in pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RawDetection is a single per-frame plate observation from the external
// detection/OCR model. It is never persisted directly; the pipeline either
// discards it or folds it into a Detection.
type RawDetection struct {
	CameraID              int64       `json:"camera_id"`
	PlateText             string      `json:"plate_text"`
	DetectionConfidence   float64     `json:"detection_confidence"`
	RecognitionConfidence float64     `json:"recognition_confidence"`
	BoundingBox           BoundingBox `json:"bounding_box"`
	Polygon               [][]float64 `json:"polygon,omitempty"`
	VehicleType           string      `json:"vehicle_type,omitempty"`
	VehicleColor          string      `json:"vehicle_color,omitempty"`
	VehicleBrand          string      `json:"vehicle_brand,omitempty"`
	VehicleModel          string      `json:"vehicle_model,omitempty"`
	// SuspicionHint is set by the camera-side heuristic (e.g. vehicle type
	// mismatch for the lane) and is only honored for first sightings.
	SuspicionHint    bool      `json:"suspicion_hint,omitempty"`
	ProcessingTimeMs float64   `json:"processing_time_ms,omitempty"`
	DetectedAt       time.Time `json:"detected_at"`
}

// Vehicle is a durable identity keyed by canonical plate number. Descriptive
// attributes are filled in lazily from sightings; AttrConfidence records the
// fused confidence of the sighting that last wrote each attribute so a later
// lower-confidence sighting never overwrites a better one.
type Vehicle struct {
	ID             int64
	PlateNumber    string
	Brand          *string
	Model          *string
	Color          *string
	VehicleType    *string
	Year           *int
	Country        string
	IsStolen       bool
	AttrConfidence map[string]float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Detection is a persisted, camera-attributed sighting. Within the dedup
// window it may be refined in place by a higher-confidence observation of the
// same vehicle at the same camera; otherwise it is immutable except for
// IsAlertTriggered.
type Detection struct {
	ID                    int64
	VehicleID             int64
	CameraID              int64
	PlateNumber           string
	Confidence            float64
	DetectionConfidence   float64
	RecognitionConfidence float64
	OCRText               string
	BoundingBox           BoundingBox
	Polygon               [][]float64
	ProcessingTimeMs      float64
	VehicleType           *string
	VehicleColor          *string
	VehicleBrand          *string
	VehicleModel          *string
	IsAlertTriggered      bool
	DetectedAt            time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StolenVehicleReport is an open theft report. A vehicle has at most one
// active report; recovered reports are kept for history.
type StolenVehicleReport struct {
	ID                int64
	VehicleID         int64
	PlateNumber       string
	ReportNumber      string
	StolenDate        time.Time
	StolenLocation    *string
	Description       *string
	PoliceStation     *string
	ContactPerson     *string
	ContactPhone      *string
	IsActive          bool
	RecoveredDate     *time.Time
	RecoveredLocation *string
	RecoveryNotes     *string
	ReportedByID      int64
	RecoveredByID     *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Camera is slowly-changing context owned by the stream-management side;
// this engine reads it for validation and alert linkage only.
type Camera struct {
	ID           int64
	Name         string
	LocationName string
	Status       string
	IsActive     bool
}

// Outcome classifies what the pipeline did with one raw detection.
type Outcome string

const (
	// OutcomeDiscarded: empty text or fused confidence below the floor;
	// nothing was written.
	OutcomeDiscarded Outcome = "discarded_low_confidence"
	// OutcomeCreated: a new Detection row was written.
	OutcomeCreated Outcome = "created"
	// OutcomeRefined: an in-window Detection was updated with this
	// higher-confidence observation.
	OutcomeRefined Outcome = "refined"
	// OutcomeSuppressed: an in-window Detection with equal or better
	// confidence already exists; the observation was dropped.
	OutcomeSuppressed Outcome = "suppressed"
)

// ProcessResult reports the pipeline outcome for one raw detection.
type ProcessResult struct {
	Outcome      Outcome `json:"outcome"`
	DetectionID  int64   `json:"detection_id,omitempty"`
	VehicleID    int64   `json:"vehicle_id,omitempty"`
	Plate        string  `json:"plate,omitempty"`
	Confidence   float64 `json:"confidence"`
	IsNewVehicle bool    `json:"is_new_vehicle,omitempty"`
	AlertID      int64   `json:"alert_id,omitempty"`
	AlertType    string  `json:"alert_type,omitempty"`
}

// AlertEvent is the payload published to the notifier when an alert is
// raised or relinked to a newer detection.
type AlertEvent struct {
	AlertID     int64         `json:"alert_id"`
	Type        AlertType     `json:"type"`
	Severity    AlertSeverity `json:"severity"`
	Plate       string        `json:"plate"`
	CameraID    int64         `json:"camera_id"`
	DetectionID int64         `json:"detection_id"`
}
