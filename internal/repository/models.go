package repository

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"platewatch/internal/domain/lpr"
)

type vehicleRow struct {
	ID             int64   `gorm:"primaryKey"`
	PlateNumber    string  `gorm:"not null;uniqueIndex"`
	Brand          *string
	Model          *string
	Color          *string
	VehicleType    *string
	Year           *int
	Country        string         `gorm:"not null"`
	IsStolen       bool           `gorm:"not null"`
	AttrConfidence datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (vehicleRow) TableName() string { return "vehicles" }

type detectionRow struct {
	ID                    int64   `gorm:"primaryKey"`
	VehicleID             int64   `gorm:"not null;index:idx_detections_dedup,priority:1"`
	CameraID              int64   `gorm:"not null;index:idx_detections_dedup,priority:2"`
	PlateNumber           string  `gorm:"not null;index"`
	Confidence            float64 `gorm:"not null"`
	DetectionConfidence   float64
	RecognitionConfidence float64
	OCRText               string         `gorm:"column:ocr_text"`
	BoundingBox           datatypes.JSON `gorm:"type:jsonb"`
	Polygon               datatypes.JSON `gorm:"type:jsonb"`
	ProcessingTimeMs      float64
	VehicleType           *string
	VehicleColor          *string
	VehicleBrand          *string
	VehicleModel          *string
	IsAlertTriggered      bool      `gorm:"not null"`
	DetectedAt            time.Time `gorm:"not null;index:idx_detections_dedup,priority:3"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (detectionRow) TableName() string { return "detections" }

type stolenReportRow struct {
	ID                int64  `gorm:"primaryKey"`
	VehicleID         int64  `gorm:"not null;index"`
	PlateNumber       string `gorm:"not null;index"`
	ReportNumber      string `gorm:"not null;uniqueIndex"`
	StolenDate        time.Time `gorm:"not null"`
	StolenLocation    *string
	Description       *string
	PoliceStation     *string
	ContactPerson     *string
	ContactPhone      *string
	IsActive          bool `gorm:"not null"`
	RecoveredDate     *time.Time
	RecoveredLocation *string
	RecoveryNotes     *string
	ReportedByID      int64
	RecoveredByID     *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (stolenReportRow) TableName() string { return "stolen_vehicle_reports" }

type alertRow struct {
	ID               int64  `gorm:"primaryKey"`
	Type             string `gorm:"not null;index:idx_alerts_correlation,priority:2"`
	Severity         string `gorm:"not null"`
	Status           string `gorm:"not null;index:idx_alerts_correlation,priority:3"`
	Title            string `gorm:"not null"`
	Message          string `gorm:"not null"`
	Details          datatypes.JSONMap `gorm:"type:jsonb"`
	DetectionID      *int64
	VehicleID        *int64 `gorm:"index:idx_alerts_correlation,priority:1"`
	CameraID         *int64
	CreatedByID      *int64
	AcknowledgedByID *int64
	ResolvedByID     *int64
	AcknowledgedAt   *time.Time
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (alertRow) TableName() string { return "alerts" }

type cameraRow struct {
	ID           int64  `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	LocationName string `gorm:"not null"`
	Status       string `gorm:"not null"`
	IsActive     bool   `gorm:"not null"`
}

func (cameraRow) TableName() string { return "cameras" }

func toJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func vehicleToRow(v *lpr.Vehicle) vehicleRow {
	return vehicleRow{
		ID:             v.ID,
		PlateNumber:    v.PlateNumber,
		Brand:          v.Brand,
		Model:          v.Model,
		Color:          v.Color,
		VehicleType:    v.VehicleType,
		Year:           v.Year,
		Country:        v.Country,
		IsStolen:       v.IsStolen,
		AttrConfidence: toJSON(v.AttrConfidence),
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

func rowToVehicle(r vehicleRow) *lpr.Vehicle {
	v := &lpr.Vehicle{
		ID:          r.ID,
		PlateNumber: r.PlateNumber,
		Brand:       r.Brand,
		Model:       r.Model,
		Color:       r.Color,
		VehicleType: r.VehicleType,
		Year:        r.Year,
		Country:     r.Country,
		IsStolen:    r.IsStolen,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.AttrConfidence) > 0 {
		_ = json.Unmarshal(r.AttrConfidence, &v.AttrConfidence)
	}
	return v
}

func detectionToRow(d *lpr.Detection) detectionRow {
	return detectionRow{
		ID:                    d.ID,
		VehicleID:             d.VehicleID,
		CameraID:              d.CameraID,
		PlateNumber:           d.PlateNumber,
		Confidence:            d.Confidence,
		DetectionConfidence:   d.DetectionConfidence,
		RecognitionConfidence: d.RecognitionConfidence,
		OCRText:               d.OCRText,
		BoundingBox:           toJSON(d.BoundingBox),
		Polygon:               toJSON(d.Polygon),
		ProcessingTimeMs:      d.ProcessingTimeMs,
		VehicleType:           d.VehicleType,
		VehicleColor:          d.VehicleColor,
		VehicleBrand:          d.VehicleBrand,
		VehicleModel:          d.VehicleModel,
		IsAlertTriggered:      d.IsAlertTriggered,
		DetectedAt:            d.DetectedAt,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

func rowToDetection(r detectionRow) *lpr.Detection {
	d := &lpr.Detection{
		ID:                    r.ID,
		VehicleID:             r.VehicleID,
		CameraID:              r.CameraID,
		PlateNumber:           r.PlateNumber,
		Confidence:            r.Confidence,
		DetectionConfidence:   r.DetectionConfidence,
		RecognitionConfidence: r.RecognitionConfidence,
		OCRText:               r.OCRText,
		ProcessingTimeMs:      r.ProcessingTimeMs,
		VehicleType:           r.VehicleType,
		VehicleColor:          r.VehicleColor,
		VehicleBrand:          r.VehicleBrand,
		VehicleModel:          r.VehicleModel,
		IsAlertTriggered:      r.IsAlertTriggered,
		DetectedAt:            r.DetectedAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	if len(r.BoundingBox) > 0 {
		_ = json.Unmarshal(r.BoundingBox, &d.BoundingBox)
	}
	if len(r.Polygon) > 0 {
		_ = json.Unmarshal(r.Polygon, &d.Polygon)
	}
	return d
}

func reportToRow(r *lpr.StolenVehicleReport) stolenReportRow {
	return stolenReportRow{
		ID:                r.ID,
		VehicleID:         r.VehicleID,
		PlateNumber:       r.PlateNumber,
		ReportNumber:      r.ReportNumber,
		StolenDate:        r.StolenDate,
		StolenLocation:    r.StolenLocation,
		Description:       r.Description,
		PoliceStation:     r.PoliceStation,
		ContactPerson:     r.ContactPerson,
		ContactPhone:      r.ContactPhone,
		IsActive:          r.IsActive,
		RecoveredDate:     r.RecoveredDate,
		RecoveredLocation: r.RecoveredLocation,
		RecoveryNotes:     r.RecoveryNotes,
		ReportedByID:      r.ReportedByID,
		RecoveredByID:     r.RecoveredByID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func rowToReport(r stolenReportRow) *lpr.StolenVehicleReport {
	return &lpr.StolenVehicleReport{
		ID:                r.ID,
		VehicleID:         r.VehicleID,
		PlateNumber:       r.PlateNumber,
		ReportNumber:      r.ReportNumber,
		StolenDate:        r.StolenDate,
		StolenLocation:    r.StolenLocation,
		Description:       r.Description,
		PoliceStation:     r.PoliceStation,
		ContactPerson:     r.ContactPerson,
		ContactPhone:      r.ContactPhone,
		IsActive:          r.IsActive,
		RecoveredDate:     r.RecoveredDate,
		RecoveredLocation: r.RecoveredLocation,
		RecoveryNotes:     r.RecoveryNotes,
		ReportedByID:      r.ReportedByID,
		RecoveredByID:     r.RecoveredByID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func alertToRow(a *lpr.Alert) alertRow {
	return alertRow{
		ID:               a.ID,
		Type:             string(a.Type),
		Severity:         string(a.Severity),
		Status:           string(a.Status),
		Title:            a.Title,
		Message:          a.Message,
		Details:          datatypes.JSONMap(a.Details),
		DetectionID:      a.DetectionID,
		VehicleID:        a.VehicleID,
		CameraID:         a.CameraID,
		CreatedByID:      a.CreatedByID,
		AcknowledgedByID: a.AcknowledgedByID,
		ResolvedByID:     a.ResolvedByID,
		AcknowledgedAt:   a.AcknowledgedAt,
		ResolvedAt:       a.ResolvedAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func rowToAlert(r alertRow) *lpr.Alert {
	return &lpr.Alert{
		ID:               r.ID,
		Type:             lpr.AlertType(r.Type),
		Severity:         lpr.AlertSeverity(r.Severity),
		Status:           lpr.AlertStatus(r.Status),
		Title:            r.Title,
		Message:          r.Message,
		Details:          map[string]interface{}(r.Details),
		DetectionID:      r.DetectionID,
		VehicleID:        r.VehicleID,
		CameraID:         r.CameraID,
		CreatedByID:      r.CreatedByID,
		AcknowledgedByID: r.AcknowledgedByID,
		ResolvedByID:     r.ResolvedByID,
		AcknowledgedAt:   r.AcknowledgedAt,
		ResolvedAt:       r.ResolvedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
