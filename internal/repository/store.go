package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"platewatch/internal/domain/lpr"
	"platewatch/internal/service"
)

// Store is the postgres-backed implementation of service.Store.
type Store struct {
	db   *gorm.DB
	inTx bool
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(service.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true})
	})
}

// locked adds FOR UPDATE inside a transaction. Row lookups that precede a
// write (vehicle resolution before the dedup check and descriptor merge,
// alert lookup before relink or transition) must serialize per row under
// READ COMMITTED; plain reads outside a transaction stay lock-free.
func (s *Store) locked(q *gorm.DB) *gorm.DB {
	if s.inTx {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// GetOrCreateVehicle inserts a vehicle guarded by the unique plate index.
// When a concurrent insert wins, the surviving row is loaded back into v so
// callers always end up with the one canonical identity.
func (s *Store) GetOrCreateVehicle(ctx context.Context, v *lpr.Vehicle) (bool, error) {
	now := time.Now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = now
	}
	row := vehicleToRow(v)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plate_number"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		v.ID = row.ID
		return true, nil
	}

	existing, err := s.FindVehicleByPlate(ctx, v.PlateNumber)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, gorm.ErrRecordNotFound
	}
	*v = *existing
	return false, nil
}

func (s *Store) UpdateVehicle(ctx context.Context, v *lpr.Vehicle) error {
	row := vehicleToRow(v)
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) GetVehicle(ctx context.Context, id int64) (*lpr.Vehicle, error) {
	var row vehicleRow
	err := s.locked(s.db.WithContext(ctx)).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToVehicle(row), nil
}

func (s *Store) FindVehicleByPlate(ctx context.Context, plate string) (*lpr.Vehicle, error) {
	var row vehicleRow
	err := s.locked(s.db.WithContext(ctx)).Where("plate_number = ?", plate).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToVehicle(row), nil
}

func (s *Store) RecentPlatesByCamera(ctx context.Context, cameraID int64, since time.Time) ([]string, error) {
	var plates []string
	err := s.db.WithContext(ctx).
		Model(&detectionRow{}).
		Distinct("plate_number").
		Where("camera_id = ? AND detected_at >= ?", cameraID, since).
		Pluck("plate_number", &plates).Error
	return plates, err
}

func (s *Store) CreateDetection(ctx context.Context, d *lpr.Detection) error {
	row := detectionToRow(d)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	d.ID = row.ID
	return nil
}

func (s *Store) UpdateDetection(ctx context.Context, d *lpr.Detection) error {
	row := detectionToRow(d)
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) GetDetection(ctx context.Context, id int64) (*lpr.Detection, error) {
	var row detectionRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToDetection(row), nil
}

func (s *Store) FindRecentDetection(ctx context.Context, vehicleID, cameraID int64, since time.Time) (*lpr.Detection, error) {
	var row detectionRow
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND camera_id = ? AND detected_at >= ?", vehicleID, cameraID, since).
		Order("detected_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToDetection(row), nil
}

func (s *Store) ListDetections(ctx context.Context, f service.DetectionFilter) ([]lpr.Detection, error) {
	query := s.db.WithContext(ctx).Model(&detectionRow{})
	if f.Plate != nil {
		query = query.Where("plate_number = ?", *f.Plate)
	}
	if f.CameraID != nil {
		query = query.Where("camera_id = ?", *f.CameraID)
	}
	if f.From != nil {
		query = query.Where("detected_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("detected_at <= ?", *f.To)
	}
	query = query.Order("detected_at DESC")
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var rows []detectionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	detections := make([]lpr.Detection, 0, len(rows))
	for _, r := range rows {
		detections = append(detections, *rowToDetection(r))
	}
	return detections, nil
}

func (s *Store) CreateStolenReport(ctx context.Context, r *lpr.StolenVehicleReport) error {
	row := reportToRow(r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	r.ID = row.ID
	return nil
}

func (s *Store) UpdateStolenReport(ctx context.Context, r *lpr.StolenVehicleReport) error {
	row := reportToRow(r)
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) ActiveStolenReport(ctx context.Context, vehicleID int64) (*lpr.StolenVehicleReport, error) {
	var row stolenReportRow
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND is_active", vehicleID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToReport(row), nil
}

func (s *Store) StolenReportByNumber(ctx context.Context, number string) (*lpr.StolenVehicleReport, error) {
	var row stolenReportRow
	err := s.locked(s.db.WithContext(ctx)).Where("report_number = ?", number).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToReport(row), nil
}

func (s *Store) CreateAlert(ctx context.Context, a *lpr.Alert) error {
	row := alertToRow(a)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	a.ID = row.ID
	return nil
}

func (s *Store) UpdateAlert(ctx context.Context, a *lpr.Alert) error {
	row := alertToRow(a)
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) GetAlert(ctx context.Context, id int64) (*lpr.Alert, error) {
	var row alertRow
	err := s.locked(s.db.WithContext(ctx)).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToAlert(row), nil
}

func (s *Store) FindOpenAlert(ctx context.Context, vehicleID int64, t lpr.AlertType) (*lpr.Alert, error) {
	var row alertRow
	err := s.locked(s.db.WithContext(ctx)).
		Where("vehicle_id = ? AND type = ? AND status IN ?",
			vehicleID, string(t), []string{string(lpr.AlertStatusNew), string(lpr.AlertStatusAcknowledged)}).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToAlert(row), nil
}

func (s *Store) ListAlerts(ctx context.Context, f service.AlertFilter) ([]lpr.Alert, error) {
	query := s.db.WithContext(ctx).Model(&alertRow{})
	if f.Status != nil {
		query = query.Where("status = ?", string(*f.Status))
	}
	if f.Type != nil {
		query = query.Where("type = ?", string(*f.Type))
	}
	if f.VehicleID != nil {
		query = query.Where("vehicle_id = ?", *f.VehicleID)
	}
	query = query.Order("created_at DESC")
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var rows []alertRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	alerts := make([]lpr.Alert, 0, len(rows))
	for _, r := range rows {
		alerts = append(alerts, *rowToAlert(r))
	}
	return alerts, nil
}

func (s *Store) GetCamera(ctx context.Context, id int64) (*lpr.Camera, error) {
	var row cameraRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lpr.Camera{
		ID:           row.ID,
		Name:         row.Name,
		LocationName: row.LocationName,
		Status:       row.Status,
		IsActive:     row.IsActive,
	}, nil
}
