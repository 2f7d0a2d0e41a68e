// Package memory holds an in-memory service.Store used by tests. Writes are
// serialized by one mutex, which also stands in for transaction atomicity;
// there is no rollback, so a failed transaction in a test leaves partial
// state, same as a test double should make visible.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"platewatch/internal/domain/lpr"
	"platewatch/internal/service"
)

type state struct {
	mu sync.Mutex

	vehicles   map[int64]*lpr.Vehicle
	detections map[int64]*lpr.Detection
	reports    map[int64]*lpr.StolenVehicleReport
	alerts     map[int64]*lpr.Alert
	cameras    map[int64]*lpr.Camera

	nextVehicleID   int64
	nextDetectionID int64
	nextReportID    int64
	nextAlertID     int64
}

// Store implements service.Store over process-local maps.
type Store struct {
	st   *state
	inTx bool
}

func NewStore() *Store {
	return &Store{st: &state{
		vehicles:   map[int64]*lpr.Vehicle{},
		detections: map[int64]*lpr.Detection{},
		reports:    map[int64]*lpr.StolenVehicleReport{},
		alerts:     map[int64]*lpr.Alert{},
		cameras:    map[int64]*lpr.Camera{},
	}}
}

// AddCamera seeds camera context for tests.
func (s *Store) AddCamera(c lpr.Camera) {
	defer s.lock()()
	cc := c
	s.st.cameras[c.ID] = &cc
}

func (s *Store) InTx(ctx context.Context, fn func(service.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return fn(&Store{st: s.st, inTx: true})
}

// lock is a no-op inside a transaction, which already holds the mutex.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.st.mu.Lock()
	return s.st.mu.Unlock
}

func (s *Store) GetOrCreateVehicle(ctx context.Context, v *lpr.Vehicle) (bool, error) {
	defer s.lock()()
	for _, existing := range s.st.vehicles {
		if existing.PlateNumber == v.PlateNumber {
			*v = *cloneVehicle(existing)
			return false, nil
		}
	}
	s.st.nextVehicleID++
	v.ID = s.st.nextVehicleID
	now := time.Now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = now
	}
	s.st.vehicles[v.ID] = cloneVehicle(v)
	return true, nil
}

func (s *Store) UpdateVehicle(ctx context.Context, v *lpr.Vehicle) error {
	defer s.lock()()
	s.st.vehicles[v.ID] = cloneVehicle(v)
	return nil
}

func (s *Store) GetVehicle(ctx context.Context, id int64) (*lpr.Vehicle, error) {
	defer s.lock()()
	v, ok := s.st.vehicles[id]
	if !ok {
		return nil, nil
	}
	return cloneVehicle(v), nil
}

func (s *Store) FindVehicleByPlate(ctx context.Context, plate string) (*lpr.Vehicle, error) {
	defer s.lock()()
	for _, v := range s.st.vehicles {
		if v.PlateNumber == plate {
			return cloneVehicle(v), nil
		}
	}
	return nil, nil
}

func (s *Store) RecentPlatesByCamera(ctx context.Context, cameraID int64, since time.Time) ([]string, error) {
	defer s.lock()()
	seen := map[string]bool{}
	var plates []string
	for _, d := range s.st.detections {
		if d.CameraID == cameraID && !d.DetectedAt.Before(since) && !seen[d.PlateNumber] {
			seen[d.PlateNumber] = true
			plates = append(plates, d.PlateNumber)
		}
	}
	return plates, nil
}

func (s *Store) CreateDetection(ctx context.Context, d *lpr.Detection) error {
	defer s.lock()()
	s.st.nextDetectionID++
	d.ID = s.st.nextDetectionID
	s.st.detections[d.ID] = cloneDetection(d)
	return nil
}

func (s *Store) UpdateDetection(ctx context.Context, d *lpr.Detection) error {
	defer s.lock()()
	s.st.detections[d.ID] = cloneDetection(d)
	return nil
}

func (s *Store) GetDetection(ctx context.Context, id int64) (*lpr.Detection, error) {
	defer s.lock()()
	d, ok := s.st.detections[id]
	if !ok {
		return nil, nil
	}
	return cloneDetection(d), nil
}

func (s *Store) FindRecentDetection(ctx context.Context, vehicleID, cameraID int64, since time.Time) (*lpr.Detection, error) {
	defer s.lock()()
	var best *lpr.Detection
	for _, d := range s.st.detections {
		if d.VehicleID != vehicleID || d.CameraID != cameraID || d.DetectedAt.Before(since) {
			continue
		}
		if best == nil || d.DetectedAt.After(best.DetectedAt) {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneDetection(best), nil
}

func (s *Store) ListDetections(ctx context.Context, f service.DetectionFilter) ([]lpr.Detection, error) {
	defer s.lock()()
	var out []lpr.Detection
	for _, d := range s.st.detections {
		if f.Plate != nil && d.PlateNumber != *f.Plate {
			continue
		}
		if f.CameraID != nil && d.CameraID != *f.CameraID {
			continue
		}
		if f.From != nil && d.DetectedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && d.DetectedAt.After(*f.To) {
			continue
		}
		out = append(out, *cloneDetection(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return page(out, f.Limit, f.Offset), nil
}

func (s *Store) CreateStolenReport(ctx context.Context, r *lpr.StolenVehicleReport) error {
	defer s.lock()()
	s.st.nextReportID++
	r.ID = s.st.nextReportID
	rr := *r
	s.st.reports[r.ID] = &rr
	return nil
}

func (s *Store) UpdateStolenReport(ctx context.Context, r *lpr.StolenVehicleReport) error {
	defer s.lock()()
	rr := *r
	s.st.reports[r.ID] = &rr
	return nil
}

func (s *Store) ActiveStolenReport(ctx context.Context, vehicleID int64) (*lpr.StolenVehicleReport, error) {
	defer s.lock()()
	for _, r := range s.st.reports {
		if r.VehicleID == vehicleID && r.IsActive {
			rr := *r
			return &rr, nil
		}
	}
	return nil, nil
}

func (s *Store) StolenReportByNumber(ctx context.Context, number string) (*lpr.StolenVehicleReport, error) {
	defer s.lock()()
	for _, r := range s.st.reports {
		if r.ReportNumber == number {
			rr := *r
			return &rr, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateAlert(ctx context.Context, a *lpr.Alert) error {
	defer s.lock()()
	s.st.nextAlertID++
	a.ID = s.st.nextAlertID
	s.st.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *Store) UpdateAlert(ctx context.Context, a *lpr.Alert) error {
	defer s.lock()()
	s.st.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *Store) GetAlert(ctx context.Context, id int64) (*lpr.Alert, error) {
	defer s.lock()()
	a, ok := s.st.alerts[id]
	if !ok {
		return nil, nil
	}
	return cloneAlert(a), nil
}

func (s *Store) FindOpenAlert(ctx context.Context, vehicleID int64, t lpr.AlertType) (*lpr.Alert, error) {
	defer s.lock()()
	var latest *lpr.Alert
	for _, a := range s.st.alerts {
		if a.VehicleID == nil || *a.VehicleID != vehicleID || a.Type != t || !a.Status.IsOpen() {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneAlert(latest), nil
}

func (s *Store) ListAlerts(ctx context.Context, f service.AlertFilter) ([]lpr.Alert, error) {
	defer s.lock()()
	var out []lpr.Alert
	for _, a := range s.st.alerts {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Type != nil && a.Type != *f.Type {
			continue
		}
		if f.VehicleID != nil && (a.VehicleID == nil || *a.VehicleID != *f.VehicleID) {
			continue
		}
		out = append(out, *cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), nil
}

// page mirrors the sql store's LIMIT/OFFSET handling.
func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) GetCamera(ctx context.Context, id int64) (*lpr.Camera, error) {
	defer s.lock()()
	c, ok := s.st.cameras[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func cloneVehicle(v *lpr.Vehicle) *lpr.Vehicle {
	vv := *v
	if v.AttrConfidence != nil {
		vv.AttrConfidence = make(map[string]float64, len(v.AttrConfidence))
		for k, c := range v.AttrConfidence {
			vv.AttrConfidence[k] = c
		}
	}
	return &vv
}

func cloneDetection(d *lpr.Detection) *lpr.Detection {
	dd := *d
	if d.Polygon != nil {
		dd.Polygon = append([][]float64(nil), d.Polygon...)
	}
	return &dd
}

func cloneAlert(a *lpr.Alert) *lpr.Alert {
	aa := *a
	if a.Details != nil {
		aa.Details = make(map[string]interface{}, len(a.Details))
		for k, v := range a.Details {
			aa.Details[k] = v
		}
	}
	return &aa
}
