package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"platewatch/internal/config"
	"platewatch/internal/domain/lpr"
	"platewatch/internal/metrics"
	"platewatch/internal/utils"
)

// Pipeline turns raw per-frame model output into Detections and Alerts:
// confidence fusion, plate normalization, dedup, identity resolution, stolen
// matching and alert correlation. One invocation per raw detection.
type Pipeline struct {
	store    Store
	notifier Notifier
	cfg      config.EngineConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewPipeline(store Store, notifier Notifier, cfg config.EngineConfig, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// ProcessRawDetection runs the full pipeline for one observation. The
// detection write and the alert write are separate atomic units: if the
// alert write fails after the detection committed, the returned error wraps
// ErrAlertPersistence and the result still carries the committed detection;
// callers retry via RetryAlertCorrelation, never by re-running the pipeline.
func (p *Pipeline) ProcessRawDetection(ctx context.Context, raw lpr.RawDetection) (*lpr.ProcessResult, error) {
	if raw.CameraID == 0 {
		return nil, fmt.Errorf("%w: camera_id is required", ErrInvalidInput)
	}
	if raw.DetectedAt.IsZero() {
		raw.DetectedAt = p.now()
	}
	camera, err := p.store.GetCamera(ctx, raw.CameraID)
	if err != nil {
		return nil, fmt.Errorf("look up camera %d: %w", raw.CameraID, err)
	}
	if camera == nil {
		return nil, fmt.Errorf("%w: unknown camera %d", ErrInvalidInput, raw.CameraID)
	}

	fused := p.fuse(raw.DetectionConfidence, raw.RecognitionConfidence)
	text := strings.TrimSpace(raw.PlateText)
	if text == "" || fused < p.cfg.DiscardFloor {
		metrics.DetectionsDiscarded.Inc()
		p.log.Debug().
			Str("raw_plate", raw.PlateText).
			Float64("confidence", fused).
			Int64("camera_id", raw.CameraID).
			Msg("raw detection discarded below confidence floor")
		return &lpr.ProcessResult{Outcome: lpr.OutcomeDiscarded, Confidence: fused}, nil
	}

	normalized := utils.NormalizePlate(text)
	if normalized == "" {
		metrics.DetectionsDiscarded.Inc()
		return &lpr.ProcessResult{Outcome: lpr.OutcomeDiscarded, Confidence: fused}, nil
	}
	lowBand := fused < p.cfg.LowConfidenceThreshold

	var (
		vehicle   *lpr.Vehicle
		detection *lpr.Detection
		isNew     bool
		outcome   lpr.Outcome
	)
	err = p.store.InTx(ctx, func(tx Store) error {
		var err error
		vehicle, isNew, err = p.resolveVehicle(ctx, tx, normalized, raw, fused)
		if err != nil {
			return err
		}
		detection, outcome, err = p.dedup(ctx, tx, vehicle, raw, normalized, fused)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("persist detection for plate %s camera %d at %s: %w",
			normalized, raw.CameraID, raw.DetectedAt.Format(time.RFC3339), err)
	}

	result := &lpr.ProcessResult{
		Outcome:      outcome,
		DetectionID:  detection.ID,
		VehicleID:    vehicle.ID,
		Plate:        normalized,
		Confidence:   fused,
		IsNewVehicle: isNew,
	}

	switch outcome {
	case lpr.OutcomeCreated:
		metrics.DetectionsCreated.Inc()
	case lpr.OutcomeRefined:
		metrics.DetectionsRefined.Inc()
		return result, nil
	case lpr.OutcomeSuppressed:
		metrics.DetectionsSuppressed.Inc()
		return result, nil
	}

	p.log.Info().
		Int64("detection_id", detection.ID).
		Int64("vehicle_id", vehicle.ID).
		Str("plate", normalized).
		Str("raw_plate", raw.PlateText).
		Int64("camera_id", raw.CameraID).
		Float64("confidence", fused).
		Bool("new_vehicle", isNew).
		Msg("detection persisted")

	// the detection is committed: the invocation is past its cancellation
	// point and the alert step runs to completion even if the caller's
	// context is gone
	alertCtx := context.WithoutCancel(ctx)
	alert, updated, err := p.correlateAlert(alertCtx, detection, vehicle, lowBand, isNew && raw.SuspicionHint)
	if err != nil {
		return result, fmt.Errorf("%w: plate %s camera %d detection %d: %v",
			ErrAlertPersistence, normalized, raw.CameraID, detection.ID, err)
	}
	if alert != nil {
		result.AlertID = alert.ID
		result.AlertType = string(alert.Type)
		p.publish(alertCtx, alert, vehicle.PlateNumber, raw.CameraID, detection.ID, updated)
	}
	return result, nil
}

// RetryAlertCorrelation re-runs the alert step for a committed detection
// after an ErrAlertPersistence. Stolen and low-confidence rules re-evaluate
// from stored state; the first-sighting suspicion rule cannot recur because
// the vehicle now has history.
func (p *Pipeline) RetryAlertCorrelation(ctx context.Context, detectionID int64) (*lpr.Alert, error) {
	detection, err := p.store.GetDetection(ctx, detectionID)
	if err != nil {
		return nil, err
	}
	if detection == nil {
		return nil, fmt.Errorf("%w: detection %d", ErrNotFound, detectionID)
	}
	vehicle, err := p.store.GetVehicle(ctx, detection.VehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		return nil, fmt.Errorf("%w: vehicle %d", ErrNotFound, detection.VehicleID)
	}
	lowBand := detection.Confidence < p.cfg.LowConfidenceThreshold
	alert, updated, err := p.correlateAlert(ctx, detection, vehicle, lowBand, false)
	if err != nil {
		return nil, fmt.Errorf("%w: detection %d: %v", ErrAlertPersistence, detectionID, err)
	}
	if alert != nil {
		p.publish(ctx, alert, vehicle.PlateNumber, detection.CameraID, detection.ID, updated)
	}
	return alert, nil
}

// fuse combines the two model confidences into one reliability score,
// clipped to [0,1].
func (p *Pipeline) fuse(det, rec float64) float64 {
	c := p.cfg.DetectionWeight*det + p.cfg.RecognitionWeight*rec
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// resolveVehicle maps a canonical plate to a Vehicle: exact match first,
// then a bounded fuzzy pass over plates recently seen by the same camera,
// then lazy creation. Creation goes through the store's conditional insert
// so concurrent sightings of one plate converge on a single row.
func (p *Pipeline) resolveVehicle(ctx context.Context, tx Store, plate string, raw lpr.RawDetection, fused float64) (*lpr.Vehicle, bool, error) {
	vehicle, err := tx.FindVehicleByPlate(ctx, plate)
	if err != nil {
		return nil, false, err
	}

	if vehicle == nil {
		candidate, err := p.fuzzyCandidate(ctx, tx, plate, raw)
		if err != nil {
			return nil, false, err
		}
		if candidate != "" {
			vehicle, err = tx.FindVehicleByPlate(ctx, candidate)
			if err != nil {
				return nil, false, err
			}
			if vehicle != nil {
				p.log.Debug().
					Str("plate", plate).
					Str("resolved_plate", candidate).
					Int64("camera_id", raw.CameraID).
					Msg("fuzzy-resolved plate to existing vehicle")
			}
		}
	}

	if vehicle == nil {
		vehicle = newVehicleFromRaw(plate, raw, fused)
		created, err := tx.GetOrCreateVehicle(ctx, vehicle)
		if err != nil {
			return nil, false, err
		}
		// created==false means a concurrent invocation won the insert; the
		// store filled vehicle with the winner's row and we merge into it.
		if created {
			return vehicle, true, nil
		}
	}

	if p.mergeDescriptors(vehicle, raw, fused) {
		vehicle.UpdatedAt = p.now()
		if err := tx.UpdateVehicle(ctx, vehicle); err != nil {
			return nil, false, err
		}
	}
	return vehicle, false, nil
}

// fuzzyCandidate returns the single recent same-camera plate within the
// configured edit distance, or "" when none or more than one qualifies. Two
// distinct candidates are an identity conflict, resolved conservatively by
// creating a new vehicle.
func (p *Pipeline) fuzzyCandidate(ctx context.Context, tx Store, plate string, raw lpr.RawDetection) (string, error) {
	if p.cfg.FuzzyMaxDistance <= 0 {
		return "", nil
	}
	since := raw.DetectedAt.Add(-p.cfg.FuzzyWindow)
	recent, err := tx.RecentPlatesByCamera(ctx, raw.CameraID, since)
	if err != nil {
		return "", err
	}
	var candidates []string
	for _, other := range recent {
		if other != plate && utils.WithinEditDistance(plate, other, p.cfg.FuzzyMaxDistance) {
			candidates = append(candidates, other)
		}
	}
	switch len(candidates) {
	case 0:
		return "", nil
	case 1:
		return candidates[0], nil
	default:
		p.log.Warn().
			Str("plate", plate).
			Strs("candidates", candidates).
			Int64("camera_id", raw.CameraID).
			Msg("ambiguous fuzzy match, treating as new vehicle")
		return "", nil
	}
}

// dedup collapses repeat sightings of one vehicle at one camera inside the
// dedup window into a single Detection row that keeps the best observation.
func (p *Pipeline) dedup(ctx context.Context, tx Store, vehicle *lpr.Vehicle, raw lpr.RawDetection, plate string, fused float64) (*lpr.Detection, lpr.Outcome, error) {
	since := raw.DetectedAt.Add(-p.cfg.DedupWindow)
	prev, err := tx.FindRecentDetection(ctx, vehicle.ID, raw.CameraID, since)
	if err != nil {
		return nil, "", err
	}
	if prev != nil {
		if fused <= prev.Confidence {
			return prev, lpr.OutcomeSuppressed, nil
		}
		applyObservation(prev, raw, plate, fused)
		prev.UpdatedAt = p.now()
		if err := tx.UpdateDetection(ctx, prev); err != nil {
			return nil, "", err
		}
		return prev, lpr.OutcomeRefined, nil
	}

	detection := &lpr.Detection{
		VehicleID: vehicle.ID,
		CreatedAt: p.now(),
		UpdatedAt: p.now(),
	}
	applyObservation(detection, raw, plate, fused)
	if err := tx.CreateDetection(ctx, detection); err != nil {
		return nil, "", err
	}
	return detection, lpr.OutcomeCreated, nil
}

// correlateAlert decides the alert rule for a freshly created detection and
// either relinks the open (vehicle, type) alert or creates a new one. Runs
// in its own transaction so a failure leaves the detection committed.
func (p *Pipeline) correlateAlert(ctx context.Context, detection *lpr.Detection, vehicle *lpr.Vehicle, lowBand, suspicious bool) (alert *lpr.Alert, updated bool, err error) {
	err = p.store.InTx(ctx, func(tx Store) error {
		report, err := tx.ActiveStolenReport(ctx, vehicle.ID)
		if err != nil {
			return err
		}

		var alertType lpr.AlertType
		var severity lpr.AlertSeverity
		switch {
		case report != nil:
			alertType, severity = lpr.AlertTypeStolenVehicle, lpr.SeverityCritical
		case lowBand:
			alertType, severity = lpr.AlertTypeLowConfidence, lpr.SeverityLow
		case suspicious:
			alertType, severity = lpr.AlertTypeSuspiciousVehicle, lpr.SeverityMedium
		default:
			return nil
		}

		open, err := tx.FindOpenAlert(ctx, vehicle.ID, alertType)
		if err != nil {
			return err
		}
		now := p.now()
		if open != nil {
			open.DetectionID = &detection.ID
			open.UpdatedAt = now
			if err := tx.UpdateAlert(ctx, open); err != nil {
				return err
			}
			alert, updated = open, true
		} else {
			a := buildAlert(alertType, severity, detection, vehicle, report, now)
			if err := tx.CreateAlert(ctx, a); err != nil {
				return err
			}
			alert = a
		}

		detection.IsAlertTriggered = true
		detection.UpdatedAt = now
		return tx.UpdateDetection(ctx, detection)
	})
	if err != nil {
		return nil, false, err
	}
	return alert, updated, nil
}

func (p *Pipeline) publish(ctx context.Context, alert *lpr.Alert, plate string, cameraID, detectionID int64, updated bool) {
	ev := lpr.AlertEvent{
		AlertID:     alert.ID,
		Type:        alert.Type,
		Severity:    alert.Severity,
		Plate:       plate,
		CameraID:    cameraID,
		DetectionID: detectionID,
	}
	if updated {
		metrics.AlertsUpdated.WithLabelValues(string(alert.Type)).Inc()
		p.notifier.AlertUpdated(ctx, ev)
	} else {
		metrics.AlertsRaised.WithLabelValues(string(alert.Type)).Inc()
		p.notifier.AlertRaised(ctx, ev)
	}
	p.log.Info().
		Int64("alert_id", alert.ID).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("plate", plate).
		Bool("updated", updated).
		Msg("alert correlated")
}

func newVehicleFromRaw(plate string, raw lpr.RawDetection, fused float64) *lpr.Vehicle {
	v := &lpr.Vehicle{
		PlateNumber:    plate,
		Country:        "BENIN",
		AttrConfidence: map[string]float64{},
	}
	setAttr(&v.Brand, "brand", raw.VehicleBrand, fused, v.AttrConfidence)
	setAttr(&v.Model, "model", raw.VehicleModel, fused, v.AttrConfidence)
	setAttr(&v.Color, "color", raw.VehicleColor, fused, v.AttrConfidence)
	setAttr(&v.VehicleType, "vehicle_type", raw.VehicleType, fused, v.AttrConfidence)
	return v
}

// mergeDescriptors overwrites a vehicle attribute only when the new sighting
// is more confident than whichever sighting last wrote that attribute.
func (p *Pipeline) mergeDescriptors(v *lpr.Vehicle, raw lpr.RawDetection, fused float64) bool {
	if v.AttrConfidence == nil {
		v.AttrConfidence = map[string]float64{}
	}
	changed := false
	changed = mergeAttr(&v.Brand, "brand", raw.VehicleBrand, fused, v.AttrConfidence) || changed
	changed = mergeAttr(&v.Model, "model", raw.VehicleModel, fused, v.AttrConfidence) || changed
	changed = mergeAttr(&v.Color, "color", raw.VehicleColor, fused, v.AttrConfidence) || changed
	changed = mergeAttr(&v.VehicleType, "vehicle_type", raw.VehicleType, fused, v.AttrConfidence) || changed
	return changed
}

func setAttr(dst **string, key, val string, conf float64, attrConf map[string]float64) {
	if val == "" {
		return
	}
	v := val
	*dst = &v
	attrConf[key] = conf
}

func mergeAttr(dst **string, key, val string, conf float64, attrConf map[string]float64) bool {
	if val == "" {
		return false
	}
	if *dst != nil && conf <= attrConf[key] {
		return false
	}
	v := val
	*dst = &v
	attrConf[key] = conf
	return true
}

func applyObservation(d *lpr.Detection, raw lpr.RawDetection, plate string, fused float64) {
	d.CameraID = raw.CameraID
	d.PlateNumber = plate
	d.Confidence = fused
	d.DetectionConfidence = raw.DetectionConfidence
	d.RecognitionConfidence = raw.RecognitionConfidence
	d.OCRText = raw.PlateText
	d.BoundingBox = raw.BoundingBox
	d.Polygon = raw.Polygon
	d.ProcessingTimeMs = raw.ProcessingTimeMs
	d.DetectedAt = raw.DetectedAt
	if raw.VehicleType != "" {
		t := raw.VehicleType
		d.VehicleType = &t
	}
	if raw.VehicleColor != "" {
		c := raw.VehicleColor
		d.VehicleColor = &c
	}
	if raw.VehicleBrand != "" {
		b := raw.VehicleBrand
		d.VehicleBrand = &b
	}
	if raw.VehicleModel != "" {
		m := raw.VehicleModel
		d.VehicleModel = &m
	}
}

func buildAlert(t lpr.AlertType, sev lpr.AlertSeverity, detection *lpr.Detection, vehicle *lpr.Vehicle, report *lpr.StolenVehicleReport, now time.Time) *lpr.Alert {
	details := map[string]interface{}{
		"plate":      vehicle.PlateNumber,
		"camera_id":  detection.CameraID,
		"confidence": detection.Confidence,
	}
	var title, message string
	switch t {
	case lpr.AlertTypeStolenVehicle:
		title = fmt.Sprintf("Stolen vehicle detected: %s", vehicle.PlateNumber)
		message = fmt.Sprintf("Vehicle %s with active theft report %s detected by camera %d",
			vehicle.PlateNumber, report.ReportNumber, detection.CameraID)
		details["report_number"] = report.ReportNumber
	case lpr.AlertTypeLowConfidence:
		title = fmt.Sprintf("Low confidence detection: %s", vehicle.PlateNumber)
		message = fmt.Sprintf("Plate %s detected by camera %d with confidence %.2f, manual review advised",
			vehicle.PlateNumber, detection.CameraID, detection.Confidence)
	case lpr.AlertTypeSuspiciousVehicle:
		title = fmt.Sprintf("Suspicious vehicle: %s", vehicle.PlateNumber)
		message = fmt.Sprintf("First sighting of %s flagged by camera %d heuristics",
			vehicle.PlateNumber, detection.CameraID)
	}
	return &lpr.Alert{
		Type:        t,
		Severity:    sev,
		Status:      lpr.AlertStatusNew,
		Title:       title,
		Message:     message,
		Details:     details,
		DetectionID: &detection.ID,
		VehicleID:   &vehicle.ID,
		CameraID:    &detection.CameraID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
