package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"platewatch/internal/config"
	"platewatch/internal/domain/lpr"
	"platewatch/internal/repository/memory"
	"platewatch/internal/service"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		DetectionWeight:        0.5,
		RecognitionWeight:      0.5,
		DiscardFloor:           0.35,
		LowConfidenceThreshold: 0.55,
		DedupWindow:            30 * time.Second,
		FuzzyWindow:            10 * time.Minute,
		FuzzyMaxDistance:       1,
	}
}

type recordingNotifier struct {
	raised  []lpr.AlertEvent
	updated []lpr.AlertEvent
}

func (n *recordingNotifier) AlertRaised(_ context.Context, ev lpr.AlertEvent) {
	n.raised = append(n.raised, ev)
}

func (n *recordingNotifier) AlertUpdated(_ context.Context, ev lpr.AlertEvent) {
	n.updated = append(n.updated, ev)
}

func newTestPipeline(t *testing.T) (*service.Pipeline, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.NewStore()
	for id := int64(1); id <= 3; id++ {
		store.AddCamera(lpr.Camera{ID: id, Name: "cam", LocationName: "test", Status: "online", IsActive: true})
	}
	notifier := &recordingNotifier{}
	p := service.NewPipeline(store, notifier, testEngineConfig(), zerolog.Nop())
	return p, store, notifier
}

func rawDetection(plate string, cameraID int64, conf float64, at time.Time) lpr.RawDetection {
	return lpr.RawDetection{
		CameraID:              cameraID,
		PlateText:             plate,
		DetectionConfidence:   conf,
		RecognitionConfidence: conf,
		BoundingBox:           lpr.BoundingBox{X: 10, Y: 20, Width: 120, Height: 40},
		DetectedAt:            at,
	}
}

func allAlerts(t *testing.T, store *memory.Store) []lpr.Alert {
	t.Helper()
	alerts, err := store.ListAlerts(context.Background(), service.AlertFilter{})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	return alerts
}

func allDetections(t *testing.T, store *memory.Store) []lpr.Detection {
	t.Helper()
	detections, err := store.ListDetections(context.Background(), service.DetectionFilter{})
	if err != nil {
		t.Fatalf("ListDetections: %v", err)
	}
	return detections
}

func TestPipeline_DiscardsBelowFloor(t *testing.T) {
	p, store, notifier := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.3, time.Now()))
	if err != nil {
		t.Fatalf("ProcessRawDetection: %v", err)
	}
	if result.Outcome != lpr.OutcomeDiscarded {
		t.Fatalf("outcome = %s, want %s", result.Outcome, lpr.OutcomeDiscarded)
	}
	if len(allDetections(t, store)) != 0 {
		t.Error("discarded detection must not be persisted")
	}
	if len(allAlerts(t, store)) != 0 || len(notifier.raised) != 0 {
		t.Error("discarded detection must not raise alerts")
	}
}

func TestPipeline_RejectsUnknownCamera(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	_, err := p.ProcessRawDetection(context.Background(), rawDetection("AB123CD", 99, 0.9, time.Now()))
	if !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestPipeline_DiscardsEmptyPlate(t *testing.T) {
	p, store, _ := newTestPipeline(t)

	result, err := p.ProcessRawDetection(context.Background(), rawDetection("  ", 1, 0.9, time.Now()))
	if err != nil {
		t.Fatalf("ProcessRawDetection: %v", err)
	}
	if result.Outcome != lpr.OutcomeDiscarded {
		t.Fatalf("outcome = %s, want discarded", result.Outcome)
	}
	if len(allDetections(t, store)) != 0 {
		t.Error("empty plate must not be persisted")
	}
}

func TestPipeline_FirstSightingCreatesVehicleWithoutAlert(t *testing.T) {
	p, store, notifier := newTestPipeline(t)
	ctx := context.Background()

	raw := rawDetection("AB123CD", 1, 0, time.Now())
	raw.DetectionConfidence = 0.9
	raw.RecognitionConfidence = 0.85

	result, err := p.ProcessRawDetection(ctx, raw)
	if err != nil {
		t.Fatalf("ProcessRawDetection: %v", err)
	}
	if result.Outcome != lpr.OutcomeCreated {
		t.Fatalf("outcome = %s, want created", result.Outcome)
	}
	if !result.IsNewVehicle {
		t.Error("expected a new vehicle")
	}
	if want := (0.9 + 0.85) / 2; result.Confidence != want {
		t.Errorf("fused confidence = %v, want %v", result.Confidence, want)
	}

	vehicle, err := store.FindVehicleByPlate(ctx, "AB123CD")
	if err != nil || vehicle == nil {
		t.Fatalf("vehicle not created: %v", err)
	}
	detections := allDetections(t, store)
	if len(detections) != 1 {
		t.Fatalf("detections = %d, want 1", len(detections))
	}
	if detections[0].IsAlertTriggered {
		t.Error("no alert expected, is_alert_triggered must be false")
	}
	if len(allAlerts(t, store)) != 0 || len(notifier.raised) != 0 {
		t.Error("no alert expected for a clean high-confidence sighting")
	}
}

func TestPipeline_DedupKeepsBestObservation(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	base := time.Now()

	outcomes := []lpr.Outcome{}
	for i, conf := range []float64{0.6, 0.8, 0.7} {
		result, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, conf, base.Add(time.Duration(i)*2*time.Second)))
		if err != nil {
			t.Fatalf("ProcessRawDetection #%d: %v", i, err)
		}
		outcomes = append(outcomes, result.Outcome)
	}

	want := []lpr.Outcome{lpr.OutcomeCreated, lpr.OutcomeRefined, lpr.OutcomeSuppressed}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("outcome #%d = %s, want %s", i, outcomes[i], want[i])
		}
	}

	detections := allDetections(t, store)
	if len(detections) != 1 {
		t.Fatalf("detections = %d, want 1", len(detections))
	}
	if detections[0].Confidence != 0.8 {
		t.Errorf("kept confidence = %v, want 0.8", detections[0].Confidence)
	}
}

func TestPipeline_DedupIsPerCamera(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.9, now)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 2, 0.9, now)); err != nil {
		t.Fatal(err)
	}

	if got := len(allDetections(t, store)); got != 2 {
		t.Fatalf("detections = %d, want 2 (one per camera)", got)
	}
}

func TestPipeline_LowConfidenceBandRaisesAlert(t *testing.T) {
	p, store, notifier := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.45, time.Now()))
	if err != nil {
		t.Fatalf("ProcessRawDetection: %v", err)
	}
	if result.Outcome != lpr.OutcomeCreated {
		t.Fatalf("outcome = %s, want created", result.Outcome)
	}
	if result.AlertType != string(lpr.AlertTypeLowConfidence) {
		t.Fatalf("alert type = %q, want low_confidence", result.AlertType)
	}

	alerts := allAlerts(t, store)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != lpr.SeverityLow || alerts[0].Status != lpr.AlertStatusNew {
		t.Errorf("alert = %s/%s, want low/new", alerts[0].Severity, alerts[0].Status)
	}
	detections := allDetections(t, store)
	if !detections[0].IsAlertTriggered {
		t.Error("is_alert_triggered must be set")
	}
	if len(notifier.raised) != 1 {
		t.Errorf("raised events = %d, want 1", len(notifier.raised))
	}
}

func TestPipeline_StolenVehicleAlertCorrelation(t *testing.T) {
	p, store, notifier := newTestPipeline(t)
	ctx := context.Background()
	stolen := service.NewStolenService(store, zerolog.Nop())

	if _, err := stolen.ReportStolen(ctx, service.StolenReportInput{PlateNumber: "XY789ZW"}, 7); err != nil {
		t.Fatalf("ReportStolen: %v", err)
	}

	base := time.Now()
	first, err := p.ProcessRawDetection(ctx, rawDetection("XY789ZW", 1, 0.9, base))
	if err != nil {
		t.Fatalf("first detection: %v", err)
	}
	second, err := p.ProcessRawDetection(ctx, rawDetection("XY789ZW", 2, 0.9, base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("second detection: %v", err)
	}

	detections := allDetections(t, store)
	if len(detections) != 2 {
		t.Fatalf("detections = %d, want 2", len(detections))
	}
	for _, d := range detections {
		if !d.IsAlertTriggered {
			t.Errorf("detection %d must be alert-triggered", d.ID)
		}
	}

	alerts := allAlerts(t, store)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly one open stolen alert", len(alerts))
	}
	alert := alerts[0]
	if alert.Type != lpr.AlertTypeStolenVehicle || alert.Severity != lpr.SeverityCritical {
		t.Errorf("alert = %s/%s, want stolen_vehicle/critical", alert.Type, alert.Severity)
	}
	if alert.DetectionID == nil || *alert.DetectionID != second.DetectionID {
		t.Errorf("alert must point at the latest detection %d", second.DetectionID)
	}
	if first.AlertID != second.AlertID {
		t.Errorf("both detections must correlate to alert %d", first.AlertID)
	}
	if len(notifier.raised) != 1 || len(notifier.updated) != 1 {
		t.Errorf("events = %d raised / %d updated, want 1/1", len(notifier.raised), len(notifier.updated))
	}
}

func TestPipeline_SuspiciousOnlyOnFirstSighting(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	base := time.Now()

	raw := rawDetection("AB123CD", 1, 0.9, base)
	raw.SuspicionHint = true
	result, err := p.ProcessRawDetection(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if result.AlertType != string(lpr.AlertTypeSuspiciousVehicle) {
		t.Fatalf("alert type = %q, want suspicious_vehicle", result.AlertType)
	}

	// known vehicle now: the hint no longer fires
	raw2 := rawDetection("AB123CD", 2, 0.9, base.Add(time.Minute))
	raw2.SuspicionHint = true
	result2, err := p.ProcessRawDetection(ctx, raw2)
	if err != nil {
		t.Fatal(err)
	}
	if result2.AlertID != 0 {
		t.Errorf("second sighting must not raise an alert, got alert %d", result2.AlertID)
	}
	if got := len(allAlerts(t, store)); got != 1 {
		t.Errorf("alerts = %d, want 1", got)
	}
}

func TestPipeline_FuzzyAbsorbsSingleCharSlip(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	base := time.Now()

	first, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.9, base))
	if err != nil {
		t.Fatal(err)
	}
	slipped, err := p.ProcessRawDetection(ctx, rawDetection("AB123CO", 1, 0.9, base.Add(time.Minute)))
	if err != nil {
		t.Fatal(err)
	}

	if slipped.VehicleID != first.VehicleID {
		t.Errorf("slip resolved to vehicle %d, want %d", slipped.VehicleID, first.VehicleID)
	}
	if slipped.IsNewVehicle {
		t.Error("slip must not create a new vehicle")
	}
	if v, _ := store.FindVehicleByPlate(ctx, "AB123CO"); v != nil {
		t.Error("no vehicle row expected for the misread plate")
	}
}

func TestPipeline_AmbiguousFuzzyCreatesNewVehicle(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	base := time.Now()

	if _, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.9, base)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ProcessRawDetection(ctx, rawDetection("AB123EF", 1, 0.9, base.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}

	// distance one from both recent plates: conservative path, new vehicle
	result, err := p.ProcessRawDetection(ctx, rawDetection("AB123CF", 1, 0.9, base.Add(2*time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsNewVehicle {
		t.Error("ambiguous fuzzy match must create a new vehicle")
	}
	if v, _ := store.FindVehicleByPlate(ctx, "AB123CF"); v == nil {
		t.Error("vehicle AB123CF should exist")
	}
}

func TestPipeline_ResolutionIsIdempotent(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()
	base := time.Now()

	first, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.9, base))
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.9, base.Add(2*time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if second.VehicleID != first.VehicleID {
		t.Errorf("vehicle id changed: %d vs %d", first.VehicleID, second.VehicleID)
	}
	if second.IsNewVehicle {
		t.Error("second resolution must reuse the vehicle")
	}
}

func TestPipeline_DescriptorMergeRespectsConfidence(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	base := time.Now()

	raw := rawDetection("AB123CD", 1, 0.9, base)
	raw.VehicleColor = "red"
	if _, err := p.ProcessRawDetection(ctx, raw); err != nil {
		t.Fatal(err)
	}

	weaker := rawDetection("AB123CD", 2, 0.6, base.Add(time.Minute))
	weaker.VehicleColor = "blue"
	if _, err := p.ProcessRawDetection(ctx, weaker); err != nil {
		t.Fatal(err)
	}
	vehicle, _ := store.FindVehicleByPlate(ctx, "AB123CD")
	if vehicle.Color == nil || *vehicle.Color != "red" {
		t.Errorf("lower confidence sighting must not overwrite color, got %v", vehicle.Color)
	}

	stronger := rawDetection("AB123CD", 3, 0.95, base.Add(2*time.Minute))
	stronger.VehicleColor = "blue"
	if _, err := p.ProcessRawDetection(ctx, stronger); err != nil {
		t.Fatal(err)
	}
	vehicle, _ = store.FindVehicleByPlate(ctx, "AB123CD")
	if vehicle.Color == nil || *vehicle.Color != "blue" {
		t.Errorf("higher confidence sighting must overwrite color, got %v", vehicle.Color)
	}
}

func TestPipeline_FuzzyDistanceZeroDisablesResolution(t *testing.T) {
	store := memory.NewStore()
	store.AddCamera(lpr.Camera{ID: 1, Name: "cam", Status: "online", IsActive: true})
	cfg := testEngineConfig()
	cfg.FuzzyMaxDistance = 0
	p := service.NewPipeline(store, &recordingNotifier{}, cfg, zerolog.Nop())
	ctx := context.Background()
	base := time.Now()

	if _, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.9, base)); err != nil {
		t.Fatal(err)
	}
	slipped, err := p.ProcessRawDetection(ctx, rawDetection("AB123CO", 1, 0.9, base.Add(time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if !slipped.IsNewVehicle {
		t.Error("with fuzzy resolution disabled the slip must create its own vehicle")
	}
	if v, _ := store.FindVehicleByPlate(ctx, "AB123CO"); v == nil {
		t.Error("vehicle AB123CO should exist")
	}
}

func TestPipeline_ConcurrentSightingsProduceOneDetection(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	now := time.Now()

	var wg sync.WaitGroup
	confs := []float64{0.6, 0.7, 0.8, 0.9, 0.75}
	for _, conf := range confs {
		wg.Add(1)
		go func(c float64) {
			defer wg.Done()
			if _, err := p.ProcessRawDetection(context.Background(), rawDetection("AB123CD", 1, c, now)); err != nil {
				t.Errorf("ProcessRawDetection: %v", err)
			}
		}(conf)
	}
	wg.Wait()

	detections := allDetections(t, store)
	if len(detections) != 1 {
		t.Fatalf("detections = %d, want 1 for concurrent sightings of one plate", len(detections))
	}
	if detections[0].Confidence != 0.9 {
		t.Errorf("kept confidence = %v, want the best observation 0.9", detections[0].Confidence)
	}
}

// flakyStore wraps a service.Store and fails a bounded number of CreateAlert
// calls, for exercising the alert-write failure path.
type flakyStore struct {
	service.Store
	alertFailures *int
}

func (f *flakyStore) InTx(ctx context.Context, fn func(service.Store) error) error {
	return f.Store.InTx(ctx, func(tx service.Store) error {
		return fn(&flakyStore{Store: tx, alertFailures: f.alertFailures})
	})
}

func (f *flakyStore) CreateAlert(ctx context.Context, a *lpr.Alert) error {
	if *f.alertFailures > 0 {
		*f.alertFailures--
		return errors.New("alert insert failed")
	}
	return f.Store.CreateAlert(ctx, a)
}

func TestPipeline_AlertWriteFailureLeavesDetectionCommitted(t *testing.T) {
	mem := memory.NewStore()
	mem.AddCamera(lpr.Camera{ID: 1, Name: "cam", Status: "online", IsActive: true})
	failures := 1
	notifier := &recordingNotifier{}
	p := service.NewPipeline(&flakyStore{Store: mem, alertFailures: &failures}, notifier, testEngineConfig(), zerolog.Nop())
	ctx := context.Background()

	result, err := p.ProcessRawDetection(ctx, rawDetection("AB123CD", 1, 0.45, time.Now()))
	if !errors.Is(err, service.ErrAlertPersistence) {
		t.Fatalf("err = %v, want ErrAlertPersistence", err)
	}
	if result == nil || result.DetectionID == 0 || result.Outcome != lpr.OutcomeCreated {
		t.Fatalf("result must carry the committed detection, got %+v", result)
	}

	detection, err := mem.GetDetection(ctx, result.DetectionID)
	if err != nil || detection == nil {
		t.Fatalf("detection %d must be committed: %v", result.DetectionID, err)
	}
	if detection.IsAlertTriggered {
		t.Error("is_alert_triggered must stay false until the alert commits")
	}
	if len(allAlerts(t, mem)) != 0 || len(notifier.raised) != 0 {
		t.Error("no alert row or event expected after the failed write")
	}

	alert, err := p.RetryAlertCorrelation(ctx, result.DetectionID)
	if err != nil {
		t.Fatalf("RetryAlertCorrelation: %v", err)
	}
	if alert == nil || alert.Type != lpr.AlertTypeLowConfidence {
		t.Fatalf("retry must raise the low confidence alert, got %+v", alert)
	}
	detection, _ = mem.GetDetection(ctx, result.DetectionID)
	if !detection.IsAlertTriggered {
		t.Error("is_alert_triggered must be set after the retry")
	}
	if len(notifier.raised) != 1 {
		t.Errorf("raised events = %d, want 1", len(notifier.raised))
	}
}

func TestPipeline_RetryAlertCorrelationIsIdempotent(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	stolen := service.NewStolenService(store, zerolog.Nop())

	if _, err := stolen.ReportStolen(ctx, service.StolenReportInput{PlateNumber: "XY789ZW"}, 1); err != nil {
		t.Fatal(err)
	}
	result, err := p.ProcessRawDetection(ctx, rawDetection("XY789ZW", 1, 0.9, time.Now()))
	if err != nil {
		t.Fatal(err)
	}

	alert, err := p.RetryAlertCorrelation(ctx, result.DetectionID)
	if err != nil {
		t.Fatalf("RetryAlertCorrelation: %v", err)
	}
	if alert == nil || alert.ID != result.AlertID {
		t.Fatalf("retry must relink the existing alert %d", result.AlertID)
	}
	if got := len(allAlerts(t, store)); got != 1 {
		t.Errorf("alerts = %d, want 1 after retry", got)
	}
}
