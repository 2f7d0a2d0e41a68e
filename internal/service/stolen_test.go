package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"platewatch/internal/repository/memory"
	"platewatch/internal/service"
)

func TestStolenService_ReportSetsVehicleFlag(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewStolenService(store, zerolog.Nop())
	ctx := context.Background()

	report, err := svc.ReportStolen(ctx, service.StolenReportInput{
		PlateNumber:    "xy 789 zw",
		StolenLocation: "Cotonou",
	}, 7)
	if err != nil {
		t.Fatalf("ReportStolen: %v", err)
	}
	if !report.IsActive {
		t.Error("new report must be active")
	}
	if report.ReportNumber == "" {
		t.Error("report number must be generated when absent")
	}
	if report.PlateNumber != "XY789ZW" {
		t.Errorf("plate = %q, want normalized XY789ZW", report.PlateNumber)
	}

	vehicle, err := store.FindVehicleByPlate(ctx, "XY789ZW")
	if err != nil || vehicle == nil {
		t.Fatalf("vehicle not created: %v", err)
	}
	if !vehicle.IsStolen {
		t.Error("vehicle is_stolen must be derived true from the active report")
	}
}

func TestStolenService_RejectsSecondActiveReport(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewStolenService(store, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.ReportStolen(ctx, service.StolenReportInput{PlateNumber: "XY789ZW"}, 7); err != nil {
		t.Fatal(err)
	}
	_, err := svc.ReportStolen(ctx, service.StolenReportInput{PlateNumber: "XY789ZW"}, 7)
	if !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestStolenService_RecoveryClearsVehicleFlag(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewStolenService(store, zerolog.Nop())
	ctx := context.Background()

	report, err := svc.ReportStolen(ctx, service.StolenReportInput{PlateNumber: "XY789ZW"}, 7)
	if err != nil {
		t.Fatal(err)
	}

	recovered, err := svc.MarkRecovered(ctx, report.ReportNumber, service.RecoveryInput{
		RecoveredLocation: "Porto-Novo",
	}, 9)
	if err != nil {
		t.Fatalf("MarkRecovered: %v", err)
	}
	if recovered.IsActive {
		t.Error("recovered report must be inactive")
	}
	if recovered.RecoveredDate == nil || recovered.RecoveredByID == nil || *recovered.RecoveredByID != 9 {
		t.Error("recovery audit fields must be set")
	}

	vehicle, _ := store.FindVehicleByPlate(ctx, "XY789ZW")
	if vehicle.IsStolen {
		t.Error("vehicle is_stolen must be recomputed false after recovery")
	}

	// historical report stays queryable, recovery is final
	if _, err := svc.MarkRecovered(ctx, report.ReportNumber, service.RecoveryInput{}, 9); !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("double recovery err = %v, want ErrInvalidInput", err)
	}
}

func TestStolenService_RecoverUnknownReport(t *testing.T) {
	store := memory.NewStore()
	svc := service.NewStolenService(store, zerolog.Nop())

	if _, err := svc.MarkRecovered(context.Background(), "SVR-NOPE", service.RecoveryInput{}, 1); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
