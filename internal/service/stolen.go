package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"platewatch/internal/domain/lpr"
	"platewatch/internal/utils"
)

// StolenReportInput is the operator-supplied part of a theft report.
type StolenReportInput struct {
	PlateNumber    string     `json:"plate_number"`
	ReportNumber   string     `json:"report_number,omitempty"`
	StolenDate     *time.Time `json:"stolen_date,omitempty"`
	StolenLocation string     `json:"stolen_location,omitempty"`
	Description    string     `json:"description,omitempty"`
	PoliceStation  string     `json:"police_station,omitempty"`
	ContactPerson  string     `json:"contact_person,omitempty"`
	ContactPhone   string     `json:"contact_phone,omitempty"`
}

// RecoveryInput records how an active report was closed.
type RecoveryInput struct {
	RecoveredDate     *time.Time `json:"recovered_date,omitempty"`
	RecoveredLocation string     `json:"recovered_location,omitempty"`
	RecoveryNotes     string     `json:"recovery_notes,omitempty"`
}

// StolenService owns the theft-report lifecycle. The report table is
// authoritative; Vehicle.IsStolen is a derived cache kept in sync inside
// the same transaction as the report write.
type StolenService struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewStolenService(store Store, log zerolog.Logger) *StolenService {
	return &StolenService{store: store, log: log, now: time.Now}
}

// ReportStolen files a report for a plate, creating the vehicle if it has
// never been sighted. A vehicle with an active report cannot get a second
// one.
func (s *StolenService) ReportStolen(ctx context.Context, in StolenReportInput, reportedByID int64) (*lpr.StolenVehicleReport, error) {
	plate := utils.NormalizePlate(in.PlateNumber)
	if plate == "" {
		return nil, fmt.Errorf("%w: plate_number is required", ErrInvalidInput)
	}
	reportNumber := strings.TrimSpace(in.ReportNumber)
	if reportNumber == "" {
		reportNumber = "SVR-" + strings.ToUpper(uuid.NewString()[:8])
	}
	stolenDate := s.now()
	if in.StolenDate != nil {
		stolenDate = *in.StolenDate
	}

	var report *lpr.StolenVehicleReport
	err := s.store.InTx(ctx, func(tx Store) error {
		vehicle := &lpr.Vehicle{PlateNumber: plate, Country: "BENIN"}
		if _, err := tx.GetOrCreateVehicle(ctx, vehicle); err != nil {
			return err
		}
		active, err := tx.ActiveStolenReport(ctx, vehicle.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: vehicle %s already has active report %s",
				ErrInvalidInput, plate, active.ReportNumber)
		}

		now := s.now()
		report = &lpr.StolenVehicleReport{
			VehicleID:    vehicle.ID,
			PlateNumber:  plate,
			ReportNumber: reportNumber,
			StolenDate:   stolenDate,
			IsActive:     true,
			ReportedByID: reportedByID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		setOptional(&report.StolenLocation, in.StolenLocation)
		setOptional(&report.Description, in.Description)
		setOptional(&report.PoliceStation, in.PoliceStation)
		setOptional(&report.ContactPerson, in.ContactPerson)
		setOptional(&report.ContactPhone, in.ContactPhone)
		if err := tx.CreateStolenReport(ctx, report); err != nil {
			return err
		}

		vehicle.IsStolen = true
		vehicle.UpdatedAt = now
		return tx.UpdateVehicle(ctx, vehicle)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("plate", plate).
		Str("report_number", report.ReportNumber).
		Msg("stolen vehicle report filed")
	return report, nil
}

// MarkRecovered closes an active report and recomputes the vehicle flag
// from remaining active reports.
func (s *StolenService) MarkRecovered(ctx context.Context, reportNumber string, in RecoveryInput, recoveredByID int64) (*lpr.StolenVehicleReport, error) {
	var report *lpr.StolenVehicleReport
	err := s.store.InTx(ctx, func(tx Store) error {
		var err error
		report, err = tx.StolenReportByNumber(ctx, reportNumber)
		if err != nil {
			return err
		}
		if report == nil {
			return fmt.Errorf("%w: report %s", ErrNotFound, reportNumber)
		}
		if !report.IsActive {
			return fmt.Errorf("%w: report %s is already closed", ErrInvalidInput, reportNumber)
		}

		now := s.now()
		recoveredDate := now
		if in.RecoveredDate != nil {
			recoveredDate = *in.RecoveredDate
		}
		report.IsActive = false
		report.RecoveredDate = &recoveredDate
		report.RecoveredByID = &recoveredByID
		report.UpdatedAt = now
		setOptional(&report.RecoveredLocation, in.RecoveredLocation)
		setOptional(&report.RecoveryNotes, in.RecoveryNotes)
		if err := tx.UpdateStolenReport(ctx, report); err != nil {
			return err
		}

		vehicle, err := tx.GetVehicle(ctx, report.VehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return fmt.Errorf("%w: vehicle %d", ErrNotFound, report.VehicleID)
		}
		remaining, err := tx.ActiveStolenReport(ctx, vehicle.ID)
		if err != nil {
			return err
		}
		vehicle.IsStolen = remaining != nil
		vehicle.UpdatedAt = now
		return tx.UpdateVehicle(ctx, vehicle)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("report_number", reportNumber).
		Str("plate", report.PlateNumber).
		Msg("stolen vehicle report closed")
	return report, nil
}

func setOptional(dst **string, val string) {
	if v := strings.TrimSpace(val); v != "" {
		*dst = &v
	}
}
