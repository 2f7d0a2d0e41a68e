package service

import (
	"context"
	"fmt"
	"time"

	"platewatch/internal/domain/lpr"
	"platewatch/internal/utils"
)

// QueryService is the read side for the HTTP layer: vehicle lookup and
// detection listings.
type QueryService struct {
	store Store
}

func NewQueryService(store Store) *QueryService {
	return &QueryService{store: store}
}

func (s *QueryService) FindVehicle(ctx context.Context, plateQuery string) (*lpr.Vehicle, error) {
	plate := utils.NormalizePlate(plateQuery)
	if plate == "" {
		return nil, fmt.Errorf("%w: plate query cannot be empty", ErrInvalidInput)
	}
	vehicle, err := s.store.FindVehicleByPlate(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("failed to find vehicle: %w", err)
	}
	if vehicle == nil {
		return nil, fmt.Errorf("%w: vehicle %s", ErrNotFound, plate)
	}
	return vehicle, nil
}

func (s *QueryService) FindDetections(ctx context.Context, plateQuery *string, from, to *string, cameraID *int64, limit, offset int) ([]lpr.Detection, error) {
	var f DetectionFilter
	if plateQuery != nil {
		if plate := utils.NormalizePlate(*plateQuery); plate != "" {
			f.Plate = &plate
		}
	}
	f.CameraID = cameraID

	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		f.From = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		f.To = &t
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	f.Limit = limit
	f.Offset = offset

	detections, err := s.store.ListDetections(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to find detections: %w", err)
	}
	return detections, nil
}
