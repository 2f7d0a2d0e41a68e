package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              BIGSERIAL PRIMARY KEY,
		email           TEXT NOT NULL,
		first_name      TEXT,
		last_name       TEXT,
		role            TEXT NOT NULL DEFAULT 'viewer',
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_email ON users(email);`,
	`CREATE TABLE IF NOT EXISTS cameras (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT NOT NULL,
		location_name   TEXT NOT NULL,
		latitude        DOUBLE PRECISION,
		longitude       DOUBLE PRECISION,
		status          TEXT NOT NULL DEFAULT 'offline',
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id              BIGSERIAL PRIMARY KEY,
		plate_number    TEXT NOT NULL,
		brand           TEXT,
		model           TEXT,
		color           TEXT,
		vehicle_type    TEXT,
		year            INT,
		country         TEXT NOT NULL DEFAULT 'BENIN',
		is_stolen       BOOLEAN NOT NULL DEFAULT FALSE,
		attr_confidence JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_vehicles_plate_number ON vehicles(plate_number);`,
	`CREATE TABLE IF NOT EXISTS detections (
		id                      BIGSERIAL PRIMARY KEY,
		vehicle_id              BIGINT NOT NULL REFERENCES vehicles(id),
		camera_id               BIGINT NOT NULL,
		plate_number            TEXT NOT NULL,
		confidence              DOUBLE PRECISION NOT NULL,
		detection_confidence    DOUBLE PRECISION,
		recognition_confidence  DOUBLE PRECISION,
		ocr_text                TEXT,
		bounding_box            JSONB,
		polygon                 JSONB,
		processing_time_ms      DOUBLE PRECISION,
		vehicle_type            TEXT,
		vehicle_color           TEXT,
		vehicle_brand           TEXT,
		vehicle_model           TEXT,
		is_alert_triggered      BOOLEAN NOT NULL DEFAULT FALSE,
		detected_at             TIMESTAMPTZ NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_dedup ON detections(vehicle_id, camera_id, detected_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_plate_number ON detections(plate_number);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_camera_detected ON detections(camera_id, detected_at DESC);`,
	`CREATE TABLE IF NOT EXISTS stolen_vehicle_reports (
		id                  BIGSERIAL PRIMARY KEY,
		vehicle_id          BIGINT NOT NULL REFERENCES vehicles(id),
		plate_number        TEXT NOT NULL,
		report_number       TEXT NOT NULL,
		stolen_date         TIMESTAMPTZ NOT NULL,
		stolen_location     TEXT,
		description         TEXT,
		police_station      TEXT,
		contact_person      TEXT,
		contact_phone       TEXT,
		is_active           BOOLEAN NOT NULL DEFAULT TRUE,
		recovered_date      TIMESTAMPTZ,
		recovered_location  TEXT,
		recovery_notes      TEXT,
		reported_by_id      BIGINT REFERENCES users(id),
		recovered_by_id     BIGINT REFERENCES users(id),
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_stolen_reports_number ON stolen_vehicle_reports(report_number);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_stolen_reports_active_vehicle
		ON stolen_vehicle_reports(vehicle_id) WHERE is_active;`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id                  BIGSERIAL PRIMARY KEY,
		type                TEXT NOT NULL,
		severity            TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'new',
		title               TEXT NOT NULL,
		message             TEXT NOT NULL,
		details             JSONB,
		detection_id        BIGINT REFERENCES detections(id),
		vehicle_id          BIGINT REFERENCES vehicles(id),
		camera_id           BIGINT,
		created_by_id       BIGINT REFERENCES users(id),
		acknowledged_by_id  BIGINT REFERENCES users(id),
		resolved_by_id      BIGINT REFERENCES users(id),
		acknowledged_at     TIMESTAMPTZ,
		resolved_at         TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);`,
	// one open alert per (vehicle, type): the correlation engine relinks
	// instead of inserting, this index backstops races between instances
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_alerts_open_vehicle_type
		ON alerts(vehicle_id, type) WHERE status IN ('new', 'acknowledged');`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
