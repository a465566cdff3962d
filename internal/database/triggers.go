package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/pkg/logger"
)

// The desktop client writes straight to the clinical tables, so notification
// capture for that path has to live in the database engine itself. These
// AFTER INSERT triggers insert a matching notification row for any clinical
// insert whose notify_handled marker is not set; the in-process event hook
// sets the marker inside its own transaction, which keeps the two producers
// mutually exclusive on the same logical write.
//
// The trigger bodies only insert a row. No dispatch happens here; rows
// created by this path stay emailed=false until the catch-up sweep runs.
const captureTriggerSQL = `
CREATE OR REPLACE FUNCTION epetcare_notify_appointment() RETURNS trigger AS $$
DECLARE
    v_owner_id UUID;
    v_pet_name TEXT;
BEGIN
    IF NEW.notify_handled THEN
        RETURN NEW;
    END IF;
    SELECT p.owner_id, p.name INTO v_owner_id, v_pet_name FROM pets p WHERE p.id = NEW.pet_id;
    IF v_owner_id IS NOT NULL THEN
        INSERT INTO notifications (id, owner_id, kind, title, message, is_read, emailed, source_table, source_id, created_at, updated_at)
        VALUES (
            gen_random_uuid(),
            v_owner_id,
            'appointment_created',
            'Appointment Scheduled',
            CONCAT('An appointment for ', v_pet_name, ' was scheduled on ', to_char(NEW.date_time, 'Mon DD, HH24:MI'), '.'),
            FALSE,
            FALSE,
            'appointments',
            NEW.id,
            NOW(),
            NOW()
        );
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_appointment_notify ON appointments;
CREATE TRIGGER trg_appointment_notify
AFTER INSERT ON appointments
FOR EACH ROW EXECUTE FUNCTION epetcare_notify_appointment();

CREATE OR REPLACE FUNCTION epetcare_notify_medical_record() RETURNS trigger AS $$
DECLARE
    v_owner_id UUID;
    v_pet_name TEXT;
BEGIN
    IF NEW.notify_handled THEN
        RETURN NEW;
    END IF;
    SELECT p.owner_id, p.name INTO v_owner_id, v_pet_name FROM pets p WHERE p.id = NEW.pet_id;
    IF v_owner_id IS NOT NULL THEN
        INSERT INTO notifications (id, owner_id, kind, title, message, is_read, emailed, source_table, source_id, created_at, updated_at)
        VALUES (
            gen_random_uuid(),
            v_owner_id,
            'medical_record_added',
            'New Medical Record',
            CONCAT('A new medical record for ', v_pet_name, ' was added: ', NEW.condition, '.'),
            FALSE,
            FALSE,
            'medical_records',
            NEW.id,
            NOW(),
            NOW()
        );
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_medical_record_notify ON medical_records;
CREATE TRIGGER trg_medical_record_notify
AFTER INSERT ON medical_records
FOR EACH ROW EXECUTE FUNCTION epetcare_notify_medical_record();

CREATE OR REPLACE FUNCTION epetcare_notify_prescription() RETURNS trigger AS $$
DECLARE
    v_owner_id UUID;
    v_pet_name TEXT;
BEGIN
    IF NEW.notify_handled THEN
        RETURN NEW;
    END IF;
    SELECT p.owner_id, p.name INTO v_owner_id, v_pet_name FROM pets p WHERE p.id = NEW.pet_id;
    IF v_owner_id IS NOT NULL THEN
        INSERT INTO notifications (id, owner_id, kind, title, message, is_read, emailed, source_table, source_id, created_at, updated_at)
        VALUES (
            gen_random_uuid(),
            v_owner_id,
            'prescription_issued',
            'New Prescription',
            CONCAT('A new prescription for ', v_pet_name, ' was added: ', NEW.medication_name, ' (', NEW.dosage, ').'),
            FALSE,
            FALSE,
            'prescriptions',
            NEW.id,
            NOW(),
            NOW()
        );
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_prescription_notify ON prescriptions;
CREATE TRIGGER trg_prescription_notify
AFTER INSERT ON prescriptions
FOR EACH ROW EXECUTE FUNCTION epetcare_notify_prescription();
`

const dropCaptureTriggerSQL = `
DROP TRIGGER IF EXISTS trg_appointment_notify ON appointments;
DROP FUNCTION IF EXISTS epetcare_notify_appointment();
DROP TRIGGER IF EXISTS trg_medical_record_notify ON medical_records;
DROP FUNCTION IF EXISTS epetcare_notify_medical_record();
DROP TRIGGER IF EXISTS trg_prescription_notify ON prescriptions;
DROP FUNCTION IF EXISTS epetcare_notify_prescription();
`

// InstallCaptureTriggers installs the trigger-based capture path. Only
// postgres supports it; on other drivers direct desktop writes are not
// captured and the deployment is expected to run the web tier only.
func InstallCaptureTriggers(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		logger.WithModule("database").Warn("capture triggers skipped: driver has no trigger support",
			zap.String("driver", db.Dialector.Name()))
		return nil
	}
	return db.Exec(captureTriggerSQL).Error
}

// DropCaptureTriggers removes the capture path, used by operational tooling.
func DropCaptureTriggers(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.Exec(dropCaptureTriggerSQL).Error
}
