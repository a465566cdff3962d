package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/models"
	"github.com/epetcare/notifier/pkg/logger"
)

// DispatchQueue accepts notification ids for background email dispatch.
type DispatchQueue interface {
	Enqueue(notificationID string) bool
}

// RecordEventInput describes a clinical row that was just written and needs
// a notification. SourceTable/SourceID point at that row for audit.
type RecordEventInput struct {
	Kind        models.NotificationKind
	OwnerID     string
	SourceTable string
	SourceID    string
	Title       string
	Message     string
	Metadata    map[string]any
}

// EventRecorder is the in-process half of notification capture. It runs
// inside the web tier's clinical transactions: the notification insert
// commits or rolls back with the clinical write, while email dispatch is
// handed to the background queue after commit and can never fail the write.
//
// Clinical rows written through this recorder carry the notify_handled
// marker, which keeps the database capture triggers from inserting a second
// notification for the same event.
type EventRecorder struct {
	db    *gorm.DB
	queue DispatchQueue
	log   *zap.Logger
}

// NewEventRecorder constructs an EventRecorder. queue may be nil; rows are
// then left for the catch-up sweeper.
func NewEventRecorder(db *gorm.DB, queue DispatchQueue) (*EventRecorder, error) {
	if db == nil {
		return nil, errors.New("event recorder: db is required")
	}
	return &EventRecorder{
		db:    db,
		queue: queue,
		log:   logger.WithModule("events"),
	}, nil
}

// Record inserts a notification row inside the supplied transaction. The
// caller owns the transaction; dispatch must only be enqueued after commit.
func (r *EventRecorder) Record(tx *gorm.DB, input RecordEventInput) (*models.Notification, error) {
	if tx == nil {
		return nil, errors.New("event recorder: transaction is required")
	}
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return nil, errors.New("event recorder: owner id is required")
	}
	if !input.Kind.Valid() {
		return nil, fmt.Errorf("event recorder: unknown notification kind %q", input.Kind)
	}

	notification := models.Notification{
		OwnerID:     ownerID,
		Kind:        input.Kind,
		Title:       strings.TrimSpace(input.Title),
		Message:     strings.TrimSpace(input.Message),
		SourceTable: input.SourceTable,
		SourceID:    input.SourceID,
	}

	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("event recorder: marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(data)
	}

	if err := tx.Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("event recorder: create notification: %w", err)
	}

	return &notification, nil
}

// RecordEvent runs Record in its own transaction and enqueues dispatch after
// commit. This is the generic entry point for clinical CRUD callers that
// manage their row writes elsewhere.
func (r *EventRecorder) RecordEvent(ctx context.Context, input RecordEventInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var notification *models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		notification, txErr = r.Record(tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	r.enqueueDispatch(notification.ID)
	return notification, nil
}

// CreateAppointmentInput carries the fields for a web-tier appointment write.
type CreateAppointmentInput struct {
	PetID    string
	DateTime time.Time
	Reason   string
}

// CreateAppointment writes the appointment and its notification in one
// transaction, then enqueues the email.
func (r *EventRecorder) CreateAppointment(ctx context.Context, input CreateAppointmentInput) (*models.Appointment, error) {
	ctx = ensureContext(ctx)

	appointment := models.Appointment{
		PetID:         strings.TrimSpace(input.PetID),
		DateTime:      input.DateTime,
		Reason:        strings.TrimSpace(input.Reason),
		Status:        models.AppointmentScheduled,
		NotifyHandled: true,
	}

	var notificationID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pet, err := loadPet(tx, appointment.PetID)
		if err != nil {
			return err
		}

		if err := tx.Create(&appointment).Error; err != nil {
			return fmt.Errorf("event recorder: create appointment: %w", err)
		}

		notification, err := r.Record(tx, RecordEventInput{
			Kind:        models.KindAppointmentCreated,
			OwnerID:     pet.OwnerID,
			SourceTable: "appointments",
			SourceID:    appointment.ID,
			Title:       "Appointment Scheduled",
			Message:     fmt.Sprintf("An appointment for %s was scheduled on %s.", pet.Name, appointment.DateTime.Format("Jan 02, 15:04")),
		})
		if err != nil {
			return err
		}
		notificationID = notification.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.enqueueDispatch(notificationID)
	return &appointment, nil
}

// CancelAppointment transitions an appointment to cancelled and notifies the
// owner. Status changes only happen in the web tier, so there is no trigger
// counterpart for this path.
func (r *EventRecorder) CancelAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	ctx = ensureContext(ctx)

	var appointment models.Appointment
	var notificationID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&appointment, "id = ?", appointmentID).Error; err != nil {
			return fmt.Errorf("event recorder: load appointment: %w", err)
		}
		if appointment.Status == models.AppointmentCancelled {
			return errors.New("event recorder: appointment already cancelled")
		}

		if err := tx.Model(&appointment).Update("status", models.AppointmentCancelled).Error; err != nil {
			return fmt.Errorf("event recorder: cancel appointment: %w", err)
		}
		appointment.Status = models.AppointmentCancelled

		pet, err := loadPet(tx, appointment.PetID)
		if err != nil {
			return err
		}

		notification, err := r.Record(tx, RecordEventInput{
			Kind:        models.KindAppointmentCancelled,
			OwnerID:     pet.OwnerID,
			SourceTable: "appointments",
			SourceID:    appointment.ID,
			Title:       "Appointment Cancelled",
			Message:     fmt.Sprintf("Your appointment for %s on %s was cancelled by the clinic.", pet.Name, appointment.DateTime.Format("Jan 02, 15:04")),
		})
		if err != nil {
			return err
		}
		notificationID = notification.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.enqueueDispatch(notificationID)
	return &appointment, nil
}

// UpdateAppointmentStatus moves an appointment to a new status and notifies
// the owner. Cancellation goes through CancelAppointment, which carries its
// own message.
func (r *EventRecorder) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) (*models.Appointment, error) {
	ctx = ensureContext(ctx)
	if status == models.AppointmentCancelled {
		return r.CancelAppointment(ctx, appointmentID)
	}

	var appointment models.Appointment
	var notificationID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&appointment, "id = ?", appointmentID).Error; err != nil {
			return fmt.Errorf("event recorder: load appointment: %w", err)
		}
		if appointment.Status == status {
			return nil
		}

		if err := tx.Model(&appointment).Update("status", status).Error; err != nil {
			return fmt.Errorf("event recorder: update appointment: %w", err)
		}
		appointment.Status = status

		pet, err := loadPet(tx, appointment.PetID)
		if err != nil {
			return err
		}

		notification, err := r.Record(tx, RecordEventInput{
			Kind:        models.KindAppointmentUpdated,
			OwnerID:     pet.OwnerID,
			SourceTable: "appointments",
			SourceID:    appointment.ID,
			Title:       "Appointment Updated",
			Message:     fmt.Sprintf("Your appointment for %s was updated (status: %s).", pet.Name, status),
		})
		if err != nil {
			return err
		}
		notificationID = notification.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.enqueueDispatch(notificationID)
	return &appointment, nil
}

// AddMedicalRecordInput carries the fields for a web-tier record write.
type AddMedicalRecordInput struct {
	PetID     string
	Condition string
	Treatment string
}

// AddMedicalRecord writes the medical record and its notification in one
// transaction, then enqueues the email.
func (r *EventRecorder) AddMedicalRecord(ctx context.Context, input AddMedicalRecordInput) (*models.MedicalRecord, error) {
	ctx = ensureContext(ctx)

	record := models.MedicalRecord{
		PetID:         strings.TrimSpace(input.PetID),
		Condition:     strings.TrimSpace(input.Condition),
		Treatment:     strings.TrimSpace(input.Treatment),
		NotifyHandled: true,
	}

	var notificationID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pet, err := loadPet(tx, record.PetID)
		if err != nil {
			return err
		}

		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("event recorder: create medical record: %w", err)
		}

		notification, err := r.Record(tx, RecordEventInput{
			Kind:        models.KindMedicalRecordAdded,
			OwnerID:     pet.OwnerID,
			SourceTable: "medical_records",
			SourceID:    record.ID,
			Title:       "New Medical Record",
			Message:     fmt.Sprintf("A new medical record for %s was added: %s.", pet.Name, record.Condition),
		})
		if err != nil {
			return err
		}
		notificationID = notification.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.enqueueDispatch(notificationID)
	return &record, nil
}

// IssuePrescriptionInput carries the fields for a web-tier prescription write.
type IssuePrescriptionInput struct {
	PetID          string
	MedicationName string
	Dosage         string
	Instructions   string
}

// IssuePrescription writes the prescription and its notification in one
// transaction, then enqueues the email.
func (r *EventRecorder) IssuePrescription(ctx context.Context, input IssuePrescriptionInput) (*models.Prescription, error) {
	ctx = ensureContext(ctx)

	prescription := models.Prescription{
		PetID:          strings.TrimSpace(input.PetID),
		MedicationName: strings.TrimSpace(input.MedicationName),
		Dosage:         strings.TrimSpace(input.Dosage),
		Instructions:   strings.TrimSpace(input.Instructions),
		NotifyHandled:  true,
	}

	var notificationID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pet, err := loadPet(tx, prescription.PetID)
		if err != nil {
			return err
		}

		if err := tx.Create(&prescription).Error; err != nil {
			return fmt.Errorf("event recorder: create prescription: %w", err)
		}

		notification, err := r.Record(tx, RecordEventInput{
			Kind:        models.KindPrescriptionIssued,
			OwnerID:     pet.OwnerID,
			SourceTable: "prescriptions",
			SourceID:    prescription.ID,
			Title:       "New Prescription",
			Message:     fmt.Sprintf("A new prescription for %s was added: %s (%s).", pet.Name, prescription.MedicationName, prescription.Dosage),
		})
		if err != nil {
			return err
		}
		notificationID = notification.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.enqueueDispatch(notificationID)
	return &prescription, nil
}

func (r *EventRecorder) enqueueDispatch(notificationID string) {
	if r.queue == nil || notificationID == "" {
		return
	}
	if !r.queue.Enqueue(notificationID) {
		r.log.Debug("dispatch queue rejected job, sweeper will deliver",
			zap.String("notification_id", notificationID))
	}
}

func loadPet(tx *gorm.DB, petID string) (*models.Pet, error) {
	var pet models.Pet
	if err := tx.First(&pet, "id = ?", petID).Error; err != nil {
		return nil, fmt.Errorf("event recorder: load pet: %w", err)
	}
	return &pet, nil
}
