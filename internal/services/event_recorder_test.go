package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/epetcare/notifier/internal/models"
)

type fakeQueue struct {
	mu   sync.Mutex
	ids  []string
	full bool
}

func (f *fakeQueue) Enqueue(notificationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.ids = append(f.ids, notificationID)
	return true
}

func (f *fakeQueue) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ids))
	copy(out, f.ids)
	return out
}

func TestCreateAppointmentRecordsNotification(t *testing.T) {
	db := openServiceTestDB(t)
	owner, pet := seedOwnerWithPet(t, db, "dana@example.com")
	queue := &fakeQueue{}

	recorder, err := NewEventRecorder(db, queue)
	require.NoError(t, err)

	when := time.Date(2026, time.March, 3, 14, 30, 0, 0, time.UTC)
	appointment, err := recorder.CreateAppointment(context.Background(), CreateAppointmentInput{
		PetID:    pet.ID,
		DateTime: when,
		Reason:   "Vaccination",
	})
	require.NoError(t, err)
	require.True(t, appointment.NotifyHandled)
	require.Equal(t, models.AppointmentScheduled, appointment.Status)

	var notif models.Notification
	require.NoError(t, db.First(&notif, "source_id = ?", appointment.ID).Error)
	require.Equal(t, owner.ID, notif.OwnerID)
	require.Equal(t, models.KindAppointmentCreated, notif.Kind)
	require.Equal(t, "Appointment Scheduled", notif.Title)
	require.Equal(t, "An appointment for Rex was scheduled on Mar 03, 14:30.", notif.Message)
	require.Equal(t, "appointments", notif.SourceTable)
	require.False(t, notif.Emailed)

	require.Equal(t, []string{notif.ID}, queue.enqueued())
}

func TestCreateAppointmentRollsBackOnMissingPet(t *testing.T) {
	db := openServiceTestDB(t)
	queue := &fakeQueue{}

	recorder, err := NewEventRecorder(db, queue)
	require.NoError(t, err)

	_, err = recorder.CreateAppointment(context.Background(), CreateAppointmentInput{
		PetID:    "missing",
		DateTime: time.Now().UTC(),
	})
	require.Error(t, err)

	var appointments, notifications int64
	require.NoError(t, db.Model(&models.Appointment{}).Count(&appointments).Error)
	require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
	require.Zero(t, appointments)
	require.Zero(t, notifications)
	require.Empty(t, queue.enqueued())
}

func TestCancelAppointment(t *testing.T) {
	db := openServiceTestDB(t)
	_, pet := seedOwnerWithPet(t, db, "dana@example.com")
	queue := &fakeQueue{}

	recorder, err := NewEventRecorder(db, queue)
	require.NoError(t, err)

	appointment, err := recorder.CreateAppointment(context.Background(), CreateAppointmentInput{
		PetID:    pet.ID,
		DateTime: time.Date(2026, time.March, 3, 14, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	cancelled, err := recorder.CancelAppointment(context.Background(), appointment.ID)
	require.NoError(t, err)
	require.Equal(t, models.AppointmentCancelled, cancelled.Status)

	var notif models.Notification
	require.NoError(t, db.First(&notif, "kind = ?", models.KindAppointmentCancelled).Error)
	require.Equal(t, "Your appointment for Rex on Mar 03, 14:30 was cancelled by the clinic.", notif.Message)

	// Cancelling twice is rejected.
	_, err = recorder.CancelAppointment(context.Background(), appointment.ID)
	require.Error(t, err)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	db := openServiceTestDB(t)
	_, pet := seedOwnerWithPet(t, db, "dana@example.com")
	queue := &fakeQueue{}

	recorder, err := NewEventRecorder(db, queue)
	require.NoError(t, err)

	appointment, err := recorder.CreateAppointment(context.Background(), CreateAppointmentInput{
		PetID:    pet.ID,
		DateTime: time.Date(2026, time.March, 3, 14, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	updated, err := recorder.UpdateAppointmentStatus(context.Background(), appointment.ID, models.AppointmentCompleted)
	require.NoError(t, err)
	require.Equal(t, models.AppointmentCompleted, updated.Status)

	var notif models.Notification
	require.NoError(t, db.First(&notif, "kind = ?", models.KindAppointmentUpdated).Error)
	require.Equal(t, "Your appointment for Rex was updated (status: completed).", notif.Message)

	// A no-op transition produces no notification.
	_, err = recorder.UpdateAppointmentStatus(context.Background(), appointment.ID, models.AppointmentCompleted)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("kind = ?", models.KindAppointmentUpdated).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAddMedicalRecordAndIssuePrescription(t *testing.T) {
	db := openServiceTestDB(t)
	owner, pet := seedOwnerWithPet(t, db, "dana@example.com")
	queue := &fakeQueue{}

	recorder, err := NewEventRecorder(db, queue)
	require.NoError(t, err)

	record, err := recorder.AddMedicalRecord(context.Background(), AddMedicalRecordInput{
		PetID:     pet.ID,
		Condition: "Otitis",
		Treatment: "Drops",
	})
	require.NoError(t, err)
	require.True(t, record.NotifyHandled)

	prescription, err := recorder.IssuePrescription(context.Background(), IssuePrescriptionInput{
		PetID:          pet.ID,
		MedicationName: "Amoxicillin",
		Dosage:         "250mg",
	})
	require.NoError(t, err)
	require.True(t, prescription.NotifyHandled)

	var rows []models.Notification
	require.NoError(t, db.Order("created_at").Find(&rows, "owner_id = ?", owner.ID).Error)
	require.Len(t, rows, 2)
	require.Equal(t, "A new medical record for Rex was added: Otitis.", rows[0].Message)
	require.Equal(t, "A new prescription for Rex was added: Amoxicillin (250mg).", rows[1].Message)
	require.Len(t, queue.enqueued(), 2)
}

func TestRecordEventGeneric(t *testing.T) {
	db := openServiceTestDB(t)
	owner, _ := seedOwnerWithPet(t, db, "dana@example.com")
	queue := &fakeQueue{}

	recorder, err := NewEventRecorder(db, queue)
	require.NoError(t, err)

	notif, err := recorder.RecordEvent(context.Background(), RecordEventInput{
		Kind:    models.KindGeneric,
		OwnerID: owner.ID,
		Title:   "Welcome",
		Message: "Your portal account is ready.",
		Metadata: map[string]any{
			"source": "onboarding",
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, notif.ID)
	require.JSONEq(t, `{"source":"onboarding"}`, string(notif.Metadata))
	require.Equal(t, []string{notif.ID}, queue.enqueued())
}

func TestRecordRejectsBadInput(t *testing.T) {
	db := openServiceTestDB(t)
	queue := &fakeQueue{}

	recorder, err := NewEventRecorder(db, queue)
	require.NoError(t, err)

	_, err = recorder.RecordEvent(context.Background(), RecordEventInput{
		Kind:  models.KindGeneric,
		Title: "No owner",
	})
	require.Error(t, err)

	_, err = recorder.RecordEvent(context.Background(), RecordEventInput{
		Kind:    "bogus",
		OwnerID: "owner",
	})
	require.Error(t, err)
	require.Empty(t, queue.enqueued())
}

func TestFullQueueDoesNotFailWrite(t *testing.T) {
	db := openServiceTestDB(t)
	_, pet := seedOwnerWithPet(t, db, "dana@example.com")
	queue := &fakeQueue{full: true}

	recorder, err := NewEventRecorder(db, queue)
	require.NoError(t, err)

	_, err = recorder.AddMedicalRecord(context.Background(), AddMedicalRecordInput{
		PetID:     pet.ID,
		Condition: "Otitis",
	})
	require.NoError(t, err)

	var notif models.Notification
	require.NoError(t, db.First(&notif).Error)
	require.False(t, notif.Emailed)
}
