package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/epetcare/notifier/internal/models"
	"github.com/epetcare/notifier/internal/services"
	appErrors "github.com/epetcare/notifier/pkg/errors"
	"github.com/epetcare/notifier/pkg/response"
)

// EventHandler exposes the clinical write endpoints that flow through the
// event recorder.
type EventHandler struct {
	recorder *services.EventRecorder
}

// NewEventHandler constructs an event handler.
func NewEventHandler(recorder *services.EventRecorder) (*EventHandler, error) {
	if recorder == nil {
		return nil, appErrors.New("INVALID_DEPENDENCY", "event recorder must be provided", http.StatusInternalServerError)
	}
	return &EventHandler{recorder: recorder}, nil
}

type recordEventRequest struct {
	Kind        string         `json:"kind" validate:"required"`
	OwnerID     string         `json:"owner_id" validate:"required"`
	Title       string         `json:"title" validate:"required,max=255"`
	Message     string         `json:"message" validate:"required"`
	SourceTable string         `json:"source_table"`
	SourceID    string         `json:"source_id"`
	Metadata    map[string]any `json:"metadata"`
}

// Record accepts a generic clinical event from CRUD glue code.
func (h *EventHandler) Record(c *gin.Context) {
	var req recordEventRequest
	if !bindAndValidate(c, &req) {
		return
	}

	notification, err := h.recorder.RecordEvent(c.Request.Context(), services.RecordEventInput{
		Kind:        models.NotificationKind(strings.TrimSpace(req.Kind)),
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Message:     req.Message,
		SourceTable: req.SourceTable,
		SourceID:    req.SourceID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, notification)
}

type createAppointmentRequest struct {
	PetID    string    `json:"pet_id" validate:"required"`
	DateTime time.Time `json:"date_time" validate:"required"`
	Reason   string    `json:"reason" validate:"max=255"`
}

// CreateAppointment books an appointment and notifies the owner.
func (h *EventHandler) CreateAppointment(c *gin.Context) {
	var req createAppointmentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	appointment, err := h.recorder.CreateAppointment(c.Request.Context(), services.CreateAppointmentInput{
		PetID:    req.PetID,
		DateTime: req.DateTime,
		Reason:   req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, appointment)
}

type updateAppointmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled completed cancelled"`
}

// UpdateAppointmentStatus moves an appointment to a new status and notifies
// the owner.
func (h *EventHandler) UpdateAppointmentStatus(c *gin.Context) {
	var req updateAppointmentStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	appointment, err := h.recorder.UpdateAppointmentStatus(c.Request.Context(), id, models.AppointmentStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, appointment)
}

// CancelAppointment cancels an appointment and notifies the owner.
func (h *EventHandler) CancelAppointment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	appointment, err := h.recorder.CancelAppointment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, appointment)
}

type addMedicalRecordRequest struct {
	PetID     string `json:"pet_id" validate:"required"`
	Condition string `json:"condition" validate:"required,max=255"`
	Treatment string `json:"treatment"`
}

// AddMedicalRecord stores a medical record and notifies the owner.
func (h *EventHandler) AddMedicalRecord(c *gin.Context) {
	var req addMedicalRecordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	record, err := h.recorder.AddMedicalRecord(c.Request.Context(), services.AddMedicalRecordInput{
		PetID:     req.PetID,
		Condition: req.Condition,
		Treatment: req.Treatment,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, record)
}

type issuePrescriptionRequest struct {
	PetID          string `json:"pet_id" validate:"required"`
	MedicationName string `json:"medication_name" validate:"required,max=255"`
	Dosage         string `json:"dosage" validate:"max=255"`
	Instructions   string `json:"instructions"`
}

// IssuePrescription stores a prescription and notifies the owner.
func (h *EventHandler) IssuePrescription(c *gin.Context) {
	var req issuePrescriptionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	prescription, err := h.recorder.IssuePrescription(c.Request.Context(), services.IssuePrescriptionInput{
		PetID:          req.PetID,
		MedicationName: req.MedicationName,
		Dosage:         req.Dosage,
		Instructions:   req.Instructions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, prescription)
}
