package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationKind enumerates the clinically significant events that produce
// a notification row.
type NotificationKind string

const (
	KindAppointmentCreated   NotificationKind = "appointment_created"
	KindAppointmentCancelled NotificationKind = "appointment_cancelled"
	KindAppointmentUpdated   NotificationKind = "appointment_updated"
	KindMedicalRecordAdded   NotificationKind = "medical_record_added"
	KindPrescriptionIssued   NotificationKind = "prescription_issued"
	KindGeneric              NotificationKind = "generic"
)

// Valid reports whether the kind is one of the known variants.
func (k NotificationKind) Valid() bool {
	switch k {
	case KindAppointmentCreated, KindAppointmentCancelled, KindAppointmentUpdated,
		KindMedicalRecordAdded, KindPrescriptionIssued, KindGeneric:
		return true
	}
	return false
}

// Notification is the durable record of one clinically significant event,
// surfaced to the owner in-app and delivered by email at least once.
//
// Title and Message are rendered at creation time and never re-rendered.
// Emailed flips false→true exactly once, through a conditional update, when
// a provider accepts the message. SourceTable/SourceID point at the clinical
// row that caused the notification; they exist for audit only and play no
// part in deduplication.
type Notification struct {
	BaseModel

	OwnerID string           `gorm:"type:uuid;not null;index" json:"owner_id"`
	Kind    NotificationKind `gorm:"type:varchar(64);not null" json:"kind"`
	Title   string           `gorm:"type:varchar(255);not null" json:"title"`
	Message string           `gorm:"type:text" json:"message"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	Emailed   bool       `gorm:"default:false;index" json:"emailed"`
	EmailedAt *time.Time `json:"emailed_at,omitempty"`

	SourceTable string `gorm:"type:varchar(64)" json:"source_table,omitempty"`
	SourceID    string `gorm:"type:uuid" json:"source_id,omitempty"`
}
