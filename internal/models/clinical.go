package models

import "time"

// The clinical tables are shared with the desktop client, which writes to
// them directly without going through this process. Each table that produces
// notifications carries a NotifyHandled marker: the event hook sets it inside
// the clinical transaction, and the database capture triggers skip rows that
// have it, so the hook and the trigger are mutually exclusive on any given
// insert.

// Owner is a pet owner and the recipient identity for notifications.
type Owner struct {
	BaseModel

	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Email        string `gorm:"type:varchar(254);index" json:"email"`
	Phone        string `gorm:"type:varchar(32)" json:"phone,omitempty"`
	PasswordHash string `gorm:"type:varchar(255)" json:"-"`
}

// Pet links clinical rows back to the owner to notify.
type Pet struct {
	BaseModel

	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	Species string `gorm:"type:varchar(64)" json:"species,omitempty"`
}

// AppointmentStatus mirrors the states the web and desktop tiers write.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a scheduled clinic visit.
type Appointment struct {
	BaseModel

	PetID         string            `gorm:"type:uuid;not null;index" json:"pet_id"`
	DateTime      time.Time         `gorm:"not null" json:"date_time"`
	Reason        string            `gorm:"type:text" json:"reason,omitempty"`
	Status        AppointmentStatus `gorm:"type:varchar(32);default:'scheduled'" json:"status"`
	NotifyHandled bool              `gorm:"default:false" json:"-"`
}

// MedicalRecord is one diagnosis/treatment entry for a pet.
type MedicalRecord struct {
	BaseModel

	PetID         string `gorm:"type:uuid;not null;index" json:"pet_id"`
	Condition     string `gorm:"type:varchar(255);not null" json:"condition"`
	Treatment     string `gorm:"type:text" json:"treatment,omitempty"`
	NotifyHandled bool   `gorm:"default:false" json:"-"`
}

// Prescription is medication issued for a pet.
type Prescription struct {
	BaseModel

	PetID          string `gorm:"type:uuid;not null;index" json:"pet_id"`
	MedicationName string `gorm:"type:varchar(255);not null" json:"medication_name"`
	Dosage         string `gorm:"type:varchar(128)" json:"dosage,omitempty"`
	Instructions   string `gorm:"type:text" json:"instructions,omitempty"`
	NotifyHandled  bool   `gorm:"default:false" json:"-"`
}
