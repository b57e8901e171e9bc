package admission

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle states. in_progress is the only non-terminal state.
const (
	StatusInProgress         = "in_progress"
	StatusMedicalDischarge   = "medical_discharge"
	StatusVoluntaryDischarge = "voluntary_discharge"
	StatusReferred           = "referred"
	StatusDeceased           = "deceased"
)

// DischargeOutcomes are the terminal states a discharge may choose.
var DischargeOutcomes = map[string]bool{
	StatusMedicalDischarge:   true,
	StatusVoluntaryDischarge: true,
	StatusReferred:           true,
	StatusDeceased:           true,
}

var AdmissionTypes = map[string]bool{
	"scheduled": true,
	"emergency": true,
	"referral":  true,
}

type Admission struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	ClinicianID  uuid.UUID  `json:"clinician_id"`
	BedID        *uuid.UUID `json:"bed_id,omitempty"`
	Type         string     `json:"admission_type"`
	Diagnosis    string     `json:"diagnosis"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"`
	AdmittedAt   time.Time  `json:"admitted_at"`
	DischargedAt *time.Time `json:"discharged_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Filter struct {
	Status      string
	PatientID   *uuid.UUID
	ClinicianID *uuid.UUID
}
