package evolution

import (
	"time"

	"github.com/google/uuid"
)

// General-condition codes a clinician may record.
var Conditions = map[string]bool{
	"stable":    true,
	"improving": true,
	"worsening": true,
	"critical":  true,
}

// Vitals is the optional measurement payload. It is persisted only when at
// least one field is set; an absent payload is not the same as zeros.
type Vitals struct {
	BloodPressure    string  `json:"blood_pressure,omitempty"`
	HeartRate        int     `json:"heart_rate,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	RespiratoryRate  int     `json:"respiratory_rate,omitempty"`
	OxygenSaturation int     `json:"oxygen_saturation,omitempty"`
}

func (v *Vitals) Empty() bool {
	if v == nil {
		return true
	}
	return v.BloodPressure == "" && v.HeartRate == 0 && v.Temperature == 0 &&
		v.RespiratoryRate == 0 && v.OxygenSaturation == 0
}

type Evolution struct {
	ID          uuid.UUID `json:"id"`
	AdmissionID uuid.UUID `json:"admission_id"`
	ClinicianID uuid.UUID `json:"clinician_id"`
	Note        string    `json:"note"`
	Condition   string    `json:"condition"`
	Plan        *string   `json:"plan,omitempty"`
	Vitals      *Vitals   `json:"vitals,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
