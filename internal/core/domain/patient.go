package domain

import "time"

// Gender is the biological sex recorded on the patient chart.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Valid reports whether the gender is one of the recorded values.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Patient mirrors the persisted representation in the patients table.
// IDCard is the national id number and is unique across patients.
type Patient struct {
	ID        int64
	IDCard    string
	Name      string
	Gender    Gender
	PhotoPath *string
	CreatedAt time.Time
}
