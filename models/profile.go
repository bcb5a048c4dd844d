package models

// Profile is the provisioned record for a subject. A profile must exist
// before any QR credential can be issued for that subject.
type Profile struct {
	SubjectID           string
	Name                string
	DietaryRestrictions string
	Points              int64
}
