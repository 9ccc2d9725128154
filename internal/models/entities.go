package models

// Entities holds the named entities extracted by intent classification.
// Unknown extra keys in classifier output are ignored, not rejected.
type Entities struct {
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Doctor      string `json:"doctor,omitempty"`
	TestType    string `json:"test_type,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
}

// IsEmpty reports whether no entity fields are set.
func (e Entities) IsEmpty() bool {
	return e == Entities{}
}

// Values returns the non-empty entity values.
func (e Entities) Values() []string {
	var out []string
	for _, v := range []string{e.Date, e.Time, e.Doctor, e.TestType, e.PatientName} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
