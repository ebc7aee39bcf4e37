package fhir

// Patient is the subset of the FHIR R4 Patient resource produced from an
// ADT message. BirthDate is omitted when no usable date was supplied.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	Identifier   []Identifier `json:"identifier"`
	Name         []HumanName  `json:"name"`
	Gender       string       `json:"gender"`
	BirthDate    string       `json:"birthDate,omitempty"`
}

type Identifier struct {
	Use   string           `json:"use,omitempty"`
	Type  *CodeableConcept `json:"type,omitempty"`
	Value string           `json:"value"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text,omitempty"`
}

type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family"`
	Given  []string `json:"given"`
}
