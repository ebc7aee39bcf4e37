package translate

import (
	"github.com/ehr/hl7fhir/internal/platform/hl7v2"
	"github.com/ehr/hl7fhir/pkg/fhirmodels"
)

// target names a Patient element filled from the message.
type target string

const (
	targetMRN       target = "identifier.value"
	targetFamily    target = "name.family"
	targetGiven     target = "name.given"
	targetBirthDate target = "birthDate"
	targetGender    target = "gender"
)

// sources lists, per target, the paths read in order until one yields a
// non-empty value.
var sources = map[target][]hl7v2.Path{
	targetMRN:       {hl7v2.MustParsePath("PID.3.1")},
	targetFamily:    {hl7v2.MustParsePath("PID.5.1")},
	targetGiven:     {hl7v2.MustParsePath("PID.5.2")},
	targetBirthDate: {hl7v2.MustParsePath("PID.7.1"), hl7v2.MustParsePath("PID.7")},
	targetGender:    {hl7v2.MustParsePath("PID.8")},
}

// defaults is substituted when every source of a target is empty.
// birthDate has no entry: it is omitted instead.
var defaults = map[target]string{
	targetMRN:    "UNKNOWN-MRN",
	targetFamily: "UNKNOWN",
	targetGiven:  "UNKNOWN",
	targetGender: fhirmodels.GenderUnknown,
}

// genders maps HL7 table 0001 administrative sex to FHIR AdministrativeGender.
// Anything not listed maps to the gender default.
var genders = map[string]string{
	"M": fhirmodels.GenderMale,
	"F": fhirmodels.GenderFemale,
	"O": fhirmodels.GenderOther,
}
