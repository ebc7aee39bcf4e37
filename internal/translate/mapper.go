package translate

import (
	"github.com/ehr/hl7fhir/internal/platform/fhir"
	"github.com/ehr/hl7fhir/internal/platform/hl7v2"
	"github.com/ehr/hl7fhir/pkg/fhirmodels"
)

// FieldSource is the read-only view of a decoded message the mapper needs.
// *hl7v2.Message satisfies it.
type FieldSource interface {
	Lookup(p hl7v2.Path) string
}

// Map builds the message Bundle for src. It never fails: absent fields fall
// back to the values in defaults, and an unusable birth date is omitted.
func (t *Translator) Map(src FieldSource) *fhir.Bundle {
	patient := &fhir.Patient{
		ResourceType: fhirmodels.ResourceTypePatient,
		Identifier: []fhir.Identifier{
			{
				Use: fhirmodels.IdentifierUseUsual,
				Type: &fhir.CodeableConcept{
					Coding: []fhir.Coding{
						{System: fhirmodels.IdentifierTypeSystem, Code: fhirmodels.IdentifierTypeMRN},
					},
				},
				Value: valueOrDefault(src, targetMRN),
			},
		},
		Name: []fhir.HumanName{
			{
				Use:    fhirmodels.NameUseOfficial,
				Family: valueOrDefault(src, targetFamily),
				Given:  []string{valueOrDefault(src, targetGiven)},
			},
		},
		Gender:    normalizeGender(first(src, targetGender)),
		BirthDate: normalizeBirthDate(first(src, targetBirthDate)),
	}
	return fhir.NewMessageBundle(patient, t.now())
}

// first returns the first non-empty value among the sources of tgt.
func first(src FieldSource, tgt target) string {
	for _, p := range sources[tgt] {
		if v := src.Lookup(p); v != "" {
			return v
		}
	}
	return ""
}

func valueOrDefault(src FieldSource, tgt target) string {
	if v := first(src, tgt); v != "" {
		return v
	}
	return defaults[tgt]
}

// normalizeGender maps PID-8 exactly; codes are case sensitive.
func normalizeGender(raw string) string {
	if g, ok := genders[raw]; ok {
		return g
	}
	return defaults[targetGender]
}

// normalizeBirthDate turns YYYYMMDD[...] into YYYY-MM-DD. Values shorter
// than eight characters yield "" so the element is omitted. The first eight
// characters are copied as-is.
func normalizeBirthDate(raw string) string {
	r := []rune(raw)
	if len(r) < 8 {
		return ""
	}
	return string(r[0:4]) + "-" + string(r[4:6]) + "-" + string(r[6:8])
}
