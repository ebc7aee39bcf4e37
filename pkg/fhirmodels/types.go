package fhirmodels

// Common FHIR value set constants used across the application.

// Resource and Bundle type names.
const (
	ResourceTypeBundle  = "Bundle"
	ResourceTypePatient = "Patient"
	BundleTypeMessage   = "message"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// IdentifierUse codes.
const (
	IdentifierUseUsual     = "usual"
	IdentifierUseOfficial  = "official"
	IdentifierUseTemp      = "temp"
	IdentifierUseSecondary = "secondary"
)

// NameUse codes.
const (
	NameUseUsual    = "usual"
	NameUseOfficial = "official"
	NameUseNickname = "nickname"
	NameUseMaiden   = "maiden"
)

// Identifier type coding from the v2-0203 table.
const (
	IdentifierTypeSystem = "http://terminology.hl7.org/CodeSystem/v2-0203"
	IdentifierTypeMRN    = "MR"
)
