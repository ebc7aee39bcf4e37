package fhir

import (
	"time"

	"github.com/ehr/hl7fhir/pkg/fhirmodels"
)

// InstantFormat renders meta.lastUpdated as a UTC instant with millisecond
// precision, e.g. 2026-02-19T14:30:00.000Z.
const InstantFormat = "2006-01-02T15:04:05.000Z07:00"

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Meta         Meta          `json:"meta"`
	Entry        []BundleEntry `json:"entry"`
}

// Meta is the resource metadata block.
type Meta struct {
	LastUpdated string `json:"lastUpdated"`
}

type BundleEntry struct {
	Resource *Patient `json:"resource"`
}

// NewMessageBundle wraps a single Patient in a message Bundle stamped with
// lastUpdated.
func NewMessageBundle(patient *Patient, lastUpdated time.Time) *Bundle {
	return &Bundle{
		ResourceType: fhirmodels.ResourceTypeBundle,
		Type:         fhirmodels.BundleTypeMessage,
		Meta: Meta{
			LastUpdated: lastUpdated.UTC().Format(InstantFormat),
		},
		Entry: []BundleEntry{
			{Resource: patient},
		},
	}
}

// Patient returns the first Patient entry, or nil.
func (b *Bundle) Patient() *Patient {
	for _, e := range b.Entry {
		if e.Resource != nil {
			return e.Resource
		}
	}
	return nil
}
