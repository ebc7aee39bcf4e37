// Package translate turns an HL7v2 ADT message into a FHIR message Bundle
// carrying one Patient.
//
// Translation is a pure, synchronous function of its input apart from the
// Bundle timestamp, which comes from the Translator's clock. A Translator is
// immutable after New and safe for concurrent use.
package translate

import (
	"errors"
	"fmt"
	"time"

	"github.com/ehr/hl7fhir/internal/platform/fhir"
	"github.com/ehr/hl7fhir/internal/platform/hl7v2"
)

// InternalError wraps an unexpected fault raised while decoding or mapping.
// It is distinct from *hl7v2.MalformedMessageError so that callers can tell
// bad input from a server-side defect.
type InternalError struct {
	Cause interface{}
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("translate: internal error: %v", e.Cause)
}

// Unwrap returns Cause when it is an error.
func (e *InternalError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// Translation outcomes reported to a Counter.
const (
	OutcomeTranslated = "translated"
	OutcomeMalformed  = "malformed"
	OutcomeFailed     = "failed"
)

// Counter receives one outcome per translation attempt.
type Counter interface {
	CountTranslation(outcome string)
}

// Translator converts messages to Bundles.
type Translator struct {
	now     func() time.Time
	counter Counter
}

// Option configures a Translator.
type Option func(*Translator)

// WithClock sets the source of meta.lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(t *Translator) {
		if now != nil {
			t.now = now
		}
	}
}

// WithCounter reports the outcome of every translation to c.
func WithCounter(c Counter) Option {
	return func(t *Translator) {
		t.counter = c
	}
}

// New returns a Translator stamping Bundles with the wall clock unless
// WithClock is given.
func New(opts ...Option) *Translator {
	t := &Translator{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var defaultTranslator = New()

// Translate decodes raw with the wall-clock Translator.
func Translate(raw string) (*fhir.Bundle, error) {
	return defaultTranslator.Translate(raw)
}

// Translate decodes raw and maps it to a Bundle. Decoder errors are returned
// unchanged; a panic during decoding or mapping becomes *InternalError.
func (t *Translator) Translate(raw string) (bundle *fhir.Bundle, err error) {
	defer t.count(&err)
	defer recoverInternal(&bundle, &err)

	msg, err := hl7v2.Parse(raw)
	if err != nil {
		return nil, err
	}
	return t.Map(msg), nil
}

// TranslateMessage maps an already decoded message.
func (t *Translator) TranslateMessage(msg *hl7v2.Message) (bundle *fhir.Bundle, err error) {
	defer t.count(&err)
	defer recoverInternal(&bundle, &err)

	if msg == nil {
		return nil, &InternalError{Cause: "nil message"}
	}
	return t.Map(msg), nil
}

func recoverInternal(bundle **fhir.Bundle, err *error) {
	if r := recover(); r != nil {
		*bundle = nil
		*err = &InternalError{Cause: r}
	}
}

// count runs after recoverInternal so a recovered panic counts as failed.
func (t *Translator) count(err *error) {
	if t.counter == nil {
		return
	}
	switch {
	case *err == nil:
		t.counter.CountTranslation(OutcomeTranslated)
	case errors.Is(*err, hl7v2.ErrMalformedMessage):
		t.counter.CountTranslation(OutcomeMalformed)
	default:
		t.counter.CountTranslation(OutcomeFailed)
	}
}
