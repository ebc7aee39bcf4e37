package hl7v2

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage is matched by every *MalformedMessageError via errors.Is.
var ErrMalformedMessage = errors.New("hl7v2: malformed message")

// MalformedMessageError reports input that is not a decodable message: empty
// text, a missing header segment, or a header that does not declare its
// encoding characters.
type MalformedMessageError struct {
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return "hl7v2: malformed message: " + e.Reason
}

// Is reports whether target is ErrMalformedMessage.
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func malformed(format string, args ...interface{}) *MalformedMessageError {
	return &MalformedMessageError{Reason: fmt.Sprintf(format, args...)}
}
