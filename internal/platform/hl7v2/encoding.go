package hl7v2

import (
	"strings"
)

// headerSegment is the name of the segment that declares the delimiters.
const headerSegment = "MSH"

// EncodingCharacters holds the delimiter set declared by MSH-1 and MSH-2.
// Every split performed on a message uses the set decoded from that
// message's own header.
type EncodingCharacters struct {
	Field        byte // MSH-1, usually |
	Component    byte // MSH-2[0], usually ^
	Repetition   byte // MSH-2[1], usually ~
	Escape       byte // MSH-2[2], usually \
	Subcomponent byte // MSH-2[3], usually &
}

// DefaultEncodingCharacters returns the delimiter set recommended by the
// standard. It is only used to build outbound messages.
func DefaultEncodingCharacters() EncodingCharacters {
	return EncodingCharacters{
		Field:        '|',
		Component:    '^',
		Repetition:   '~',
		Escape:       '\\',
		Subcomponent: '&',
	}
}

// ParseEncodingCharacters reads the delimiter set from a header segment line.
// The line must start with "MSH", followed by the field separator and at
// least four encoding characters.
func ParseEncodingCharacters(header string) (EncodingCharacters, error) {
	if !strings.HasPrefix(header, headerSegment) {
		return EncodingCharacters{}, malformed("first segment must be %s, got %q", headerSegment, header[:min(3, len(header))])
	}
	if len(header) < len(headerSegment)+1 {
		return EncodingCharacters{}, malformed("%s segment does not declare a field separator", headerSegment)
	}

	enc := EncodingCharacters{Field: header[len(headerSegment)]}

	declared := header[len(headerSegment)+1:]
	if i := strings.IndexByte(declared, enc.Field); i >= 0 {
		declared = declared[:i]
	}
	if len(declared) < 4 {
		return EncodingCharacters{}, malformed("%s-2 declares %d encoding characters, need 4", headerSegment, len(declared))
	}

	enc.Component = declared[0]
	enc.Repetition = declared[1]
	enc.Escape = declared[2]
	enc.Subcomponent = declared[3]
	return enc, nil
}

// String renders the set the way it appears at the start of an MSH segment,
// i.e. MSH-1 followed by MSH-2.
func (e EncodingCharacters) String() string {
	return string([]byte{e.Field, e.Component, e.Repetition, e.Escape, e.Subcomponent})
}

// split cuts s on sep. An empty input yields a single empty element so that
// index 1 of an empty field is addressable and returns "".
func split(s string, sep byte) []string {
	return strings.Split(s, string(sep))
}

// Unescape decodes the delimiter escape sequences (\F\, \S\, \T\, \R\, \E\)
// written with the declared escape character. Any other escape sequence is
// left untouched.
func (e EncodingCharacters) Unescape(s string) string {
	if strings.IndexByte(s, e.Escape) < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != e.Escape {
			b.WriteByte(s[i])
			continue
		}
		end := strings.IndexByte(s[i+1:], e.Escape)
		if end != 1 {
			b.WriteByte(s[i])
			continue
		}
		var repl byte
		switch s[i+1] {
		case 'F':
			repl = e.Field
		case 'S':
			repl = e.Component
		case 'T':
			repl = e.Subcomponent
		case 'R':
			repl = e.Repetition
		case 'E':
			repl = e.Escape
		default:
			b.WriteByte(s[i])
			continue
		}
		b.WriteByte(repl)
		i += 2
	}
	return b.String()
}
