package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Message represents a decoded HL7v2 message.
type Message struct {
	Encoding EncodingCharacters
	Segments []Segment

	Type         string    // MSH-9 message type (e.g. "ADT^A01")
	ControlID    string    // MSH-10
	Version      string    // MSH-12 (e.g. "2.5.1")
	Timestamp    time.Time // MSH-7
	SendingApp   string    // MSH-3
	SendingFac   string    // MSH-4
	ReceivingApp string    // MSH-5
	ReceivingFac string    // MSH-6
}

// Segment represents a single HL7v2 segment.
type Segment struct {
	Name   string // e.g. "MSH", "EVN", "PID", "PV1"
	Fields []Field
}

// Field holds the raw text of one field. Repetitions, components and
// subcomponents are split on demand with the message's encoding characters.
type Field struct {
	Value string
}

// Parse decodes raw HL7v2 text into a Message.
// It supports \r, \n, and \r\n line endings for segment separation.
func Parse(raw string) (*Message, error) {
	if raw == "" {
		return nil, malformed("message is empty")
	}

	// Normalize line endings: replace \r\n with \r, then replace \n with \r
	text := strings.ReplaceAll(raw, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	// Lines are kept verbatim; trailing spaces can be field data.
	var lines []string
	for _, line := range strings.Split(text, "\r") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, malformed("no segments found")
	}

	enc, err := ParseEncodingCharacters(lines[0])
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Encoding: enc,
		Segments: make([]Segment, 0, len(lines)),
	}
	for _, line := range lines {
		msg.Segments = append(msg.Segments, parseSegment(line, enc))
	}

	msg.extractHeader()
	return msg, nil
}

// parseSegment splits a segment line on the declared field separator.
func parseSegment(line string, enc EncodingCharacters) Segment {
	parts := split(line, enc.Field)
	seg := Segment{Name: parts[0]}

	// MSH is special: the field separator is MSH-1 itself, so it is
	// reinserted ahead of MSH-2.
	if seg.Name == headerSegment {
		seg.Fields = make([]Field, 0, len(parts))
		seg.Fields = append(seg.Fields, Field{Value: string(enc.Field)})
	} else {
		seg.Fields = make([]Field, 0, len(parts)-1)
	}
	for _, p := range parts[1:] {
		seg.Fields = append(seg.Fields, Field{Value: p})
	}
	return seg
}

// extractHeader copies commonly used MSH fields onto the Message.
func (m *Message) extractHeader() {
	msh := m.Segment(headerSegment)
	if msh == nil {
		return
	}

	m.SendingApp = msh.Field(3)
	m.SendingFac = msh.Field(4)
	m.ReceivingApp = msh.Field(5)
	m.ReceivingFac = msh.Field(6)
	if ts := msh.Field(7); ts != "" {
		if t, err := parseTimestamp(ts); err == nil {
			m.Timestamp = t
		}
	}
	m.Type = msh.Field(9)
	m.ControlID = msh.Field(10)
	m.Version = msh.Field(12)
}

// parseTimestamp parses an HL7v2 timestamp string (YYYYMMDDHHmmss or YYYYMMDD).
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 14:
		return time.Parse("20060102150405", s[:14])
	case len(s) >= 12:
		return time.Parse("200601021504", s[:12])
	case len(s) >= 8:
		return time.Parse("20060102", s[:8])
	default:
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized timestamp format: %q", s)
	}
}

// Segment returns the first segment with the given name, or nil if not found.
func (m *Message) Segment(name string) *Segment {
	return m.segmentRep(name, 1)
}

// segmentRep returns the rep-th (1-based) segment with the given name.
func (m *Message) segmentRep(name string, rep int) *Segment {
	if rep < 1 {
		return nil
	}
	for i := range m.Segments {
		if m.Segments[i].Name != name {
			continue
		}
		rep--
		if rep == 0 {
			return &m.Segments[i]
		}
	}
	return nil
}

// SegmentsNamed returns all segments with the given name, in message order.
func (m *Message) SegmentsNamed(name string) []Segment {
	var result []Segment
	for _, seg := range m.Segments {
		if seg.Name == name {
			result = append(result, seg)
		}
	}
	return result
}

// Field returns the raw value of a field by 1-based index, or "" when the
// segment has fewer fields.
func (s *Segment) Field(index int) string {
	idx := index - 1
	if idx < 0 || idx >= len(s.Fields) {
		return ""
	}
	return s.Fields[idx].Value
}

// Lookup returns the value addressed by p, or "" when any addressed level
// does not exist. Leaf values have delimiter escapes decoded; MSH-1 and
// MSH-2 are returned verbatim.
func (m *Message) Lookup(p Path) string {
	seg := m.segmentRep(p.Segment, max(p.SegmentRep, 1))
	if seg == nil {
		return ""
	}
	raw := seg.Field(p.Field)
	if raw == "" {
		return ""
	}
	if seg.Name == headerSegment && p.Field <= 2 {
		if p.FieldRep > 1 || p.Component > 1 || p.Subcomponent > 1 {
			return ""
		}
		return raw
	}

	enc := m.Encoding
	if p.FieldRep == 0 && p.Component == 0 {
		return enc.Unescape(raw)
	}

	value, ok := pick(split(raw, enc.Repetition), max(p.FieldRep, 1))
	if !ok {
		return ""
	}
	if p.Component == 0 {
		return enc.Unescape(value)
	}
	value, ok = pick(split(value, enc.Component), p.Component)
	if !ok {
		return ""
	}
	if p.Subcomponent == 0 {
		return enc.Unescape(value)
	}
	value, _ = pick(split(value, enc.Subcomponent), p.Subcomponent)
	return enc.Unescape(value)
}

// Get is Lookup with a dotted path such as "PID.5.1". A path that does not
// parse addresses nothing and yields "".
func (m *Message) Get(path string) string {
	p, err := ParsePath(path)
	if err != nil {
		return ""
	}
	return m.Lookup(p)
}

// pick returns the 1-based idx-th element of parts.
func pick(parts []string, idx int) (string, bool) {
	if idx < 1 || idx > len(parts) {
		return "", false
	}
	return parts[idx-1], true
}

// Bytes serializes the message back into wire text with \r segment
// terminators, using the message's own encoding characters.
func (m *Message) Bytes() []byte {
	lines := make([]string, 0, len(m.Segments))
	for _, seg := range m.Segments {
		lines = append(lines, serializeSegment(seg, m.Encoding))
	}
	return []byte(strings.Join(lines, "\r"))
}

// serializeSegment converts a Segment back into its HL7v2 string form.
func serializeSegment(seg Segment, enc EncodingCharacters) string {
	fields := seg.Fields
	if seg.Name == headerSegment && len(fields) > 0 {
		// Fields[0] is the field separator itself; it is written as the
		// separator after the name rather than as a field.
		fields = fields[1:]
	}

	var b strings.Builder
	b.WriteString(seg.Name)
	for _, f := range fields {
		b.WriteByte(enc.Field)
		b.WriteString(f.Value)
	}
	return b.String()
}
