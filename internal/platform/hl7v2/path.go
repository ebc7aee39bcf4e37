package hl7v2

import (
	"fmt"
	"strconv"
	"strings"
)

// Path addresses a value inside a message. All indices are 1-based; zero in
// SegmentRep or FieldRep means the first occurrence, zero in Component or
// Subcomponent means the whole enclosing value.
type Path struct {
	Segment      string
	SegmentRep   int
	Field        int
	FieldRep     int
	Component    int
	Subcomponent int
}

// ParsePath parses dotted path notation:
//
//	PID.3        field 3 of the first PID
//	PID.3.1      component 1 of that field
//	PID.3.1.2    subcomponent 2 of that component
//	PID[2].5.1   component 1 of field 5 of the second PID
//	PID.3[2].1   component 1 of the second repetition of field 3
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return Path{}, fmt.Errorf("hl7v2: invalid path %q: want SEG.field[.component[.subcomponent]]", s)
	}

	var p Path
	var err error

	p.Segment, p.SegmentRep, err = splitRep(parts[0])
	if err != nil {
		return Path{}, fmt.Errorf("hl7v2: invalid path %q: %w", s, err)
	}
	if len(p.Segment) != 3 {
		return Path{}, fmt.Errorf("hl7v2: invalid path %q: segment name must be 3 characters", s)
	}

	var field string
	field, p.FieldRep, err = splitRep(parts[1])
	if err != nil {
		return Path{}, fmt.Errorf("hl7v2: invalid path %q: %w", s, err)
	}
	if p.Field, err = index(field); err != nil {
		return Path{}, fmt.Errorf("hl7v2: invalid path %q: field: %w", s, err)
	}
	if len(parts) > 2 {
		if p.Component, err = index(parts[2]); err != nil {
			return Path{}, fmt.Errorf("hl7v2: invalid path %q: component: %w", s, err)
		}
	}
	if len(parts) > 3 {
		if p.Subcomponent, err = index(parts[3]); err != nil {
			return Path{}, fmt.Errorf("hl7v2: invalid path %q: subcomponent: %w", s, err)
		}
	}
	return p, nil
}

// MustParsePath is ParsePath for package-level path tables; it panics on a
// malformed path.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders p in the notation accepted by ParsePath.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.Segment)
	if p.SegmentRep > 1 {
		fmt.Fprintf(&b, "[%d]", p.SegmentRep)
	}
	fmt.Fprintf(&b, ".%d", p.Field)
	if p.FieldRep > 1 {
		fmt.Fprintf(&b, "[%d]", p.FieldRep)
	}
	if p.Component > 0 {
		fmt.Fprintf(&b, ".%d", p.Component)
		if p.Subcomponent > 0 {
			fmt.Fprintf(&b, ".%d", p.Subcomponent)
		}
	}
	return b.String()
}

// splitRep separates "NAME[n]" into NAME and n. A part without brackets has
// repetition 0.
func splitRep(part string) (string, int, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, 0, nil
	}
	if !strings.HasSuffix(part, "]") {
		return "", 0, fmt.Errorf("unterminated repetition in %q", part)
	}
	rep, err := index(part[open+1 : len(part)-1])
	if err != nil {
		return "", 0, fmt.Errorf("repetition: %w", err)
	}
	return part[:open], rep, nil
}

func index(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("%d is not a 1-based index", n)
	}
	return n, nil
}
