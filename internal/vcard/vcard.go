// Package vcard extracts phone-keyed contacts from vCard text.
package vcard

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Contact is a single imported contact. Phone is the dedup key.
type Contact struct {
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone" yaml:"phone"`
}

// UnknownName is used when a record has neither a name nor a usable phone.
const UnknownName = "Unknown"

var (
	endMarker = regexp.MustCompile(`(?i)END:VCARD`)

	// Field patterns match the first line whose name token starts with the
	// given prefix, after an optional property group such as "item1.".
	// The N pattern is loose and also hits NOTE, NICKNAME and friends; it
	// is only consulted when FN is absent.
	telField = regexp.MustCompile(`(?im)^[ \t]*(?:[A-Za-z0-9-]+\.)?TEL[^:\r\n]*:(.+)$`)
	fnField  = regexp.MustCompile(`(?im)^[ \t]*(?:[A-Za-z0-9-]+\.)?FN[^:\r\n]*:(.+)$`)
	nField   = regexp.MustCompile(`(?im)^[ \t]*(?:[A-Za-z0-9-]+\.)?N[^:\r\n]*:(.+)$`)
)

// Parse converts a vCard text blob into contacts deduplicated by phone.
// Records without a usable telephone are dropped. Order follows the
// first occurrence of each phone in text.
func Parse(text string) []Contact {
	var candidates []Contact
	for _, record := range Split(text) {
		if c, ok := extract(record); ok {
			candidates = append(candidates, c)
		}
	}
	return Dedup(candidates)
}

// ParseReader reads r to the end and parses the result.
func ParseReader(r io.Reader) ([]Contact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vcard: reading input: %w", err)
	}
	return Parse(string(data)), nil
}

// Split breaks text into record fragments on each END:VCARD marker.
// Only text terminated by a marker forms a record, so anything after the
// last marker is discarded. Empty and whitespace-only fragments are omitted.
func Split(text string) []string {
	frags := endMarker.Split(text, -1)
	frags = frags[:len(frags)-1]

	var records []string
	for _, frag := range frags {
		if strings.TrimSpace(frag) == "" {
			continue
		}
		records = append(records, frag)
	}
	return records
}

// extract builds a candidate contact from one record fragment.
func extract(record string) (Contact, bool) {
	tel := telField.FindStringSubmatch(record)
	if tel == nil {
		return Contact{}, false
	}
	phone := NormalizePhone(tel[1])
	if phone == "" {
		return Contact{}, false
	}
	return Contact{Name: displayName(record, phone), Phone: phone}, true
}

func displayName(record, phone string) string {
	m := fnField.FindStringSubmatch(record)
	if m == nil {
		m = nField.FindStringSubmatch(record)
	}
	if m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	if phone != "" {
		return phone
	}
	return UnknownName
}

// NormalizePhone strips whitespace and every character other than ASCII
// digits. A '+' survives only as the first kept character.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Dedup keeps the first contact seen for each phone, preserving order.
func Dedup(contacts []Contact) []Contact {
	out := make([]Contact, 0, len(contacts))
	seen := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		if _, dup := seen[c.Phone]; dup {
			continue
		}
		seen[c.Phone] = struct{}{}
		out = append(out, c)
	}
	return out
}
