package cnj

import (
	"strings"
)

const identifierLength = 20

// Identifier is a parsed CNJ case number (NNNNNNN-DD.AAAA.J.TR.OOOO).
// The zero value carries no fields and cannot be formatted or routed.
type Identifier struct {
	sequencial string
	dv         string
	ano        string
	segment    string
	court      string
	origin     string
}

// Parse strips every non-digit from raw and slices the remaining 20 digits
// into identifier fields. Any other digit count reports false.
func Parse(raw string) (Identifier, bool) {
	digits := StripNonDigits(raw)
	if len(digits) != identifierLength {
		return Identifier{}, false
	}
	return Identifier{
		sequencial: digits[0:7],
		dv:         digits[7:9],
		ano:        digits[9:13],
		segment:    digits[13:14],
		court:      digits[14:16],
		origin:     digits[16:20],
	}, true
}

// StripNonDigits returns only the ASCII digits of raw, in order.
func StripNonDigits(raw string) string {
	var builder strings.Builder
	builder.Grow(len(raw))
	for index := 0; index < len(raw); index++ {
		if raw[index] >= '0' && raw[index] <= '9' {
			builder.WriteByte(raw[index])
		}
	}
	return builder.String()
}

// Sequencial returns the seven digit sequence number.
func (id Identifier) Sequencial() string { return id.sequencial }

// CheckDigits returns the two verification digits.
func (id Identifier) CheckDigits() string { return id.dv }

// Year returns the four digit filing year.
func (id Identifier) Year() string { return id.ano }

// Segment returns the judicial segment digit (J).
func (id Identifier) Segment() string { return id.segment }

// Court returns the two digit court code (TR).
func (id Identifier) Court() string { return id.court }

// Origin returns the four digit origin unit (OOOO).
func (id Identifier) Origin() string { return id.origin }

func (id Identifier) complete() bool {
	return len(id.sequencial) == 7 &&
		len(id.dv) == 2 &&
		len(id.ano) == 4 &&
		len(id.segment) == 1 &&
		len(id.court) == 2 &&
		len(id.origin) == 4
}

// Digits renders the canonical 20 digit form used by the remote search.
func (id Identifier) Digits() (string, bool) {
	if !id.complete() {
		return "", false
	}
	return id.sequencial + id.dv + id.ano + id.segment + id.court + id.origin, true
}

// Display renders the punctuated form SSSSSSS-DV.AAAA.J.TR.OOOO.
func (id Identifier) Display() (string, bool) {
	if !id.complete() {
		return "", false
	}
	return id.sequencial + "-" + id.dv + "." + id.ano + "." + id.segment + "." + id.court + "." + id.origin, true
}

// String returns the display form, or an empty string for an incomplete identifier.
func (id Identifier) String() string {
	display, _ := id.Display()
	return display
}
