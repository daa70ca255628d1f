package datajud

import (
	"strings"
	"time"
)

// Document is a provider search hit (the "_source" object), kept opaque.
type Document map[string]any

const movementsKey = "movimentos"

var (
	movementDateKeys = []string{"dataHora", "dataHoraMovimento", "data", "dataMovimento"}
	lastMovementKeys = []string{"dataHoraUltimaMovimentacao", "ultimaMovimentacao", "dataUltimaMovimentacao"}

	timestampLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"20060102150405",
		"2006-01-02",
	}
)

// Movements returns the provider movement list, or an empty slice when the
// document carries none.
func (d Document) Movements() []any {
	if d == nil {
		return []any{}
	}
	raw, ok := d[movementsKey].([]any)
	if !ok {
		return []any{}
	}
	return raw
}

// LastMovementAt resolves the most recent movement date of the document.
// An explicit top-level field wins over the scan of the movement list.
func (d Document) LastMovementAt() (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	for _, key := range lastMovementKeys {
		if parsed, ok := parseTimestamp(d[key]); ok {
			return parsed, true
		}
	}

	var latest time.Time
	found := false
	for _, entry := range d.Movements() {
		movement, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range movementDateKeys {
			parsed, ok := parseTimestamp(movement[key])
			if !ok {
				continue
			}
			if !found || parsed.After(latest) {
				latest = parsed
				found = true
			}
			break
		}
	}
	return latest, found
}

func parseTimestamp(value any) (time.Time, bool) {
	raw, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
