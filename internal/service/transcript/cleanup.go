package transcript

import (
	"strconv"

	"github.com/tapewise/backend/internal/model/transcript"
)

// Derived-data cleanup: when a segment's time range is removed, any
// denormalized analysis rows overlapping that range duplicate deleted
// transcript content and must go. The containers holding those rows
// drifted across several document locations and wrapper shapes, so they
// are discovered through an ordered rule list rather than one hardcoded
// path. Rows whose timing cannot be parsed are conservatively kept.

// Container wrapper keys, tried in order.
var wrapperKeys = []string{"data", "rows", "items"}

// Start/end field-name aliases accumulated across legacy row schemas.
var (
	startAliases = []string{"start", "start_time", "startTime", "begin", "from"}
	endAliases   = []string{"end", "end_time", "endTime", "stop", "to"}
)

// purgeDerivedRows drops analysis rows overlapping [start,end) from every
// known container location on the message. It returns the top-level
// fields that must be rewritten; containers whose row count did not
// change are left untouched, as is all sibling metadata.
func purgeDerivedRows(msg *transcript.Message, start, end float64) map[string]any {
	fields := make(map[string]any)

	if rows, rebuild, ok := extractRows(msg.Categorization); ok {
		if kept, changed := filterRows(rows, start, end); changed {
			msg.Categorization = rebuild(kept)
			fields["categorization"] = msg.Categorization
		}
	}
	if rows, rebuild, ok := extractRows(msg.CategorizationData); ok {
		if kept, changed := filterRows(rows, start, end); changed {
			msg.CategorizationData = rebuild(kept)
			fields["categorization_data"] = msg.CategorizationData
		}
	}
	if msg.ProcessorsData != nil {
		if purgeProcessorsData(msg.ProcessorsData, start, end) {
			fields["processors_data"] = msg.ProcessorsData
		}
	}
	return fields
}

// purgeProcessorsData handles the nested processors_data.categorization
// location and its deeper .CATEGORIZATION variant.
func purgeProcessorsData(pd map[string]any, start, end float64) bool {
	raw, ok := pd["categorization"]
	if !ok {
		return false
	}

	changed := false
	if rows, rebuild, ok := extractRows(raw); ok {
		if kept, rowsChanged := filterRows(rows, start, end); rowsChanged {
			pd["categorization"] = rebuild(kept)
			changed = true
		}
	}
	if nested, ok := raw.(map[string]any); ok {
		if inner, exists := nested["CATEGORIZATION"]; exists {
			if rows, rebuild, ok := extractRows(inner); ok {
				if kept, rowsChanged := filterRows(rows, start, end); rowsChanged {
					nested["CATEGORIZATION"] = rebuild(kept)
					changed = true
				}
			}
		}
	}
	return changed
}

// extractRows reads a row slice from a container that is either a bare
// array or a map wrapped under one of the known wrapper keys. The rebuild
// function writes filtered rows back in the container's original shape,
// preserving sibling keys.
func extractRows(container any) ([]any, func([]any) any, bool) {
	switch v := container.(type) {
	case []any:
		return v, func(rows []any) any { return rows }, true
	case map[string]any:
		for _, key := range wrapperKeys {
			if rows, ok := v[key].([]any); ok {
				wrapKey := key
				return rows, func(filtered []any) any {
					v[wrapKey] = filtered
					return v
				}, true
			}
		}
	}
	return nil, nil, false
}

// filterRows keeps rows that do not overlap [start,end) by more than the
// epsilon, plus every row whose timing cannot be read.
func filterRows(rows []any, start, end float64) ([]any, bool) {
	kept := make([]any, 0, len(rows))
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			kept = append(kept, raw)
			continue
		}
		rowStart, startOK := readTime(row, startAliases)
		rowEnd, endOK := readTime(row, endAliases)
		if !startOK || !endOK {
			kept = append(kept, raw)
			continue
		}
		if rowStart < end-timeEpsilon && rowEnd > start+timeEpsilon {
			continue // overlaps the removed range
		}
		kept = append(kept, raw)
	}
	return kept, len(kept) != len(rows)
}

func readTime(row map[string]any, aliases []string) (float64, bool) {
	for _, alias := range aliases {
		value, ok := row[alias]
		if !ok {
			continue
		}
		if parsed, ok := asSeconds(value); ok {
			return parsed, true
		}
	}
	return 0, false
}

// asSeconds coerces the numeric encodings legacy rows used for timing.
func asSeconds(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
