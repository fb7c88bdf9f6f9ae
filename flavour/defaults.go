package flavour

import (
	"encoding/json"
	"strings"
)

// defaultsEquivalent compares two default values semantically for a column
// of the given type. Raw text comparison is the fallback; typed defaults
// get dialect-independent handling first.
func defaultsEquivalent(colType string, prev, next *string) bool {
	if prev == nil && next == nil {
		return true
	}
	if prev == nil || next == nil {
		return false
	}

	prevVal := *prev
	nextVal := *next

	if prevVal == nextVal {
		return true
	}

	if isJSONType(colType) {
		return jsonDefaultsEqual(prevVal, nextVal)
	}

	if isDateTimeType(colType) {
		// now(), CURRENT_TIMESTAMP and friends all mean "insertion time".
		if isDateTimeFunction(prevVal) && isDateTimeFunction(nextVal) {
			return true
		}
		return prevVal == nextVal
	}

	if isNumericType(colType) {
		return strings.TrimSpace(trimTypeCast(prevVal)) == strings.TrimSpace(trimTypeCast(nextVal))
	}

	// Text and enum defaults compare after stripping quoting and casts.
	prevClean := strings.Trim(trimTypeCast(prevVal), `"'`)
	nextClean := strings.Trim(trimTypeCast(nextVal), `"'`)
	return prevClean == nextClean
}

// trimTypeCast strips a postgres-style ::type cast suffix.
func trimTypeCast(val string) string {
	if idx := strings.Index(val, "::"); idx != -1 {
		return val[:idx]
	}
	return val
}

// jsonDefaultsEqual compares JSON defaults by parsed value.
func jsonDefaultsEqual(prev, next string) bool {
	var prevJSON, nextJSON interface{}

	prev = strings.Trim(trimTypeCast(prev), `'`)
	next = strings.Trim(trimTypeCast(next), `'`)

	if err := json.Unmarshal([]byte(prev), &prevJSON); err != nil {
		return prev == next
	}
	if err := json.Unmarshal([]byte(next), &nextJSON); err != nil {
		return prev == next
	}

	prevBytes, err1 := json.Marshal(prevJSON)
	nextBytes, err2 := json.Marshal(nextJSON)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(prevBytes) == string(nextBytes)
}

func isJSONType(colType string) bool {
	return strings.Contains(strings.ToUpper(colType), "JSON")
}

func isDateTimeType(colType string) bool {
	upper := strings.ToUpper(colType)
	return strings.Contains(upper, "TIMESTAMP") ||
		strings.Contains(upper, "DATETIME") ||
		strings.Contains(upper, "DATE") ||
		strings.Contains(upper, "TIME")
}

func isNumericType(colType string) bool {
	upper := strings.ToUpper(colType)
	return strings.Contains(upper, "INT") ||
		strings.Contains(upper, "FLOAT") ||
		strings.Contains(upper, "DOUBLE") ||
		strings.Contains(upper, "DECIMAL") ||
		strings.Contains(upper, "NUMERIC") ||
		strings.Contains(upper, "REAL")
}

func isDateTimeFunction(val string) bool {
	upper := strings.ToUpper(strings.TrimSpace(val))
	return strings.Contains(upper, "NOW()") ||
		strings.Contains(upper, "CURRENT_TIMESTAMP") ||
		strings.Contains(upper, "GETDATE()") ||
		strings.Contains(upper, "CURRENT_DATE") ||
		strings.Contains(upper, "CURRENT_TIME")
}
