// Package valueconv applies the per-AMO-data-type numeric conversions that
// turn a raw dictionary or affine-mapped value into its caller-facing form:
// OLE Automation dates become Unix millisecond timestamps, decimals are
// rescaled, everything else passes through unchanged.
package valueconv

const (
	dataTypeDatetime = 9
	dataTypeDecimal  = 10

	// oleEpochOffsetDays is the number of days between the OLE Automation
	// date epoch (1899-12-30) and the Unix epoch (1970-01-01).
	oleEpochOffsetDays = 25569
	millisPerDay       = 86400000
	decimalScale       = 10000
)

// Convert applies the dataType-specific rule to v, which is either the raw
// dictionary value or, for a dictionary-less column, the affine-mapped
// number (index+baseId)/magnitude. A nil v (the column's null sentinel)
// passes through unchanged.
func Convert(v any, dataType int64) any {
	if v == nil {
		return nil
	}

	switch dataType {
	case dataTypeDatetime:
		f, ok := asFloat64(v)
		if !ok {
			return v
		}
		return int64((f - oleEpochOffsetDays) * millisPerDay)
	case dataTypeDecimal:
		f, ok := asFloat64(v)
		if !ok {
			return v
		}
		return f / decimalScale
	default:
		return v
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
