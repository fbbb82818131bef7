package protection

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AnonymizeOptions selects which fields to drop and which to coarsen.
type AnonymizeOptions struct {
	RemoveFields     []string `json:"remove_fields"`
	GeneralizeFields []string `json:"generalize_fields"`
}

// AnonymizeData removes listed fields and generalizes others with
// bucketing rules. The result is tagged and timestamped; the operation
// is one-way.
func AnonymizeData(record map[string]any, opts AnonymizeOptions, now time.Time) map[string]any {
	remove := make(map[string]bool, len(opts.RemoveFields))
	for _, f := range opts.RemoveFields {
		remove[f] = true
	}
	generalize := make(map[string]bool, len(opts.GeneralizeFields))
	for _, f := range opts.GeneralizeFields {
		generalize[f] = true
	}

	out := make(map[string]any, len(record)+2)
	for name, value := range record {
		if remove[name] {
			continue
		}
		if generalize[name] {
			out[name] = generalizeValue(normalizeField(name), value)
			continue
		}
		out[name] = value
	}
	out["_anonymized"] = true
	out["_anonymized_at"] = now.UTC().Format(time.RFC3339)
	return out
}

func generalizeValue(normalized string, value any) any {
	switch {
	case strings.Contains(normalized, "age"):
		if n, ok := toInt(value); ok {
			decade := (n / 10) * 10
			return fmt.Sprintf("%d-%d", decade, decade+9)
		}
	case strings.Contains(normalized, "dob") || strings.Contains(normalized, "birth") || strings.Contains(normalized, "date"):
		if year, ok := yearOf(value); ok {
			return year
		}
	case strings.Contains(normalized, "location") || strings.Contains(normalized, "city") ||
		strings.Contains(normalized, "address") || strings.Contains(normalized, "region"):
		if s, ok := value.(string); ok {
			return coarsestToken(s)
		}
	default:
		if f, ok := toFloat(value); ok {
			return moneyBucket(f)
		}
	}
	// Values that do not fit any rule are dropped rather than leaked.
	return nil
}

// moneyBucket rounds a monetary amount into a labelled range.
func moneyBucket(v float64) string {
	bucket := 10000.0
	switch {
	case v < 1000:
		bucket = 100
	case v < 100000:
		bucket = 1000
	}
	low := float64(int(v/bucket)) * bucket
	return fmt.Sprintf("%.0f-%.0f", low, low+bucket-1)
}

// coarsestToken keeps only the last comma-separated component, e.g.
// "Austin, TX, USA" becomes "USA".
func coarsestToken(s string) string {
	parts := strings.Split(s, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

func yearOf(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		if t, ok := value.(time.Time); ok {
			return strconv.Itoa(t.Year()), true
		}
		return "", false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return strconv.Itoa(t.Year()), true
		}
	}
	if len(s) >= 4 {
		if _, err := strconv.Atoi(s[:4]); err == nil {
			return s[:4], true
		}
	}
	return "", false
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimPrefix(v, "$"), 64)
		return f, err == nil
	}
	return 0, false
}
