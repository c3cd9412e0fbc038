package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

// ConverterFunc is a pure, side-effect-free value transformer, per
// spec.md §4.1's converter contract.
type ConverterFunc func(value any, args []string) (any, error)

// converters is the closed registry of names Entry.Converters may
// reference. Unknown names fail at Apply time with a
// MisconfiguredError, per spec.md §4.1.
var converters = map[string]ConverterFunc{
	"to_timestamp_milliseconds":             convToTimestampMillis,
	"to_iso_utc_datetime":                   convToISOUTCDatetime,
	"to_iso_utc_datetime_from_milliseconds": convToISOUTCDatetimeFromMillis,
	"to_iso_date":                           convToISODate,
	"to_wkt":                                convToWKT,
	"to_bounds_lists":                       convToBoundsLists,
	"to_geojson":                            convToGeoJSON,
	"remove_extension":                      convRemoveExtension,
	"replace_str":                           convReplaceStr,
	"slice_str":                             convSliceStr,
	"get_group_name":                        convGetGroupName,
}

// Apply runs value through each of cs in order.
func Apply(value any, cs []Converter) (any, error) {
	cur := value
	for _, c := range cs {
		fn, ok := converters[c.Name]
		if !ok {
			return nil, errs.NewMisconfigured("", fmt.Sprintf("unknown converter %q", c.Name))
		}
		var err error
		cur, err = fn(cur, c.Args)
		if err != nil {
			return nil, fmt.Errorf("converter %s: %w", c, err)
		}
	}
	return cur, nil
}

// RegisterConverter lets a test or a caller that owns extra domain
// rewrites (spec.md §4.1 "a set of domain-specific string rewrites")
// extend the registry without forking this package.
func RegisterConverter(name string, fn ConverterFunc) {
	converters[name] = fn
}

// --- time converters -------------------------------------------------
//
// to_timestamp_milliseconds and to_iso_utc_datetime_from_milliseconds
// round-trip at second precision: the latter formats as RFC3339, so
// any sub-second part of the timestamp is dropped; to_iso_utc_datetime
// and to_iso_date accept the widened
// set of layouts a provider might actually send and normalize to
// RFC3339, satisfying the round-trip property in spec.md §8 at second
// precision.

var acceptedTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseAnyTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range acceptedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("not a recognized datetime: %q (%w)", s, lastErr)
}

func asString(value any) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

func convToTimestampMillis(value any, _ []string) (any, error) {
	s, ok := asString(value)
	if !ok {
		return nil, fmt.Errorf("expected string input, got %T", value)
	}
	t, err := parseAnyTime(s)
	if err != nil {
		return nil, err
	}
	return t.UnixMilli(), nil
}

func convToISOUTCDatetimeFromMillis(value any, _ []string) (any, error) {
	millis, err := asInt64(value)
	if err != nil {
		return nil, err
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339), nil
}

func convToISOUTCDatetime(value any, _ []string) (any, error) {
	switch v := value.(type) {
	case string:
		t, err := parseAnyTime(v)
		if err != nil {
			return nil, err
		}
		return t.Format(time.RFC3339), nil
	case int64, int, float64:
		seconds, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		return time.Unix(seconds, 0).UTC().Format(time.RFC3339), nil
	default:
		return nil, fmt.Errorf("unsupported input type %T", value)
	}
}

func convToISODate(value any, _ []string) (any, error) {
	s, ok := asString(value)
	if !ok {
		return nil, fmt.Errorf("expected string input, got %T", value)
	}
	t, err := parseAnyTime(s)
	if err != nil {
		return nil, err
	}
	return t.Format("2006-01-02"), nil
}

func asInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("expected numeric input, got %T", value)
	}
}

// --- geometry converters ---------------------------------------------

func asFloatSlice(value any) ([]float64, error) {
	switch v := value.(type) {
	case []float64:
		return v, nil
	case []any:
		out := make([]float64, len(v))
		for i, e := range v {
			f, err := asFloat64(e)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case model.Geometry:
		return v.ToBoundsList(), nil
	default:
		return nil, fmt.Errorf("expected a bbox-shaped value, got %T", value)
	}
}

func asFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", value)
	}
}

func convToWKT(value any, _ []string) (any, error) {
	if g, ok := value.(model.Geometry); ok {
		return g.ToWKT(), nil
	}
	bbox, err := asFloatSlice(value)
	if err != nil {
		return nil, err
	}
	if len(bbox) != 4 {
		return nil, fmt.Errorf("expected 4-element bbox, got %d elements", len(bbox))
	}
	g := model.BBox(bbox[0], bbox[1], bbox[2], bbox[3])
	return g.ToWKT(), nil
}

func convToBoundsLists(value any, _ []string) (any, error) {
	bbox, err := asFloatSlice(value)
	if err != nil {
		return nil, err
	}
	return bbox, nil
}

func convToGeoJSON(value any, _ []string) (any, error) {
	bbox, err := asFloatSlice(value)
	if err != nil {
		return nil, err
	}
	if len(bbox) != 4 {
		return nil, fmt.Errorf("expected 4-element bbox, got %d elements", len(bbox))
	}
	minX, minY, maxX, maxY := bbox[0], bbox[1], bbox[2], bbox[3]
	return map[string]any{
		"type": "Polygon",
		"coordinates": [][][2]float64{{
			{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
		}},
	}, nil
}

// --- string converters -------------------------------------------------

func convRemoveExtension(value any, _ []string) (any, error) {
	s, ok := asString(value)
	if !ok {
		return nil, fmt.Errorf("expected string input, got %T", value)
	}
	if idx := strings.LastIndexByte(s, '.'); idx > 0 {
		return s[:idx], nil
	}
	return s, nil
}

func convReplaceStr(value any, args []string) (any, error) {
	s, ok := asString(value)
	if !ok {
		return nil, fmt.Errorf("expected string input, got %T", value)
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("replace_str requires 2 args (pattern, replacement), got %d", len(args))
	}
	re, err := regexp.Compile(args[0])
	if err != nil {
		return nil, fmt.Errorf("replace_str pattern: %w", err)
	}
	return re.ReplaceAllString(s, args[1]), nil
}

func convSliceStr(value any, args []string) (any, error) {
	s, ok := asString(value)
	if !ok {
		return nil, fmt.Errorf("expected string input, got %T", value)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("slice_str requires at least a start index")
	}
	start, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("slice_str start index: %w", err)
	}
	end := len(s)
	if len(args) > 1 && args[1] != "" {
		end, err = strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("slice_str end index: %w", err)
		}
	}
	if start < 0 {
		start += len(s)
	}
	if end < 0 {
		end += len(s)
	}
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		return "", nil
	}
	return s[start:end], nil
}

func convGetGroupName(value any, args []string) (any, error) {
	s, ok := asString(value)
	if !ok {
		return nil, fmt.Errorf("expected string input, got %T", value)
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("get_group_name requires 2 args (pattern, group name), got %d", len(args))
	}
	re, err := regexp.Compile(args[0])
	if err != nil {
		return nil, fmt.Errorf("get_group_name pattern: %w", err)
	}
	match := re.FindStringSubmatch(s)
	if match == nil {
		return nil, fmt.Errorf("pattern %q did not match %q", args[0], s)
	}
	for i, name := range re.SubexpNames() {
		if name == args[1] {
			return match[i], nil
		}
	}
	return nil, fmt.Errorf("named group %q not found in pattern %q", args[1], args[0])
}
