package search

import (
	"fmt"

	"github.com/CS-SI/eodag-sub000/internal/mapping"
	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

// jsonResultEntries navigates to resultsEntryPath (spec.md §4.5 step 7's
// "results_entry") and re-encodes each matched element back to its own
// JSON document, so every mapping Entry's JSONPath can be evaluated
// relative to one result instead of the whole response envelope.
func jsonResultEntries(body []byte, resultsEntryPath string) ([][]byte, error) {
	if resultsEntryPath == "" {
		resultsEntryPath = "$"
	}
	matches, err := mapping.ExtractJSON(body, resultsEntryPath)
	if err != nil {
		return nil, fmt.Errorf("navigating to results_entry %q: %w", resultsEntryPath, err)
	}
	var entries []any
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		if arr, ok := matches[0].([]any); ok {
			entries = arr
		} else {
			entries = matches
		}
	default:
		entries = matches
	}

	out := make([][]byte, 0, len(entries))
	for _, e := range entries {
		raw, err := jsonutil.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("re-encoding result entry: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// jsonTotalCount extracts the total-results count at totalItemsKeyPath,
// per spec.md §4.5 step 4's "total_items_nb_key_path". Returns nil if no
// path is configured or nothing matches, never an error, since the total
// count is advisory (used by SearchAll for pagination exhaustion, not a
// correctness requirement).
func jsonTotalCount(body []byte, totalItemsKeyPath string) *int {
	if totalItemsKeyPath == "" {
		return nil
	}
	v, err := mapping.ExtractJSONOne(body, totalItemsKeyPath, false)
	if err != nil || v == nil {
		return nil
	}
	n, ok := asIntLoose(v)
	if !ok {
		return nil
	}
	return &n
}

func asIntLoose(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		var n int
		if _, err := fmt.Sscanf(t, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}
