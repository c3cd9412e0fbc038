package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

// RenderQuery turns a search plugin's resolved kwargs (queryable name ->
// value, already aliased/defaulted by the caller) into the value each
// KindQueryable mapping entry's QueryFormat wants to see, per spec.md
// §4.1/§4.5.
//
// A QueryFormat that starts with "{{" and ends with "}}" is treated as a
// JSON-fragment template
// (spec.md §4.1 "detected by {{...}} nesting"): it is rendered with
// placeholders substituted and then parsed back into a Go value with
// pkg/jsonutil, so the caller can deep-merge it into a JSON request
// body. Any other QueryFormat is a flat query-string key=value template,
// rendered as a plain string.
func RenderQuery(queryFormat string, value any) (any, error) {
	rendered, err := renderTemplate(queryFormat, map[string]any{"value": value})
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(queryFormat, "{{") && strings.HasSuffix(queryFormat, "}}") {
		// The doubled outer brace is a recognition sigil, not itself part
		// of the JSON payload: stripping one layer turns "{{...}}" back
		// into the single-braced JSON object it doubles for.
		inner := rendered[1 : len(rendered)-1]
		var v any
		if err := jsonutil.Unmarshal([]byte(inner), &v); err != nil {
			return nil, fmt.Errorf("query format %q did not render valid JSON: %w", queryFormat, err)
		}
		return v, nil
	}
	return rendered, nil
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// renderTemplate substitutes "{name}" placeholders in tmpl from vars,
// formatting each value with fmt.Sprint. A placeholder with no entry in
// vars is left untouched, matching the teacher-style permissive
// template behavior used elsewhere in this engine for partially
// resolved second-pass templates (KindTemplate entries referencing
// other not-yet-resolved properties).
func renderTemplate(tmpl string, vars map[string]any) (string, error) {
	var missing error
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := vars[name]; ok {
			return fmt.Sprint(v)
		}
		return m
	})
	return out, missing
}

// RenderTemplate exposes renderTemplate for KindTemplate entries, whose
// placeholders name other resolved properties rather than a single
// "value".
func RenderTemplate(tmpl string, resolved map[string]any) (string, error) {
	return renderTemplate(tmpl, resolved)
}

// DeepMerge merges src into dst in place and returns dst, recursing into
// nested maps so that two JSON-fragment query templates (e.g. a
// pagination cursor and a bbox filter, each rendered independently by
// RenderQuery) can be combined into one POST-JSON request body without
// one overwriting the other's sibling keys, per spec.md §4.5's
// "paginated POST-JSON search" requirement.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, sv := range src {
		if dv, ok := dst[k]; ok {
			dm, dok := dv.(map[string]any)
			sm, sok := sv.(map[string]any)
			if dok && sok {
				dst[k] = DeepMerge(dm, sm)
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}
