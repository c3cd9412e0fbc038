package mapping

import (
	"fmt"
	"strings"

	"github.com/CS-SI/eodag-sub000/internal/errs"
)

// ParseMapping parses a raw YAML-decoded map (string/[]any values, as
// gopkg.in/yaml.v3 hands back `map[string]any`) into a typed Mapping.
func ParseMapping(raw map[string]any) (Mapping, error) {
	out := make(Mapping, len(raw))
	for name, v := range raw {
		entry, err := ParseEntry(v)
		if err != nil {
			return nil, fmt.Errorf("metadata_mapping[%s]: %w", name, err)
		}
		out[name] = entry
	}
	return out, nil
}

// ParseEntry parses one property's raw mapping value into an Entry,
// per the four shapes in spec.md §4.1.
func ParseEntry(raw any) (Entry, error) {
	switch v := raw.(type) {
	case []any:
		if len(v) != 2 {
			return Entry{}, errs.NewValidation("metadata_mapping", fmt.Sprintf("queryable entry must have exactly 2 elements, got %d", len(v)))
		}
		queryFormat, ok := v[0].(string)
		if !ok {
			return Entry{}, errs.NewValidation("metadata_mapping", "queryable entry's first element must be a string query-format template")
		}
		extractRaw, ok := v[1].(string)
		if !ok {
			return Entry{}, errs.NewValidation("metadata_mapping", "queryable entry's second element must be a string extraction expression")
		}
		extract, err := parseExtractString(extractRaw)
		if err != nil {
			return Entry{}, err
		}
		extract.Kind = KindQueryable
		extract.QueryFormat = queryFormat
		extract.Raw = raw
		return extract, nil
	case string:
		return parseScalarString(v)
	default:
		return Entry{}, errs.NewValidation("metadata_mapping", fmt.Sprintf("unsupported mapping value type %T", raw))
	}
}

// parseScalarString classifies a bare string mapping value as Const,
// Extract, or Template.
func parseScalarString(v string) (Entry, error) {
	body, converters, err := splitConverters(v)
	if err != nil {
		return Entry{}, err
	}

	switch {
	case strings.Contains(body, "{") && strings.Contains(body, "}"):
		return Entry{Kind: KindTemplate, Template: body, Converters: converters, Raw: v}, nil
	case looksLikeJSONPath(body), looksLikeXPath(body):
		e, err := parseExtractString(v)
		if err != nil {
			return Entry{}, err
		}
		e.Kind = KindExtract
		return e, nil
	default:
		return Entry{Kind: KindConst, Const: body, Raw: v}, nil
	}
}

// parseExtractString parses "<path>#conv(args)#conv2(args)" into an
// Entry carrying Path/Lang/Converters, without fixing Kind (the caller
// sets KindExtract or KindQueryable as appropriate).
func parseExtractString(raw string) (Entry, error) {
	body, converters, err := splitConverters(raw)
	if err != nil {
		return Entry{}, err
	}
	lang := PathLangJSON
	if looksLikeXPath(body) {
		lang = PathLangXML
	}
	return Entry{Path: body, Lang: lang, Converters: converters, Raw: raw}, nil
}

func looksLikeJSONPath(s string) bool {
	return strings.HasPrefix(s, "$")
}

func looksLikeXPath(s string) bool {
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./")
}

// splitConverters splits "body#conv(a,b)#conv2()" into its body and the
// parsed Converter chain. An unknown converter name is not an error
// here (ParseEntry only validates shape); unknown-converter failures
// surface from Apply, per spec.md §4.1 "Unknown converter fails the
// mapping with a misconfiguration error."
func splitConverters(raw string) (string, []Converter, error) {
	parts := strings.Split(raw, "#")
	body := parts[0]
	if len(parts) == 1 {
		return body, nil, nil
	}
	converters := make([]Converter, 0, len(parts)-1)
	for _, p := range parts[1:] {
		conv, err := parseConverterCall(p)
		if err != nil {
			return "", nil, fmt.Errorf("parsing converter %q: %w", p, err)
		}
		converters = append(converters, conv)
	}
	return body, converters, nil
}

// parseConverterCall parses "name(arg1,arg2)" or bare "name".
func parseConverterCall(s string) (Converter, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open == -1 {
		return Converter{Name: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return Converter{}, fmt.Errorf("missing closing parenthesis in %q", s)
	}
	name := s[:open]
	argsStr := s[open+1 : len(s)-1]
	var args []string
	if strings.TrimSpace(argsStr) != "" {
		for _, a := range strings.Split(argsStr, ",") {
			args = append(args, strings.TrimSpace(strings.Trim(a, `"'`)))
		}
	}
	return Converter{Name: name, Args: args}, nil
}
