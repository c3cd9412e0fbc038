package mapping

import (
	"bytes"
	"fmt"

	"github.com/vmware-labs/yaml-jsonpath/pkg/yamlpath"
	"gopkg.in/yaml.v3"
)

// ExtractJSON evaluates a JSONPath-style expression against a JSON
// response body. JSON is valid YAML 1.2, so the body is decoded once
// with gopkg.in/yaml.v3 into a yaml.Node document and the expression is
// run as a YAMLPath query over that node tree (vmware-labs/yaml-jsonpath
// is the corpus's only JSONPath-shaped library; this avoids hand-rolling
// one), per spec.md §4.1's "JSONPath" extraction form.
//
// Matching zero nodes is not an error: the caller decides whether a
// missing optional property is fine or a MisconfiguredError, per
// spec.md §4.1's zero/one/multiple-match semantics. The result always
// holds one decoded scalar/sequence/mapping Go value per matched node;
// ExtractJSONOne unwraps the single-match case.
func ExtractJSON(body []byte, path string) ([]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding response body as JSON: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	p, err := yamlpath.NewPath(path)
	if err != nil {
		return nil, fmt.Errorf("parsing JSONPath %q: %w", path, err)
	}
	matches, err := p.Find(doc.Content[0])
	if err != nil {
		return nil, fmt.Errorf("evaluating JSONPath %q: %w", path, err)
	}

	out := make([]any, 0, len(matches))
	for _, n := range matches {
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("decoding match for %q: %w", path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ExtractJSONOne evaluates path and returns a single match directly;
// several matches are returned together as a []any, without error.
// required controls whether a zero-match result
// is an error (queryable properties declared non-optional) or returns
// (nil, nil) (optional properties that a provider may omit).
func ExtractJSONOne(body []byte, path string, required bool) (any, error) {
	matches, err := ExtractJSON(body, path)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		if required {
			return nil, fmt.Errorf("JSONPath %q matched no value", path)
		}
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return matches, nil
	}
}

// encodeJSONNode encodes v as a YAML document with gopkg.in/yaml.v3 and
// returns the encoded bytes. Nothing in this package calls it.
func encodeJSONNode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
