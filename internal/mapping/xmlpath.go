package mapping

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// No XPath library exists anywhere in the retrieved corpus (see
// SPEC_FULL.md's DOMAIN STACK section), so CSW/OpenSearch-XML mapping
// entries are served by this hand-rolled subset evaluator built on
// encoding/xml alone. It supports the shapes the CSW search plugin and
// XML-mapped properties actually need: absolute/relative element-name
// paths ("/a/b/c", "./a/b"), the text() accessor, and a single
// "@attr" attribute accessor as the path's last step. It does not
// support predicates, axes, or wildcard steps.

// xmlNode is a minimal parsed XML tree: encoding/xml's streaming
// decoder gives us tokens, not a DOM, so we build just enough of one to
// walk path steps.
type xmlNode struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*xmlNode
}

// parseXMLNode decodes body into an xmlNode tree rooted at the
// document element. Element names keep their resolved namespace URI;
// qualifiedName then presents every namespaced element, whether in a
// default namespace or under a prefix, as "ns:Tag", so path steps can
// address namespaced elements uniformly.
func parseXMLNode(body []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	var root *xmlNode
	var stack []*xmlNode
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{Name: t.Name, Attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, fmt.Errorf("XML document has no root element")
	}
	return root, nil
}

func qualifiedName(n *xmlNode) string {
	if n.Name.Space == "" {
		return n.Name.Local
	}
	return "ns:" + n.Name.Local
}

// ExtractXML evaluates a restricted XPath expression (see package doc
// above) against an XML document and returns the matched strings:
// element text content, or a single attribute's value when the path's
// last step is "@attr".
func ExtractXML(body []byte, path string) ([]string, error) {
	root, err := parseXMLNode(body)
	if err != nil {
		return nil, err
	}

	steps, wantAttr := splitXPathSteps(path)
	nodes := []*xmlNode{root}
	if len(steps) > 0 && stepMatchesName(steps[0], root) {
		steps = steps[1:]
	}
	for _, step := range steps {
		var next []*xmlNode
		for _, n := range nodes {
			for _, c := range n.Children {
				if stepMatchesName(step, c) {
					next = append(next, c)
				}
			}
		}
		nodes = next
	}

	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if wantAttr != "" {
			for _, a := range n.Attrs {
				if a.Name.Local == wantAttr {
					out = append(out, a.Value)
					break
				}
			}
			continue
		}
		out = append(out, strings.TrimSpace(n.Text))
	}
	return out, nil
}

// ExtractXMLOne returns the first match (the only one, or the first of
// several); zero matches is an error unless required is false.
func ExtractXMLOne(body []byte, path string, required bool) (string, error) {
	matches, err := ExtractXML(body, path)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		if required {
			return "", fmt.Errorf("XPath %q matched no value", path)
		}
		return "", nil
	default:
		return matches[0], nil
	}
}

// FindXMLNodes evaluates an element-path expression (no trailing @attr
// or text() step) and re-serializes each matching node's subtree as a
// standalone XML document, letting a caller run ExtractXML/ExtractXMLOne
// again on each match in isolation. Used by the CSW search plugin to
// turn a getrecords response's repeated record elements into one
// extractable document per record.
func FindXMLNodes(body []byte, path string) ([][]byte, error) {
	root, err := parseXMLNode(body)
	if err != nil {
		return nil, err
	}
	steps, _ := splitXPathSteps(path)
	nodes := []*xmlNode{root}
	if len(steps) > 0 && stepMatchesName(steps[0], root) {
		steps = steps[1:]
	}
	for _, step := range steps {
		var next []*xmlNode
		for _, n := range nodes {
			for _, c := range n.Children {
				if stepMatchesName(step, c) {
					next = append(next, c)
				}
			}
		}
		nodes = next
	}
	out := make([][]byte, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, serializeXMLNode(n))
	}
	return out, nil
}

func serializeXMLNode(n *xmlNode) []byte {
	var b strings.Builder
	writeXMLNode(&b, n)
	return []byte(b.String())
}

func writeXMLNode(b *strings.Builder, n *xmlNode) {
	name := qualifiedName(n)
	b.WriteByte('<')
	b.WriteString(name)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		xml.EscapeText(b, []byte(a.Value))
		b.WriteByte('"')
	}
	if len(n.Children) == 0 && strings.TrimSpace(n.Text) == "" {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	xml.EscapeText(b, []byte(n.Text))
	for _, c := range n.Children {
		writeXMLNode(b, c)
	}
	b.WriteString("</")
	b.WriteString(name)
	b.WriteByte('>')
}

func stepMatchesName(step string, n *xmlNode) bool {
	return step == qualifiedName(n) || step == n.Name.Local
}

// splitXPathSteps splits "./a/b/@attr" or "/a/b/text()" into its
// element-name steps plus an optional trailing attribute name.
func splitXPathSteps(path string) (steps []string, attr string) {
	p := strings.TrimPrefix(path, "./")
	p = strings.TrimPrefix(p, "/")
	parts := strings.Split(p, "/")
	if len(parts) > 0 {
		last := parts[len(parts)-1]
		if strings.HasPrefix(last, "@") {
			attr = strings.TrimPrefix(last, "@")
			parts = parts[:len(parts)-1]
		} else if last == "text()" {
			parts = parts[:len(parts)-1]
		}
	}
	return parts, attr
}
