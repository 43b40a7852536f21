// Package decoder turns raw marketplace payloads into typed field maps.
//
// Payloads are first parsed into a format-neutral Node tree (XML elements or
// JSON object members), then decoded group by group against the schema
// registry. Only declared fields are extracted.
package decoder

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedPayload is returned when a payload is not well-formed XML or JSON
var ErrMalformedPayload = errors.New("decoder: malformed payload")

// Node is one element of a parsed payload.
// JSON arrays become repeated children sharing the array's member name.
type Node struct {
	Name     string
	Text     string
	Attrs    map[string]string
	Children []*Node
}

// IsLeaf reports whether the node carries a scalar value
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Child returns the first direct child with the given name
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns the direct children with the given name in wire order
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the first node reached by a slash-separated path.
// An empty path returns n.
func (n *Node) Find(path string) *Node {
	all := n.FindAll(path)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// FindAll returns every node reached by a slash-separated path, in wire order
func (n *Node) FindAll(path string) []*Node {
	if path == "" {
		return []*Node{n}
	}
	current := []*Node{n}
	for _, seg := range strings.Split(path, "/") {
		var next []*Node
		for _, c := range current {
			next = append(next, c.ChildrenNamed(seg)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// Value returns the scalar text of a field: a leaf child first, then an attribute
func (n *Node) Value(name string) (raw string, present bool, scalar bool) {
	if c := n.Child(name); c != nil {
		return c.Text, true, c.IsLeaf()
	}
	if v, ok := n.Attrs[name]; ok {
		return v, true, true
	}
	return "", false, false
}

// ---------------------------------------------------------------------------
// XML
// ---------------------------------------------------------------------------

// ParseXML parses an XML document into a Node tree rooted at the document element
func ParseXML(body []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		if strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
			return input, nil
		}
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}

	var stack []*Node
	var text []*strings.Builder
	var root *Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
			text = append(text, &strings.Builder{})
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		case xml.EndElement:
			n := stack[len(stack)-1]
			if n.IsLeaf() {
				n.Text = strings.TrimSpace(text[len(text)-1].String())
			}
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}
	return root, nil
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// ParseJSON parses a JSON document into a Node tree. The root node is unnamed.
// Member order is kept and null members are dropped.
func ParseJSON(body []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	root := &Node{}
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("%w: root must be an object", ErrMalformedPayload)
	}
	if err := parseObject(dec, root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return root, nil
}

func parseObject(dec *json.Decoder, parent *Node) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		if err := parseValue(dec, parent, key); err != nil {
			return err
		}
	}
	_, err := dec.Token() // closing '}'
	return err
}

func parseValue(dec *json.Decoder, parent *Node, name string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &Node{Name: name}
			parent.Children = append(parent.Children, n)
			return parseObject(dec, n)
		case '[':
			for dec.More() {
				if err := parseValue(dec, parent, name); err != nil {
					return err
				}
			}
			_, err := dec.Token() // closing ']'
			return err
		default:
			return fmt.Errorf("unexpected delimiter %v", v)
		}
	case nil:
		return nil
	case string:
		parent.Children = append(parent.Children, &Node{Name: name, Text: v})
	case json.Number:
		parent.Children = append(parent.Children, &Node{Name: name, Text: v.String()})
	case bool:
		text := "false"
		if v {
			text = "true"
		}
		parent.Children = append(parent.Children, &Node{Name: name, Text: text})
	default:
		return fmt.Errorf("unexpected token %T", tok)
	}
	return nil
}
