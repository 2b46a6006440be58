// Package svg holds a small element tree for generated SVG documents and its
// serializer.
package svg

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	Namespace      = "http://www.w3.org/2000/svg"
	XLinkNamespace = "http://www.w3.org/1999/xlink"

	// Declaration prefixes every serialized document.
	Declaration = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>`
)

type Attr struct {
	Name  string
	Value string
}

// Node is one element. Text is written before Children.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// El creates an element with the given attributes.
func El(name string, attrs ...Attr) *Node {
	return &Node{Name: name, Attrs: attrs}
}

// A builds an attribute, formatting numbers compactly.
func A(name string, value interface{}) Attr {
	switch v := value.(type) {
	case string:
		return Attr{Name: name, Value: v}
	case float64:
		return Attr{Name: name, Value: Num(v)}
	case int:
		return Attr{Name: name, Value: strconv.Itoa(v)}
	case bool:
		return Attr{Name: name, Value: strconv.FormatBool(v)}
	default:
		return Attr{Name: name}
	}
}

// Num formats v with at most three decimals and no trailing zeros.
func Num(v float64) string {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func (n *Node) Set(name, value string) *Node {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return n
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
	return n
}

func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

func (n *Node) SetText(s string) *Node {
	n.Text = s
	return n
}

// Walk visits n and its descendants depth first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindAll returns every descendant (including n) matching pred.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	n.Walk(func(x *Node) {
		if pred(x) {
			out = append(out, x)
		}
	})
	return out
}

// ByName matches elements with the given tag name.
func ByName(name string) func(*Node) bool {
	return func(n *Node) bool { return n.Name == name }
}

// ByID matches the element whose id attribute equals id.
func ByID(id string) func(*Node) bool {
	return func(n *Node) bool {
		v, ok := n.Attr("id")
		return ok && v == id
	}
}

// Document is a root <svg> element with its intrinsic size.
type Document struct {
	Root   *Node
	Width  float64
	Height float64
}

// Find returns the first element with the given id, or nil.
func (d *Document) Find(id string) *Node {
	found := d.Root.FindAll(ByID(id))
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// WriteTo writes the declaration and the element tree to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	cw.writeString(Declaration)
	cw.writeString("\n")
	writeNode(cw, d.Root, 0)
	cw.writeString("\n")
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// Marshal serializes doc to UTF-8 bytes.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inline elements keep their content on one line so whitespace does not
// leak into rendered text.
func inline(n *Node) bool {
	return n.Text != "" || n.Name == "text" || n.Name == "textPath" || n.Name == "tspan"
}

func writeNode(w *countingWriter, n *Node, depth int) {
	indent := !inline(n)
	w.writeString("<" + n.Name)
	for _, a := range n.Attrs {
		w.writeString(" " + a.Name + `="`)
		w.escape(a.Value)
		w.writeString(`"`)
	}
	if n.Text == "" && len(n.Children) == 0 {
		w.writeString("/>")
		return
	}
	w.writeString(">")
	w.escape(n.Text)
	for _, c := range n.Children {
		if indent {
			w.writeString("\n" + strings.Repeat("  ", depth+1))
		}
		writeNode(w, c, depth+1)
	}
	if indent {
		w.writeString("\n" + strings.Repeat("  ", depth))
	}
	w.writeString("</" + n.Name + ">")
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) writeString(s string) {
	if c.err != nil {
		return
	}
	n, err := c.w.WriteString(s)
	c.n += int64(n)
	c.err = err
}

func (c *countingWriter) escape(s string) {
	if c.err != nil || s == "" {
		return
	}
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		c.err = err
		return
	}
	c.writeString(buf.String())
}
