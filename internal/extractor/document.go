package extractor

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// ErrNoRootElement means the payload held no parsable element at all.
var ErrNoRootElement = errors.New("document has no root element")

// Node is one element of a parsed filing. Name.Space holds the resolved
// namespace URI; Prefix is the prefix as written in the markup.
type Node struct {
	Name   xml.Name
	Prefix string
	// Attrs excludes namespace declarations; Name.Space is resolved.
	Attrs    []xml.Attr
	Parent   *Node
	Children []*Node

	// text is the character data preceding the first child element.
	text     strings.Builder
	order    int
	index    int
	scope    map[string]string
	document bool
}

// Text returns the element's leading character data, trimmed.
func (n *Node) Text() string {
	return strings.TrimSpace(n.text.String())
}

// lookup resolves prefix against the declarations in scope at n.
// The empty prefix resolves the default namespace.
func (n *Node) lookup(prefix string) string {
	for s := n; s != nil; s = s.Parent {
		if uri, ok := s.scope[prefix]; ok {
			return uri
		}
	}

	return ""
}

// Document is a parsed filing tree.
type Document struct {
	Root *Node
	// Recovered holds the markup error parsing stopped at, if any. The tree
	// built up to that point is kept.
	Recovered error
	size      int
}

// Size returns the number of elements in the tree.
func (d *Document) Size() int {
	return d.size
}

// Parse builds a tree from raw XML. Parsing is lenient: an end tag closes
// the nearest open element with the same name, a stray end tag matching
// nothing closes only the innermost element, a '<' that cannot start markup
// is read as text, unknown entities are kept verbatim and a document that
// breaks off mid-way keeps everything read so far. Only a payload without a
// single element is rejected.
func Parse(data []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(escapeStrayLT(data)))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel

	top := &Node{document: true, order: -1}
	doc := &Document{}
	cur := top

	for {
		tok, err := dec.RawToken()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if cur != top {
					doc.Recovered = io.ErrUnexpectedEOF
				}

				break
			}

			if doc.Root == nil {
				return nil, fmt.Errorf("%w: %v", ErrNoRootElement, err)
			}

			doc.Recovered = err

			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if cur == top && doc.Root != nil {
				// Trailing content after the root element closed.
				return doc, nil
			}

			cur = doc.open(cur, t)
		case xml.EndElement:
			cur = doc.close(cur, t.Name)
		case xml.CharData:
			if cur != top && len(cur.Children) == 0 {
				cur.text.Write(t)
			}
		}
	}

	if doc.Root == nil {
		return nil, ErrNoRootElement
	}

	return doc, nil
}

// open appends the element started by t under parent and returns it.
func (d *Document) open(parent *Node, t xml.StartElement) *Node {
	n := &Node{
		Prefix: t.Name.Space,
		Parent: parent,
		order:  d.size,
		index:  len(parent.Children),
	}
	d.size++

	for _, a := range t.Attr {
		switch {
		case a.Name.Space == "xmlns":
			n.declare(a.Name.Local, a.Value)
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			n.declare("", a.Value)
		}
	}

	n.Name = xml.Name{Space: n.lookup(n.Prefix), Local: t.Name.Local}

	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}

		// Unprefixed attributes are in no namespace.
		name := xml.Name{Local: a.Name.Local}
		if a.Name.Space != "" {
			name.Space = n.lookup(a.Name.Space)
		}

		n.Attrs = append(n.Attrs, xml.Attr{Name: name, Value: a.Value})
	}

	parent.Children = append(parent.Children, n)
	if parent.document {
		d.Root = n
	}

	return n
}

func (n *Node) declare(prefix, uri string) {
	if n.scope == nil {
		n.scope = make(map[string]string, 1)
	}

	n.scope[prefix] = uri
}

// close handles an end tag and returns the new innermost open element.
func (d *Document) close(cur *Node, name xml.Name) *Node {
	for n := cur; n != nil && !n.document; n = n.Parent {
		if n.Prefix == name.Space && n.Name.Local == name.Local {
			return n.Parent
		}
	}

	// Nothing open carries this name: drop the innermost element but keep the root.
	if cur.document || cur == d.Root {
		return cur
	}

	return cur.Parent
}

var (
	commentOpen  = []byte("<!--")
	commentClose = []byte("-->")
	cdataOpen    = []byte("<![CDATA[")
	cdataClose   = []byte("]]>")
)

// escapeStrayLT rewrites each '<' that cannot open markup as "&lt;".
// Comments and CDATA sections are copied untouched.
func escapeStrayLT(data []byte) []byte {
	var out []byte

	last := 0

	for i := 0; i < len(data); i++ {
		if data[i] != '<' {
			continue
		}

		rest := data[i:]

		switch {
		case bytes.HasPrefix(rest, commentOpen):
			i = skipPast(data, i+len(commentOpen), commentClose)

			continue
		case bytes.HasPrefix(rest, cdataOpen):
			i = skipPast(data, i+len(cdataOpen), cdataClose)

			continue
		}

		if i+1 < len(data) && opensMarkup(data[i+1]) {
			continue
		}

		if out == nil {
			out = make([]byte, 0, len(data)+16)
		}

		out = append(out, data[last:i]...)
		out = append(out, "&lt;"...)
		last = i + 1
	}

	if out == nil {
		return data
	}

	return append(out, data[last:]...)
}

// skipPast returns the index of the last byte of the first terminator at or
// after from, or the end of data when the section is never closed.
func skipPast(data []byte, from int, terminator []byte) int {
	end := bytes.Index(data[from:], terminator)
	if end < 0 {
		return len(data)
	}

	return from + end + len(terminator) - 1
}

func opensMarkup(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c == '/', c == '!', c == '?', c == '_', c == ':':
		return true
	}

	return c >= utf8.RuneSelf
}
