package rawdoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"
)

// MaxDepth bounds element nesting; deeper documents are rejected.
const MaxDepth = 64

// ErrParse is wrapped by every error returned from the Parse functions.
var ErrParse = errors.New("xml parse error")

// Document is a parsed inventory report. The root element is dropped:
// Root holds the root's children.
type Document struct {
	RootTag string
	Root    *Map
}

// Empty reports whether the root element had no children.
func (d *Document) Empty() bool {
	return d == nil || d.Root.Len() == 0
}

// Lookup walks path from the root. When a segment resolves to a list, the
// first occurrence is used to continue.
func (d *Document) Lookup(path ...string) (Value, bool) {
	if d == nil || len(path) == 0 {
		return Value{}, false
	}
	cur := MapValue(d.Root)
	for _, key := range path {
		next, ok := cur.Get(key)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// LookupText is Lookup followed by Text.
func (d *Document) LookupText(path ...string) string {
	v, ok := d.Lookup(path...)
	if !ok {
		return ""
	}
	return v.Text()
}

type leaf struct {
	path []string
	text string
	seq  int
}

// Walk visits every string leaf in document order. path holds the keys from
// the root to the leaf; list items share their key. Repeated tags are
// grouped under their first occurrence in the tree, so parsed leaves are
// ordered by the position of their start tag instead of tree position.
func (d *Document) Walk(fn func(path []string, text string)) {
	if d == nil {
		return
	}
	var leaves []leaf
	collectMap(d.Root, nil, &leaves)
	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].seq < leaves[j].seq })
	for _, l := range leaves {
		fn(l.path, l.text)
	}
}

func collectMap(m *Map, path []string, out *[]leaf) {
	for _, e := range m.Entries() {
		next := make([]string, len(path)+1)
		copy(next, path)
		next[len(path)] = e.Key
		collectValue(e.Value, next, out)
	}
}

func collectValue(v Value, path []string, out *[]leaf) {
	switch v.Kind() {
	case KindString:
		*out = append(*out, leaf{path: path, text: v.str, seq: v.seq})
	case KindList:
		for _, item := range v.list {
			collectValue(item, path, out)
		}
	case KindMap:
		collectMap(v.m, path, out)
	}
}

// ParseFile reads and parses the XML file at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	defer f.Close()
	return Parse(f)
}

// ParseString parses raw XML text.
func ParseString(text string) (*Document, error) {
	return Parse(strings.NewReader(text))
}

// ParseBytes parses raw XML bytes.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

type frame struct {
	name     string
	seq      int
	children *Map
	text     strings.Builder
}

// Parse decodes one XML document from r. Declared non-UTF-8 encodings are
// converted. Element attributes and namespaces are ignored; only local tag
// names are kept. Text of elements that have children is discarded.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		stack []*frame
		doc   *Document
		seq   int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if doc != nil {
				return nil, fmt.Errorf("%w: content after root element <%s>", ErrParse, doc.RootTag)
			}
			if len(stack) >= MaxDepth {
				return nil, fmt.Errorf("%w: nesting deeper than %d", ErrParse, MaxDepth)
			}
			seq++
			stack = append(stack, &frame{name: t.Name.Local, seq: seq, children: NewMap()})
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if len(stack) == 0 {
				doc = &Document{RootTag: top.name, Root: top.children}
				continue
			}

			var v Value
			if top.children.Len() > 0 {
				v = MapValue(top.children)
			} else {
				v = StringValue(top.text.String())
				v.seq = top.seq
			}
			stack[len(stack)-1].children.Add(top.name, v)
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unexpected end of input inside <%s>", ErrParse, stack[len(stack)-1].name)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: no root element", ErrParse)
	}
	return doc, nil
}
