// Package rawdoc holds agent inventory XML as a schema-less tree of string
// leaves, ordered lists (repeated tags) and ordered maps.
package rawdoc

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged union: a string leaf, an ordered list or an ordered map.
// The zero Value is an empty string leaf.
type Value struct {
	kind Kind
	str  string
	list []Value
	m    *Map
	seq  int // start-tag position of a parsed leaf
}

// StringValue returns a leaf value.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// ListValue returns a list of the given items in order.
func ListValue(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// MapValue wraps m. A nil m is treated as empty.
func MapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// First returns the first item of a list, or v itself for other kinds.
// An empty list yields an empty string leaf.
func (v Value) First() Value {
	if v.kind != KindList {
		return v
	}
	if len(v.list) == 0 {
		return Value{}
	}
	return v.list[0]
}

// Items returns the list items, or a one-element slice holding v.
func (v Value) Items() []Value {
	if v.kind == KindList {
		return v.list
	}
	return []Value{v}
}

// Len is the number of list items, 1 for leaves and maps.
func (v Value) Len() int {
	if v.kind == KindList {
		return len(v.list)
	}
	return 1
}

// Text returns the leaf text. Lists yield the text of their first item and
// maps yield "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindList:
		return v.First().Text()
	default:
		return ""
	}
}

// Map returns the map held by v (or by the first list item), or nil.
func (v Value) Map() *Map {
	switch v.kind {
	case KindMap:
		return v.m
	case KindList:
		return v.First().Map()
	default:
		return nil
	}
}

// Get looks up key in the map held by v. It follows First for lists.
func (v Value) Get(key string) (Value, bool) {
	m := v.Map()
	if m == nil {
		return Value{}, false
	}
	return m.Get(key)
}

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   string
	Value Value
}

// Map is an insertion-ordered string-keyed map.
type Map struct {
	entries []Entry
	index   map[string]int
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{index: make(map[string]int)}
}

// Len returns the number of distinct keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	i, ok := m.index[key]
	if !ok {
		return Value{}, false
	}
	return m.entries[i].Value, true
}

// Keys returns keys in first-insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns the entries in first-insertion order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	return m.entries
}

// Add stores v under key. A second Add for the same key promotes the stored
// value to a list and further Adds append to it, preserving order.
func (m *Map) Add(key string, v Value) {
	i, ok := m.index[key]
	if !ok {
		m.index[key] = len(m.entries)
		m.entries = append(m.entries, Entry{Key: key, Value: v})
		return
	}
	cur := m.entries[i].Value
	if cur.kind == KindList {
		cur.list = append(cur.list, v)
		m.entries[i].Value = cur
		return
	}
	m.entries[i].Value = ListValue(cur, v)
}

// Interface converts the value into plain Go values: string,
// []interface{} and map[string]interface{}.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, v.m.Len())
		for _, e := range v.m.Entries() {
			out[e.Key] = e.Value.Interface()
		}
		return out
	default:
		return v.str
	}
}
