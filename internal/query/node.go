package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Kind identifies which variant of the Node union is populated.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "scalar"
	}
}

// Field is one key of an Object node. Object fields keep their source order,
// which matters for sort specifications and pipeline stages.
type Field struct {
	Key   string
	Value *Node
}

// Node is an ordered JSON-like tree. Scalars hold string, json.Number, bool,
// nil or time.Time (after date normalization).
type Node struct {
	Kind   Kind
	Fields []Field
	Items  []*Node
	Value  any
}

// Object builds an object node with fields in the given order.
func Object(fields ...Field) *Node { return &Node{Kind: KindObject, Fields: fields} }

// Array builds an array node.
func Array(items ...*Node) *Node { return &Node{Kind: KindArray, Items: items} }

// Scalar builds a leaf node holding v.
func Scalar(v any) *Node { return &Node{Kind: KindScalar, Value: v} }

// F builds an object field, for use with Object.
func F(key string, value *Node) Field {
	return Field{Key: key, Value: value}
}

// Get returns the value of the first field named key.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != KindObject {
		return nil, false
	}
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the field names of an object in order, or nil for other kinds.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(n.Fields))
	for _, f := range n.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// Len is the number of fields of an object or items of an array.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case KindObject:
		return len(n.Fields)
	case KindArray:
		return len(n.Items)
	}
	return 0
}

// AsString returns the value of a string scalar.
func (n *Node) AsString() (string, bool) {
	if n == nil || n.Kind != KindScalar {
		return "", false
	}
	s, ok := n.Value.(string)
	return s, ok
}

// Transform rebuilds the tree bottom-up, applying fn to every node after its
// children have been transformed. The receiver is not modified.
func (n *Node) Transform(fn func(*Node) *Node) *Node {
	if n == nil {
		return nil
	}
	var out *Node
	switch n.Kind {
	case KindObject:
		fields := make([]Field, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = Field{Key: f.Key, Value: f.Value.Transform(fn)}
		}
		out = &Node{Kind: KindObject, Fields: fields}
	case KindArray:
		items := make([]*Node, len(n.Items))
		for i, item := range n.Items {
			items[i] = item.Transform(fn)
		}
		out = &Node{Kind: KindArray, Items: items}
	default:
		out = &Node{Kind: KindScalar, Value: n.Value}
	}
	return fn(out)
}

// Walk visits every node depth-first, parents before children.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, f := range n.Fields {
		f.Value.Walk(fn)
	}
	for _, item := range n.Items {
		item.Walk(fn)
	}
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	return n.Transform(func(n *Node) *Node { return n })
}

// Equal reports deep equality, including field order.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Kind != o.Kind {
		return false
	}
	switch n.Kind {
	case KindObject:
		if len(n.Fields) != len(o.Fields) {
			return false
		}
		for i := range n.Fields {
			if n.Fields[i].Key != o.Fields[i].Key || !n.Fields[i].Value.Equal(o.Fields[i].Value) {
				return false
			}
		}
		return true
	case KindArray:
		if len(n.Items) != len(o.Items) {
			return false
		}
		for i := range n.Items {
			if !n.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	}
	if a, ok := n.Value.(time.Time); ok {
		b, ok := o.Value.(time.Time)
		return ok && a.Equal(b)
	}
	return n.Value == o.Value
}

// ParseNode decodes JSON into a Node, preserving object key order.
func ParseNode(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeNode(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return n, nil
}

func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return Scalar(tok), nil
	}
	switch delim {
	case '{':
		n := Object()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("expected object key, got %v", keyTok)
			}
			value, err := decodeNode(dec)
			if err != nil {
				return nil, err
			}
			n.Fields = append(n.Fields, F(key, value))
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return n, nil
	case '[':
		n := Array()
		for dec.More() {
			item, err := decodeNode(dec)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, item)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return n, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := ParseNode(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.Kind {
	case KindObject:
		buf.WriteByte('{')
		for i, f := range n.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindArray:
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(n.Value)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// ToBSON converts the tree to driver values: objects become bson.D, arrays
// bson.A, whole numbers int64 and other numbers float64.
func (n *Node) ToBSON() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindObject:
		doc := make(bson.D, 0, len(n.Fields))
		for _, f := range n.Fields {
			doc = append(doc, bson.E{Key: f.Key, Value: f.Value.ToBSON()})
		}
		return doc
	case KindArray:
		arr := make(bson.A, 0, len(n.Items))
		for _, item := range n.Items {
			arr = append(arr, item.ToBSON())
		}
		return arr
	}
	if num, ok := n.Value.(json.Number); ok {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
		return num.String()
	}
	return n.Value
}
