package normalize

import (
	"bytes"
	"encoding/json"
)

// Shape identifies which wire variant a payload matched.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeWrappedBundle
	ShapeWrappedItems
	ShapeFlatList
	ShapeRecordsObject
	ShapeBareObject
)

func (s Shape) String() string {
	switch s {
	case ShapeWrappedBundle:
		return "wrapped_bundle"
	case ShapeWrappedItems:
		return "wrapped_items"
	case ShapeFlatList:
		return "flat_list"
	case ShapeRecordsObject:
		return "records_object"
	case ShapeBareObject:
		return "bare_object"
	default:
		return "empty"
	}
}

const (
	wrapperKey = "json"
	recordsKey = "records"
	fieldsKey  = "fields"
)

// item is one raw record object.
type item map[string]json.RawMessage

// props returns the nested field container when present.
func (it item) props() map[string]json.RawMessage {
	if v, ok := it[fieldsKey]; ok && firstByte(v) == '{' {
		var inner map[string]json.RawMessage
		if json.Unmarshal(v, &inner) == nil {
			return inner
		}
	}
	return it
}

// id reads the identifier from the item root. Empty strings and zero fall
// back to def.
func (it item) id(def string) string {
	v, ok := it["id"]
	if !ok {
		return def
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		if s == "" {
			return def
		}
		return s
	}
	var n json.Number
	if json.Unmarshal(v, &n) == nil && n.String() != "0" {
		return n.String()
	}
	return def
}

type variant struct {
	shape  Shape
	decode func(json.RawMessage) ([]item, bool)
}

// variants are tried in order; the first that accepts the payload wins.
var variants = []variant{
	{ShapeWrappedBundle, decodeWrappedBundle},
	{ShapeWrappedItems, decodeWrappedItems},
	{ShapeFlatList, decodeFlatList},
	{ShapeRecordsObject, decodeRecordsObject},
	{ShapeBareObject, decodeBareObject},
}

func decode(raw json.RawMessage) (Shape, []item) {
	for _, v := range variants {
		if items, ok := v.decode(raw); ok {
			return v.shape, items
		}
	}
	return ShapeEmpty, nil
}

// wrappers decodes a non-empty array whose first element carries a non-null
// wrapper key.
func wrappers(raw json.RawMessage) ([]json.RawMessage, json.RawMessage, bool) {
	if firstByte(raw) != '[' {
		return nil, nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return nil, nil, false
	}
	first := asItem(arr[0])
	if first == nil {
		return nil, nil, false
	}
	payload, ok := first[wrapperKey]
	if !ok || isNull(payload) {
		return nil, nil, false
	}
	return arr, payload, true
}

func decodeWrappedBundle(raw json.RawMessage) ([]item, bool) {
	_, payload, ok := wrappers(raw)
	if !ok || firstByte(payload) != '[' {
		return nil, false
	}
	return asItems(payload)
}

func decodeWrappedItems(raw json.RawMessage) ([]item, bool) {
	arr, payload, ok := wrappers(raw)
	if !ok || firstByte(payload) == '[' {
		return nil, false
	}
	items := make([]item, len(arr))
	for i, w := range arr {
		if wi := asItem(w); wi != nil {
			items[i] = asItem(wi[wrapperKey])
		}
	}
	return items, true
}

func decodeFlatList(raw json.RawMessage) ([]item, bool) {
	if firstByte(raw) != '[' {
		return nil, false
	}
	return asItems(raw)
}

func decodeRecordsObject(raw json.RawMessage) ([]item, bool) {
	obj := asItem(raw)
	if obj == nil {
		return nil, false
	}
	recs, ok := obj[recordsKey]
	if !ok || firstByte(recs) != '[' {
		return nil, false
	}
	return asItems(recs)
}

func decodeBareObject(raw json.RawMessage) ([]item, bool) {
	obj := asItem(raw)
	if obj == nil {
		return nil, false
	}
	return []item{obj}, true
}

// asItems decodes an array; elements that are not objects become nil.
func asItems(raw json.RawMessage) ([]item, bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, false
	}
	items := make([]item, len(arr))
	for i, el := range arr {
		items[i] = asItem(el)
	}
	return items, true
}

func asItem(raw json.RawMessage) item {
	if firstByte(raw) != '{' {
		return nil
	}
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil
	}
	return it
}

func firstByte(raw json.RawMessage) byte {
	b := bytes.TrimLeft(raw, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
