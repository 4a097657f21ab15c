package research

import (
	"bytes"
	"encoding/json"
	"log"
	"reflect"
	"strconv"
	"strings"
)

// UnmarshalJSON decodes a record without letting one badly typed field
// discard the rest. Numbers and booleans sent where text is expected become
// text, a lone value sent where a list is expected becomes a one-item list,
// and anything else that does not fit is dropped and logged.
func (r *Record) UnmarshalJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return err
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return &json.UnmarshalTypeError{Value: jsonKind(tree), Type: reflect.TypeFor[Record]()}
	}
	fixed, _ := coerce(reflect.TypeFor[plainRecord](), obj, "record")
	norm, err := json.Marshal(fixed)
	if err != nil {
		return err
	}
	var out plainRecord
	if err := json.Unmarshal(norm, &out); err != nil {
		return err
	}
	*r = Record(out)
	return nil
}

// plainRecord has Record's fields without its UnmarshalJSON.
type plainRecord Record

var (
	yearType        = reflect.TypeFor[Year]()
	competitorsType = reflect.TypeFor[Competitors]()
	fundingType     = reflect.TypeFor[Funding]()
)

// coerce reshapes a decoded JSON value so it fits t. The bool result is
// false when v cannot be used at all and should be left out.
func coerce(t reflect.Type, v any, path string) (any, bool) {
	if v == nil {
		return nil, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t {
	case yearType:
		return v, true
	case competitorsType:
		switch x := v.(type) {
		case []any:
			return coerce(reflect.TypeFor[[]string](), x, path)
		case map[string]any:
			return coerce(reflect.TypeFor[competitorsObject](), x, path)
		}
		return drop(path, v)
	case fundingType:
		switch x := v.(type) {
		case string:
			return x, true
		case map[string]any:
			return coerce(reflect.TypeFor[fundingObject](), x, path)
		}
		return drop(path, v)
	}

	switch t.Kind() {
	case reflect.String:
		switch x := v.(type) {
		case string:
			return x, true
		case json.Number:
			return x.String(), true
		case bool:
			return strconv.FormatBool(x), true
		}
		return drop(path, v)
	case reflect.Int, reflect.Int64, reflect.Float64:
		switch x := v.(type) {
		case json.Number:
			return x, true
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return json.Number(strings.TrimSpace(x)), true
			}
		}
		return drop(path, v)
	case reflect.Slice:
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			if c, ok := coerce(t.Elem(), item, path+"["+strconv.Itoa(i)+"]"); ok {
				out = append(out, c)
			}
		}
		if len(out) == 0 && len(items) > 0 {
			return nil, false
		}
		return out, true
	case reflect.Struct:
		obj, ok := v.(map[string]any)
		if !ok {
			return drop(path, v)
		}
		out := make(map[string]any, len(obj))
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := jsonName(f)
			if name == "" {
				continue
			}
			val, present := obj[name]
			if !present {
				continue
			}
			if c, ok := coerce(f.Type, val, path+"."+name); ok {
				out[name] = c
			}
		}
		return out, true
	}
	return v, true
}

func drop(path string, v any) (any, bool) {
	log.Printf("research: ignoring %s: unexpected %s", path, jsonKind(v))
	return nil, false
}

func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "value"
}
