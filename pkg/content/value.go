// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package content

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxDepth bounds recursion on self-referencing or pathological values.
const maxDepth = 64

// Value converts v into a tree containing only nil, bool, float64/int64,
// string, []any and map[string]any. Values that cannot be represented degrade
// to their fmt string form.
func Value(v any) any {
	return convert(v, 0)
}

func convert(v any, depth int) (out any) {
	if depth > maxDepth {
		return fmt.Sprintf("%v", v)
	}
	defer func() {
		if r := recover(); r != nil {
			out = fallback(v)
		}
	}()

	switch t := v.(type) {
	case nil:
		return nil
	case string, bool:
		return t
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return finite(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return finite(f)
		}
		return t.String()
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err != nil {
			return string(t)
		}
		return convert(decoded, depth+1)
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case time.Duration:
		return t.String()
	case error:
		return t.Error()
	case mcp.Content:
		return Classify(t).Render()
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = convert(val, depth+1)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = convert(val, depth+1)
		}
		return s
	case json.Marshaler:
		return viaJSON(t, depth)
	case encoding.TextMarshaler:
		text, err := t.MarshalText()
		if err != nil {
			return fallback(v)
		}
		return string(text)
	}

	return convertReflect(reflect.ValueOf(v), depth)
}

func convertReflect(rv reflect.Value, depth int) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return convert(rv.Elem().Interface(), depth+1)
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return fmt.Sprintf("%d", u)
		}
		return int64(u)
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 && rv.Kind() == reflect.Slice {
			return base64.StdEncoding.EncodeToString(rv.Bytes())
		}
		s := make([]any, rv.Len())
		for i := range s {
			s[i] = convert(rv.Index(i).Interface(), depth+1)
		}
		return s
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = convert(iter.Value().Interface(), depth+1)
		}
		return m
	case reflect.Struct:
		return viaJSON(rv.Interface(), depth)
	default:
		// chan, func, complex and unsafe pointers have no JSON form.
		return fallback(rv.Interface())
	}
}

// viaJSON round-trips structs through encoding/json so their json tags and
// MarshalJSON methods decide the field names.
func viaJSON(v any, depth int) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return fallback(v)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fallback(v)
	}
	return convert(decoded, depth+1)
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("%v", f)
	}
	return f
}

func fallback(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
