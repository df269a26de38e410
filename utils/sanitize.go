package utils

import (
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
)

const UnserializablePlaceholder = "<unserializable>"

// Sanitize returns a value that is guaranteed to marshal. Leaves that fail
// to serialize are stringified; if even stringification panics, the leaf is
// replaced with UnserializablePlaceholder. Containers are rebuilt
// recursively so one bad field never aborts the whole write.
func Sanitize(value interface{}) interface{} {
	if value == nil {
		return nil
	}

	if _, err := sonic.ConfigDefault.Marshal(value); err == nil {
		return value
	}

	return sanitizeValue(reflect.ValueOf(value))
}

// SizeOf reports the serialized byte length of a value, sanitizing first if
// the raw value cannot be marshalled.
func SizeOf(value interface{}) int64 {
	data, err := Marshal(value)
	if err != nil {
		data, err = Marshal(Sanitize(value))
		if err != nil {
			return int64(len(UnserializablePlaceholder))
		}
	}
	return int64(len(data))
}

func sanitizeValue(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return sanitizeValue(v.Elem())

	case reflect.Map:
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprintf("%v", iter.Key().Interface())] = sanitizeLeafOrRecurse(iter.Value())
		}
		return out

	case reflect.Slice, reflect.Array:
		out := make([]interface{}, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			out = append(out, sanitizeLeafOrRecurse(v.Index(i)))
		}
		return out

	case reflect.Struct:
		out := make(map[string]interface{}, v.NumField())
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			out[t.Field(i).Name] = sanitizeLeafOrRecurse(v.Field(i))
		}
		return out

	default:
		return stringifyLeaf(v)
	}
}

func sanitizeLeafOrRecurse(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}

	if v.CanInterface() {
		raw := v.Interface()
		if _, err := sonic.ConfigDefault.Marshal(raw); err == nil {
			return raw
		}
	}

	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Interface, reflect.Pointer:
		return sanitizeValue(v)
	default:
		return stringifyLeaf(v)
	}
}

func stringifyLeaf(v reflect.Value) (result interface{}) {
	defer func() {
		if recover() != nil {
			result = UnserializablePlaceholder
		}
	}()

	if !v.CanInterface() {
		return UnserializablePlaceholder
	}

	return fmt.Sprintf("%v", v.Interface())
}
