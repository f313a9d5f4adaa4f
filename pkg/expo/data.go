package expo

import (
	"fmt"
	"reflect"
	"strconv"
)

// normalizeData checks the `data` payload shape. nil clears the field, an empty
// list becomes an empty object, key/value maps and structs pass through unchanged.
func normalizeData(data any) (any, error) {
	if data == nil {
		return nil, nil
	}

	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return map[string]any{}, nil
		}
		return nil, &InvalidMessageDataError{TypeName: typeName(data)}
	case reflect.Map:
		if isListShaped(v) {
			return nil, &InvalidMessageDataError{TypeName: typeName(data)}
		}
		return data, nil
	case reflect.Struct:
		return data, nil
	case reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		switch elem := v.Elem(); elem.Kind() {
		case reflect.Struct:
			return data, nil
		case reflect.Map:
			if !isListShaped(elem) {
				return data, nil
			}
		}
	}
	return nil, &InvalidMessageDataError{TypeName: typeName(data)}
}

// isListShaped reports whether a map's keys are exactly the integers 0..n-1.
// Empty maps are map-shaped.
func isListShaped(m reflect.Value) bool {
	n := m.Len()
	if n == 0 {
		return false
	}
	seen := make([]bool, n)
	iter := m.MapRange()
	for iter.Next() {
		idx, ok := intKey(iter.Key())
		if !ok || idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

func intKey(k reflect.Value) (int, bool) {
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(k.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(k.Uint()), true
	case reflect.String:
		s := k.String()
		i, err := strconv.Atoi(s)
		// only canonical decimals count, "01" or "+1" are ordinary keys
		if err != nil || strconv.Itoa(i) != s {
			return 0, false
		}
		return i, true
	case reflect.Interface:
		if k.IsNil() {
			return 0, false
		}
		return intKey(k.Elem())
	}
	return 0, false
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
