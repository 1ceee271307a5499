// Package payload provides tolerant accessors over decoded, loosely typed
// JSON objects. Lookups never panic: a missing key or a value of the wrong
// type reads as absent.
package payload

import (
	"math"
	"strconv"
	"strings"
)

// Object is a decoded JSON object
type Object map[string]interface{}

// AsObject returns v as an Object when it is a JSON object
func AsObject(v interface{}) (Object, bool) {
	switch o := v.(type) {
	case map[string]interface{}:
		return Object(o), true
	case Object:
		return o, true
	}
	return nil, false
}

// Object returns the nested object stored under key, or nil
func (o Object) Object(key string) Object {
	if o == nil {
		return nil
	}
	nested, _ := AsObject(o[key])
	return nested
}

// String returns the trimmed string stored under key. Non-string values
// read as empty.
func (o Object) String(key string) string {
	if o == nil {
		return ""
	}
	s, _ := o[key].(string)
	return strings.TrimSpace(s)
}

// Identifier returns the string stored under key, or a JSON number written
// in decimal form. Workflow tools often emit numeric IDs. Other values read
// as empty.
func (o Object) Identifier(key string) string {
	if o == nil {
		return ""
	}
	switch v := o[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// FirstString returns the first non-empty string among keys
func (o Object) FirstString(keys ...string) string {
	for _, key := range keys {
		if s := o.String(key); s != "" {
			return s
		}
	}
	return ""
}

// Bool reads an explicit boolean under key. JSON booleans and the strings
// "true"/"false" (any case) count; anything else is reported as unset.
func (o Object) Bool(key string) (value bool, set bool) {
	if o == nil {
		return false, false
	}
	switch v := o[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// Int reads a non-negative integer under key from a JSON number or a
// numeric string
func (o Object) Int(key string) (int64, bool) {
	if o == nil {
		return 0, false
	}
	switch v := o[key].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, v >= 0
	case int:
		return int64(v), v >= 0
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Array returns the array stored under key, or nil
func (o Object) Array(key string) []interface{} {
	if o == nil {
		return nil
	}
	arr, _ := o[key].([]interface{})
	return arr
}
