package crypto

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize encodes v as canonical JSON: object keys sorted after NFC
// normalization, nil members dropped, integers only. Audit bodies are hashed
// and signed over these bytes, so the encoding must never change shape for
// equal inputs.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case string:
		return encodeString(buf, value)
	case bool:
		buf.WriteString(strconv.FormatBool(value))
		return nil
	case int:
		buf.WriteString(strconv.Itoa(value))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(value, 10))
		return nil
	case json.Number:
		return encodeNumber(buf, value)
	case []string:
		if value == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('[')
		for i, s := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, s); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		return encodeObject(buf, value)
	}
	return encodeReflect(buf, reflect.ValueOf(v))
}

func encodeReflect(buf *bytes.Buffer, rv reflect.Value) error {
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Invalid:
		buf.WriteString("null")
		return nil
	case reflect.String:
		return encodeString(buf, rv.String())
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return ErrFloatNotAllowed
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return ErrNonStringMapKey
		}
		obj := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			obj[iter.Key().String()] = iter.Value().Interface()
		}
		return encodeObject(buf, obj)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		return ErrUnsupportedType
	}
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	values := make(map[string]any, len(obj))
	for key, val := range obj {
		normalized := norm.NFC.String(key)
		if _, dup := values[normalized]; dup {
			return ErrKeyCollision
		}
		values[normalized] = val
		if isNil(val) {
			continue
		}
		keys = append(keys, normalized)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encode(buf, values[key]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(out.Bytes(), []byte("\n")))
	return nil
}

func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if strings.ContainsAny(n.String(), ".eE") {
		return ErrFloatNotAllowed
	}
	value, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return ErrFloatNotAllowed
	}
	buf.WriteString(strconv.FormatInt(value, 10))
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
