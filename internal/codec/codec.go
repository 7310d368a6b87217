// Package codec provides the wire codecs used for reports and service
// responses.
//
// The agent speaks either JSON or CBOR, chosen once per agent instance. The
// format name is also part of the metrics topic, so the detection service
// can decode a report without sniffing the payload.
package codec

import "errors"

// ErrNotFound is returned by Lookup helpers when a requested field is
// absent. Absent fields are expected during response classification and are
// never treated as decode failures.
var ErrNotFound = errors.New("codec: field not found")

// Codec encodes report documents and decodes service responses.
type Codec interface {
	// Format returns the short format name ("json" or "cbor") used as the
	// format segment of metrics topics.
	Format() string

	// Marshal encodes v into the codec's wire format.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error
}

// ByFormat returns the codec for a format name.
func ByFormat(format string) (Codec, error) {
	switch format {
	case FormatJSON:
		return NewJSON(), nil
	case FormatCBOR:
		return NewCBOR()
	default:
		return nil, errors.New("codec: unknown format " + format)
	}
}

// DecodeMap decodes data as a top-level map. Service responses are maps;
// anything else is a protocol error.
func DecodeMap(c Codec, data []byte) (map[string]any, error) {
	var m map[string]any
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("codec: top-level document is not a map")
	}
	return m, nil
}

// Lookup walks a decoded document along path, descending into nested maps.
// It returns ErrNotFound when any path element is absent, and a descriptive
// error when an intermediate element is not a map. Callers decide whether
// absence is significant.
func Lookup(m map[string]any, path ...string) (any, error) {
	var current any = m
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, errors.New("codec: field " + key + " parent is not a map")
		}
		current, ok = node[key]
		if !ok {
			return nil, ErrNotFound
		}
	}
	return current, nil
}

// LookupString is Lookup for text fields.
func LookupString(m map[string]any, path ...string) (string, error) {
	v, err := Lookup(m, path...)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.New("codec: field " + path[len(path)-1] + " is not a string")
	}
	return s, nil
}

// LookupInt is Lookup for integer fields. JSON decodes numbers as float64
// and CBOR as int64 or uint64; all are accepted.
func LookupInt(m map[string]any, path ...string) (int64, error) {
	v, err := Lookup(m, path...)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	default:
		return 0, errors.New("codec: field " + path[len(path)-1] + " is not an integer")
	}
}
