// internal/schema/load.go
package schema

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Table-wide fallbacks applied when neither the entry nor the defaults
// block sets a key.
const (
	defaultFunction    = "holding"
	defaultType        = "uint16"
	defaultByteOrder   = "AB"
	defaultMeasurement = "deye"
	defaultCount       = 1
	defaultMultiply    = 1.0
	defaultOffset      = 0.0
)

// document mirrors the YAML layout: an optional defaults mapping that is
// layered under every register entry before the entry's own keys.
type document struct {
	Defaults  map[string]interface{}   `yaml:"defaults"`
	Registers []map[string]interface{} `yaml:"registers"`
}

// Load reads and validates a register table file. On any violation it
// returns a *Error listing every issue found; the returned Table is nil
// unless the load succeeded.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read register table")
	}
	tbl, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return tbl, nil
}

// Parse builds a Table from raw YAML. Defaults merge, alias resolution
// and coercion happen first, then Validate runs over the built entries.
// All problems across all entries are reported in one *Error.
func Parse(raw []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "unmarshal register table")
	}
	if len(doc.Registers) == 0 {
		return nil, &Error{Issues: []string{"registers list is empty"}}
	}

	entries := make([]Entry, 0, len(doc.Registers))
	var issues []string
	for i, item := range doc.Registers {
		merged := merge(doc.Defaults, item)
		e, errs := buildEntry(merged, i)
		if len(errs) > 0 {
			issues = append(issues, errs...)
			continue
		}
		entries = append(entries, e)
	}

	warnings, verrs := Validate(entries)
	issues = append(issues, verrs...)
	if len(issues) > 0 {
		return nil, &Error{Issues: issues}
	}
	return &Table{Entries: entries, Warnings: warnings}, nil
}

// merge layers an entry over the defaults block. The entry wins on
// conflicts. Neither input is mutated.
func merge(defaults, item map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(defaults)+len(item))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range item {
		out[k] = v
	}
	return out
}

// buildEntry coerces one merged mapping into an Entry. Alias pairs
// (function/func, type/dtype, multiply/scale, field/name) resolve with
// the canonical key winning when both are present.
func buildEntry(m map[string]interface{}, idx int) (Entry, []string) {
	var errs []string
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf("registers[%d]: %s", idx, fmt.Sprintf(format, args...)))
	}

	id, ok := stringKey(m, "id")
	if !ok || id == "" {
		fail("missing required key id")
	}

	addr, ok, err := intKey(m, "address")
	if !ok {
		fail("missing required key address")
	} else if err != nil {
		fail("address: %v", err)
	} else if addr < 0 || addr > 0xFFFF {
		fail("address %d out of range 0..65535", addr)
	}

	count := defaultCount
	if c, present, err := intKey(m, "count"); present {
		if err != nil {
			fail("count: %v", err)
		} else {
			count = c
		}
	}
	if count != 1 && count != 2 {
		fail("count %d must be 1 or 2", count)
	}

	fnName := pick(m, defaultFunction, "function", "func")
	fn, err := ParseFunction(fnName)
	if err != nil {
		fail("%v", err)
	}

	typeName := pick(m, defaultType, "type", "dtype")
	dt, err := ParseDataType(typeName)
	if err != nil {
		fail("%v", err)
	}

	orderName := pick(m, defaultByteOrder, "byte_order")
	order, err := ParseByteOrder(orderName)
	if err != nil {
		fail("%v", err)
	}

	multiply := defaultMultiply
	if v, present, err := floatKeys(m, "multiply", "scale"); present {
		if err != nil {
			fail("multiply: %v", err)
		} else {
			multiply = v
		}
	}
	offset := defaultOffset
	if v, present, err := floatKeys(m, "offset"); present {
		if err != nil {
			fail("offset: %v", err)
		} else {
			offset = v
		}
	}

	measurement := pick(m, defaultMeasurement, "measurement")
	field := pick(m, id, "field", "name")

	tags, err := tagsKey(m)
	if err != nil {
		fail("tags: %v", err)
	}

	if len(errs) > 0 {
		return Entry{}, errs
	}
	return Entry{
		ID:          id,
		Address:     uint16(addr),
		Count:       uint16(count),
		Function:    fn,
		Type:        dt,
		ByteOrder:   order,
		Multiply:    multiply,
		Offset:      offset,
		Measurement: measurement,
		Field:       field,
		Tags:        tags,
	}, nil
}

// ---- YAML value coercion ----
//
// yaml.v3 hands back interface{} values; tables in the wild quote
// numbers, so numeric keys accept strings as well.

func stringKey(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// pick returns the first present key's string value, else the fallback.
func pick(m map[string]interface{}, fallback string, keys ...string) string {
	for _, k := range keys {
		if s, ok := stringKey(m, k); ok && s != "" {
			return s
		}
	}
	return fallback
}

func intKey(m map[string]interface{}, key string) (val int, present bool, err error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case uint64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, true, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), true, nil
	case string:
		i, cerr := strconv.Atoi(n)
		if cerr != nil {
			return 0, true, fmt.Errorf("%q is not an integer", n)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

func floatKeys(m map[string]interface{}, keys ...string) (val float64, present bool, err error) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true, nil
		case int:
			return float64(n), true, nil
		case int64:
			return float64(n), true, nil
		case string:
			f, cerr := strconv.ParseFloat(n, 64)
			if cerr != nil {
				return 0, true, fmt.Errorf("%q is not a number", n)
			}
			return f, true, nil
		default:
			return 0, true, fmt.Errorf("unsupported value %v (%T)", v, v)
		}
	}
	return 0, false, nil
}

func tagsKey(m map[string]interface{}) (map[string]string, error) {
	v, ok := m["tags"]
	if !ok || v == nil {
		return nil, nil
	}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("must be a mapping, got %T", v)
	}
	tags := make(map[string]string, len(raw))
	for k, tv := range raw {
		if s, ok := tv.(string); ok {
			tags[k] = s
			continue
		}
		tags[k] = fmt.Sprintf("%v", tv)
	}
	return tags, nil
}
