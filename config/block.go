package config

import (
	"fmt"
	"strconv"
	"time"
)

// Block is a subtree of the configuration: a map of keys to scalars or
// nested blocks. The zero value is an empty block.
type Block struct {
	props map[string]any
}

// NewBlock wraps props as a block. Intended for tests and programmatic setup.
func NewBlock(props map[string]any) *Block {
	return &Block{props: props}
}

// Lookup walks nested blocks by key and returns the scalar at the end of
// path. Blocks, lists and missing keys report false.
func (b *Block) Lookup(path ...string) (string, bool) {
	if b == nil || len(path) == 0 {
		return "", false
	}
	var cur any = b.props
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return "", false
		}
		if cur, ok = m[key]; !ok {
			return "", false
		}
	}
	return scalar(cur)
}

// String looks up a string property, returning def when absent.
func String(p Properties, def string, path ...string) string {
	if v, ok := p.Lookup(path...); ok {
		return v
	}
	return def
}

// Bool looks up a boolean property. Absent keys yield def.
func Bool(p Properties, def bool, path ...string) (bool, error) {
	v, ok := p.Lookup(path...)
	if !ok {
		return def, nil
	}
	switch v {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("property %v: %w", path, err)
	}
	return b, nil
}

// Int looks up an integer property. Absent keys yield def.
func Int(p Properties, def int, path ...string) (int, error) {
	v, ok := p.Lookup(path...)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("property %v: %w", path, err)
	}
	return n, nil
}

// Duration looks up a duration property such as "5s". Absent keys yield def.
func Duration(p Properties, def time.Duration, path ...string) (time.Duration, error) {
	v, ok := p.Lookup(path...)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("property %v: %w", path, err)
	}
	return d, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case entry:
		return m, true
	default:
		return nil, false
	}
}

func scalar(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case time.Time:
		return s.Format(time.RFC3339), true
	default:
		return "", false
	}
}
