package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Args is the decoded JSON input of a tool call.
type Args map[string]any

func (a Args) String(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", fmt.Errorf("missing required argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", name)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("missing required argument %q", name)
	}
	return s, nil
}

func (a Args) OptString(name, def string) string {
	if s, ok := a[name].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return def
}

// Int accepts JSON numbers and numeric strings; def is returned when the
// argument is absent.
func (a Args) Int(name string, def int) (int, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("argument %q must be an integer", name)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer", name)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer", name)
		}
		return i, nil
	}
	return 0, fmt.Errorf("argument %q must be an integer", name)
}

func (a Args) Bool(name string, def bool) bool {
	switch b := a[name].(type) {
	case bool:
		return b
	case string:
		if v, err := strconv.ParseBool(b); err == nil {
			return v
		}
	}
	return def
}

// Map returns an object argument. Models sometimes send objects as JSON
// strings, so those are decoded too.
func (a Args) Map(name string) (map[string]any, error) {
	m, err := a.OptMap(name)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("missing required argument %q", name)
	}
	return m, nil
}

func (a Args) OptMap(name string) (map[string]any, error) {
	switch v := a[name].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("argument %q must be an object", name)
		}
		return m, nil
	}
	return nil, fmt.Errorf("argument %q must be an object", name)
}

// StringMap flattens an object argument to string values, as used for
// headers and query parameters.
func (a Args) StringMap(name string) (map[string]string, error) {
	m, err := a.OptMap(name)
	if err != nil || m == nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch s := v.(type) {
		case string:
			out[k] = s
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out, nil
}
