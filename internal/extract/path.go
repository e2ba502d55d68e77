package extract

import (
	"fmt"
	"math"
	"sheltercrawl/internal/tables"
)

// Path is a sequence of steps into classified report data, ints index into lists
// (negative ints count from the end) and strings look up sections by name.
type Path []any

// Lookuper is implemented by containers addressed by name, classify.Classification
// being the main one.
type Lookuper interface {
	Lookup(key string) (any, bool)
}

func toIndex(step any) (int, bool) {
	switch n := step.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func normalizeIndex(idx, length int) (int, error) {
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("index out of range [%d] with length %d", idx, length)
	}
	return idx, nil
}

func toPath(value any) (Path, error) {
	switch p := value.(type) {
	case Path:
		return p, nil
	case []any:
		return Path(p), nil
	case []int:
		out := make(Path, len(p))
		for i, v := range p {
			out[i] = v
		}
		return out, nil
	case []string:
		out := make(Path, len(p))
		for i, v := range p {
			out[i] = v
		}
		return out, nil
	case int, int64, float64, string:
		return Path{p}, nil
	}
	return nil, fmt.Errorf("path of type %T", value)
}

// Resolve walks `path` starting at `data`.
func Resolve(data any, path Path) (any, error) {
	current := data
	for i, step := range path {
		next, err := resolveStep(current, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%v): %w", i, step, err)
		}
		current = next
	}
	return current, nil
}

func resolveStep(current, step any) (any, error) {
	if key, ok := step.(string); ok {
		container, ok := current.(Lookuper)
		if !ok {
			return nil, fmt.Errorf("cannot look up %q in %T", key, current)
		}
		value, ok := container.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("no section %q", key)
		}
		return value, nil
	}

	idx, ok := toIndex(step)
	if !ok {
		return nil, fmt.Errorf("invalid step of type %T", step)
	}

	switch node := current.(type) {
	case []tables.Frame:
		i, err := normalizeIndex(idx, len(node))
		if err != nil {
			return nil, err
		}
		return node[i], nil
	case tables.Frame:
		i, err := normalizeIndex(idx, len(node))
		if err != nil {
			return nil, err
		}
		return node[i], nil
	case tables.Row:
		i, err := normalizeIndex(idx, len(node))
		if err != nil {
			return nil, err
		}
		return node[i], nil
	case []string:
		i, err := normalizeIndex(idx, len(node))
		if err != nil {
			return nil, err
		}
		return node[i], nil
	}
	return nil, fmt.Errorf("cannot index into %T", current)
}
