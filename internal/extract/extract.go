// Package extract pulls labeled fields out of classified report tables using declarative
// rules.
//
// A rule is the 4-tuple (label, path, pattern, transform):
//
//	[]any{"gender", []any{"animal", 2, 1}, "male|female|unknown", "lowercase"}
//
// The path locates a cell, the pattern is searched for in the cell's text (case-insensitive,
// first occurrence) and the transform converts the trimmed match. Extraction degrades
// instead of failing: any problem with a rule leaves its label holding an empty string.
package extract

import (
	"fmt"
	"regexp"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/internal/tables"
	"strings"
	"sync"
)

const (
	report_parse_element = "engine.parse-element"
	report_subtable      = "engine.flexible-subtable"
)

// Record maps labels to values: strings, transformed values, or []Record for repeating
// sections.
type Record map[string]any

// Rule is a (label, path, pattern, transform) tuple.
//
//   - label must be a string
//   - path is a Path or anything convertible to one ([]any, []int, a single step)
//   - pattern is a string, a *regexp.Regexp, or nil/"" to take the whole cell
//   - transform is the name of a registered transform, a TransformFunc, or nil/"" to keep
//     the matched text
type Rule []any

// Spec is an ordered list of rules.
type Spec []Rule

// Engine applies rules, it is safe for concurrent use.
type Engine struct {
	tel        telemetry.API
	transforms Transforms
	mu         sync.RWMutex
	patterns   map[string]*regexp.Regexp
}

// NewEngine creates an engine with `transforms` registered, see DefaultTransforms.
func NewEngine(tel telemetry.API, transforms Transforms) *Engine {
	registry := Transforms{}
	for name, fn := range transforms {
		registry[name] = fn
	}
	return &Engine{
		tel:        telemetry.NewScopedAPI("extract", tel),
		transforms: registry,
		patterns:   map[string]*regexp.Regexp{},
	}
}

// Register adds or replaces a named transform, it must not be called concurrently with
// extraction.
func (e *Engine) Register(name string, fn TransformFunc) {
	e.transforms[name] = fn
}

func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.RLock()
	re, ok := e.patterns[pattern]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.patterns[pattern] = re
	e.mu.Unlock()
	return re, nil
}

func (e *Engine) pattern(value any) (*regexp.Regexp, error) {
	switch p := value.(type) {
	case nil:
		return nil, nil
	case string:
		if p == "" {
			return nil, nil
		}
		return e.compile(p)
	case *regexp.Regexp:
		return p, nil
	}
	return nil, fmt.Errorf("pattern of type %T", value)
}

func (e *Engine) transform(value any) (TransformFunc, error) {
	switch t := value.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		fn, ok := e.transforms[t]
		if !ok {
			return nil, fmt.Errorf("unknown transform %q", t)
		}
		return fn, nil
	case TransformFunc:
		return t, nil
	case func(string) (any, error):
		return t, nil
	}
	return nil, fmt.Errorf("transform of type %T", value)
}

func (e *Engine) applyTransform(label string, fn TransformFunc, text string) (value any) {
	defer func() {
		if r := recover(); r != nil {
			e.tel.ReportWarning(report_parse_element, label, fmt.Errorf("transform panicked: %v", r), text)
			value = text
		}
	}()

	out, err := fn(text)
	if err != nil {
		e.tel.ReportWarning(report_parse_element, label, fmt.Errorf("transform: %w", err), text)
		return text
	}
	return out
}

// ParseElement extracts a single field, the result always holds exactly one label.
// Malformed rules (wrong arity, non-string label) produce {"": ""}.
func (e *Engine) ParseElement(data any, rule Rule) (out Record) {
	defer func() {
		if r := recover(); r != nil {
			e.tel.ReportBroken(report_parse_element, fmt.Errorf("recovered: %v", r))
			out = Record{"": ""}
		}
	}()

	if len(rule) != 4 {
		e.tel.ReportWarning(report_parse_element, fmt.Errorf("rule has %d parts, expected 4", len(rule)), fmt.Sprint(rule))
		return Record{"": ""}
	}
	label, ok := rule[0].(string)
	if !ok {
		e.tel.ReportWarning(report_parse_element, fmt.Errorf("label of type %T", rule[0]), fmt.Sprint(rule))
		return Record{"": ""}
	}
	empty := Record{label: ""}

	re, err := e.pattern(rule[2])
	if err != nil {
		e.tel.ReportWarning(report_parse_element, label, fmt.Errorf("compile pattern: %w", err))
		return empty
	}

	path, err := toPath(rule[1])
	if err != nil {
		e.tel.ReportWarning(report_parse_element, label, err)
		return empty
	}
	located, err := Resolve(data, path)
	if err != nil {
		e.tel.ReportDebug("path not found", label, err)
		return empty
	}
	text, ok := located.(string)
	if !ok {
		e.tel.ReportWarning(report_parse_element, label, fmt.Errorf("path leads to %T, not a cell", located))
		return empty
	}

	match := text
	if re != nil {
		loc := re.FindStringIndex(text)
		if loc == nil {
			e.tel.ReportDebug("pattern not matched", label, re.String(), text)
			return empty
		}
		match = text[loc[0]:loc[1]]
	}
	match = strings.TrimSpace(match)

	fn, err := e.transform(rule[3])
	if err != nil {
		e.tel.ReportWarning(report_parse_element, label, err)
		return Record{label: match}
	}
	if fn == nil {
		return Record{label: match}
	}
	return Record{label: e.applyTransform(label, fn, match)}
}

func merge(dst, src Record) {
	for label, value := range src {
		if label == "" {
			continue
		}
		dst[label] = value
	}
}

// Apply runs every rule of `spec` against `data` and merges the results, later rules win
// on duplicate labels. Malformed rules contribute nothing.
func (e *Engine) Apply(data any, spec Spec) Record {
	out := Record{}
	for _, rule := range spec {
		merge(out, e.ParseElement(data, rule))
	}
	return out
}

func relocate(rule Rule, prefix Path) Rule {
	if len(rule) != 4 {
		return rule
	}
	path, err := toPath(rule[1])
	if err != nil {
		return rule
	}
	full := make(Path, 0, len(prefix)+len(path))
	full = append(full, prefix...)
	full = append(full, path...)
	return Rule{rule[0], full, rule[2], rule[3]}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

// FlexibleSubtable extracts one sub-record per table row for a repeating section.
//
// `at` must lead to a frame or a list of frames. Row paths in `rowSpec` are relative to a
// row, each is prefixed with the location of the row before extraction. With `skipFirst`
// every frame's first row is treated as a header. Rows where every field came out empty
// (unused template rows) are dropped. The result is {label: []Record}.
func (e *Engine) FlexibleSubtable(label string, data any, at Path, rowSpec Spec, skipFirst bool) Record {
	rows := []Record{}

	target, err := Resolve(data, at)
	if err != nil {
		e.tel.ReportDebug("subtable not found", label, err)
		return Record{label: rows}
	}

	var frames []tables.Frame
	var prefixes []Path
	switch t := target.(type) {
	case tables.Frame:
		frames = []tables.Frame{t}
		prefixes = []Path{at}
	case []tables.Frame:
		frames = t
		for i := range t {
			prefix := make(Path, 0, len(at)+1)
			prefix = append(prefix, at...)
			prefixes = append(prefixes, append(prefix, i))
		}
	default:
		e.tel.ReportWarning(report_subtable, label, fmt.Errorf("path leads to %T, not a table", target))
		return Record{label: rows}
	}

	for fi, frame := range frames {
		for ri := range frame {
			if skipFirst && ri == 0 {
				continue
			}

			prefix := make(Path, 0, len(prefixes[fi])+1)
			prefix = append(prefix, prefixes[fi]...)
			prefix = append(prefix, ri)

			sub := Record{}
			keep := false
			for _, rule := range rowSpec {
				field := e.ParseElement(data, relocate(rule, prefix))
				for k, v := range field {
					if k != "" && !isEmpty(v) {
						keep = true
					}
				}
				merge(sub, field)
			}
			if keep {
				rows = append(rows, sub)
			}
		}
	}

	return Record{label: rows}
}
