package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TransformFunc converts the trimmed text matched by a rule into the stored value.
type TransformFunc func(string) (any, error)

// Transforms is a registry of named transforms, rules refer to them by name.
type Transforms map[string]TransformFunc

var spaces = regexp.MustCompile(`\s+`)

var dateLayouts = []string{
	"1/2/2006",
	"2006-01-02",
}

var datetimeLayouts = []string{
	"1/2/2006 3:04PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04",
	"1/2/2006",
}

func parseTime(layouts []string, loc *time.Location) TransformFunc {
	return func(s string) (any, error) {
		s = spaces.ReplaceAllString(strings.ToUpper(s), " ")
		for _, layout := range layouts {
			t, err := time.ParseInLocation(layout, s, loc)
			if err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("unrecognized time %q", s)
	}
}

// DefaultTransforms returns the builtin transforms, times without a zone are read in `loc`.
func DefaultTransforms(loc *time.Location) Transforms {
	if loc == nil {
		loc = time.UTC
	}
	return Transforms{
		"lowercase": func(s string) (any, error) {
			return strings.ToLower(s), nil
		},
		"uppercase": func(s string) (any, error) {
			return strings.ToUpper(s), nil
		},
		// comma separated values, empty entries dropped
		"list": func(s string) (any, error) {
			out := []string{}
			for _, part := range strings.Split(s, ",") {
				part = strings.TrimSpace(part)
				if part != "" {
					out = append(out, part)
				}
			}
			return out, nil
		},
		// the value of a "Label: value" cell
		"field_value": func(s string) (any, error) {
			_, value, ok := strings.Cut(s, ":")
			if !ok {
				return nil, fmt.Errorf("no label separator in %q", s)
			}
			return strings.TrimSpace(value), nil
		},
		"int": func(s string) (any, error) {
			return strconv.Atoi(strings.ReplaceAll(s, ",", ""))
		},
		"float": func(s string) (any, error) {
			return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		},
		"date":     parseTime(dateLayouts, loc),
		"datetime": parseTime(datetimeLayouts, loc),
	}
}
