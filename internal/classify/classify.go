// Package classify assigns raw frames to the named sections of a report.
package classify

import (
	"fmt"
	"regexp"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/internal/tables"
)

const report_classify = "classifier.classify"

// Cardinality is declared per section, it never depends on what a document contains.
type Cardinality int

const (
	// Singleton sections appear at most once and resolve to a single frame.
	Singleton Cardinality = iota
	// Repeating sections hold historical events and always resolve to a list of frames.
	Repeating
)

func (c Cardinality) String() string {
	if c == Repeating {
		return "repeating"
	}
	return "singleton"
}

// Section describes how to recognize one kind of table.
type Section struct {
	Name string
	// Pattern is searched for in the anchor cell.
	Pattern *regexp.Regexp
	// Anchor is the (row, column) of the cell the pattern is tested against.
	Anchor [2]int
	// Compact removes empty cells before the anchor test, and from the stored frame.
	Compact     bool
	Cardinality Cardinality
	// Shape is the expected shape of a singleton section, nil skips validation.
	Shape *tables.Shape
}

func (s Section) matches(frame tables.Frame) bool {
	row, col := s.Anchor[0], s.Anchor[1]
	if row < 0 || row >= len(frame) {
		return false
	}
	if col < 0 || col >= len(frame[row]) {
		return false
	}
	return s.Pattern.MatchString(frame[row][col])
}

// Classifier holds an ordered list of sections.
type Classifier struct {
	sections []Section
	tel      telemetry.API
}

// New validates the section table, names must be unique and every section needs a pattern.
func New(tel telemetry.API, sections ...Section) (Classifier, error) {
	seen := map[string]bool{}
	for _, s := range sections {
		if s.Name == "" {
			return Classifier{}, fmt.Errorf("section without a name")
		}
		if seen[s.Name] {
			return Classifier{}, fmt.Errorf("duplicate section %q", s.Name)
		}
		if s.Pattern == nil {
			return Classifier{}, fmt.Errorf("section %q has no anchor pattern", s.Name)
		}
		seen[s.Name] = true
	}
	return Classifier{
		sections: sections,
		tel:      telemetry.NewScopedAPI("classify", tel),
	}, nil
}

// Sections returns the declared sections in order.
func (c Classifier) Sections() []Section {
	return c.sections
}

// Classify tests every frame against every section, a frame matching more than one
// section's anchor is given to all of them.
func (c Classifier) Classify(frames []tables.Frame) Classification {
	candidates := make(map[string][]tables.Frame, len(c.sections))
	for _, frame := range frames {
		for _, section := range c.sections {
			view := frame
			if section.Compact {
				view = frame.Compact()
			}
			if section.matches(view) {
				candidates[section.Name] = append(candidates[section.Name], view)
			}
		}
	}

	out := Classification{
		singles: map[string]tables.Frame{},
		lists:   map[string][]tables.Frame{},
	}
	for _, section := range c.sections {
		found := candidates[section.Name]
		if section.Cardinality == Repeating {
			out.lists[section.Name] = found
			continue
		}

		switch len(found) {
		case 0:
			c.tel.ReportDebug("section not found", section.Name)
			continue
		case 1:
		default:
			c.tel.ReportWarning(
				report_classify,
				fmt.Errorf("singleton section %q matched %d frames, keeping the first", section.Name, len(found)),
			)
		}
		out.singles[section.Name] = found[0]
		if section.Shape != nil {
			tables.Validate(c.tel, section.Name, found[0], *section.Shape)
		}
	}
	return out
}

// Classification maps section names to frames.
type Classification struct {
	singles map[string]tables.Frame
	lists   map[string][]tables.Frame
}

// Frame returns a singleton section's frame.
func (c Classification) Frame(name string) (tables.Frame, bool) {
	frame, ok := c.singles[name]
	return frame, ok
}

// Frames returns a repeating section's frames, empty when nothing matched.
func (c Classification) Frames(name string) []tables.Frame {
	return c.lists[name]
}

// Lookup resolves a section name to a tables.Frame (singleton) or a []tables.Frame
// (repeating).
func (c Classification) Lookup(name string) (any, bool) {
	if frame, ok := c.singles[name]; ok {
		return frame, true
	}
	if frames, ok := c.lists[name]; ok {
		return frames, true
	}
	return nil, false
}
