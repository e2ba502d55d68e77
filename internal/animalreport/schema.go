package animalreport

import (
	"regexp"
	"sheltercrawl/internal/classify"
	"sheltercrawl/internal/extract"
	"sheltercrawl/internal/tables"
)

const (
	SectionSummary  = "summary"
	SectionAnimal   = "animal"
	SectionDetails  = "details"
	SectionLocation = "location"
	SectionIntake   = "intake"
	SectionOutcome  = "outcome"
)

// Subtable extracts one sub-record per row of a repeating section.
type Subtable struct {
	Label   string
	Section string
	Rows    extract.Spec
	// SkipFirst treats the first row of every frame as a header.
	SkipFirst bool
}

// Schema is everything needed to turn a report document into a record.
type Schema struct {
	Sections  []classify.Section
	Top       extract.Spec
	Subtables []Subtable
}

func shape(rows, cols int) *tables.Shape {
	return &tables.Shape{Rows: rows, Cols: cols}
}

// DefaultSections are the tables of the animal view report.
func DefaultSections() []classify.Section {
	return []classify.Section{
		{
			Name:    SectionSummary,
			Pattern: regexp.MustCompile(`^Animal #:`),
			// the summary table pads its cells with empty spacer columns
			Compact: true,
			Shape:   shape(2, 1),
		},
		{
			Name:    SectionAnimal,
			Pattern: regexp.MustCompile(`^A\d{8}$`),
			Shape:   shape(4, 3),
		},
		{
			Name:    SectionDetails,
			Pattern: regexp.MustCompile(`^Primary Breed:`),
			Shape:   shape(tables.Any, 4),
		},
		{
			Name:    SectionLocation,
			Pattern: regexp.MustCompile(`^Location:`),
			Shape:   shape(tables.Any, 4),
		},
		{
			Name:        SectionIntake,
			Pattern:     regexp.MustCompile(`^Intake Date$`),
			Cardinality: classify.Repeating,
		},
		{
			Name:        SectionOutcome,
			Pattern:     regexp.MustCompile(`^Outcome Date$`),
			Cardinality: classify.Repeating,
		},
	}
}

const (
	anumPattern     = `A\d{8}`
	datePattern     = `\d{1,2}/\d{1,2}/\d{4}`
	datetimePattern = `\d{1,2}/\d{1,2}/\d{4}( \d{1,2}:\d{2}(:\d{2})? ?[AP]M)?`
	agePattern      = `\d+ (years?|months?|weeks?|days?)( \d+ (months?|weeks?|days?))*`
	anything        = `.+`
)

// DefaultTop is the record-level spec.
func DefaultTop() extract.Spec {
	return extract.Spec{
		{"anum", []any{SectionSummary, 0, 0}, anumPattern, nil},
		{"print_date", []any{SectionSummary, 1, 0}, datetimePattern, "datetime"},

		{"confirmation_anum", []any{SectionAnimal, 0, 0}, anumPattern, nil},
		{"alt_anum", []any{SectionAnimal, 1, 0}, anumPattern, nil},
		{"name", []any{SectionAnimal, 0, 1}, anything, nil},
		{"physical_attributes", []any{SectionAnimal, 0, 2}, anything, "list"},
		{"species", []any{SectionAnimal, 1, 1}, anything, "lowercase"},
		{"age", []any{SectionAnimal, 1, 2}, agePattern, nil},
		{"dob", []any{SectionAnimal, 1, 2}, datePattern, "date"},
		{"spay_neuter", []any{SectionAnimal, 1, 2}, `Spayed/Neutered:\s*\w*`, "field_value"},
		{"gender", []any{SectionAnimal, 2, 1}, "male|female|unknown", "lowercase"},
		{"declawed", []any{SectionAnimal, 2, 2}, `Declawed:\s*\w*`, "field_value"},
		{"age_range", []any{SectionAnimal, 3, 1}, anything, nil},
		{"bite_history", []any{SectionAnimal, 3, 2}, `Bitten:\s*\w*`, "field_value"},

		{"primary_breed", []any{SectionDetails, 0, 1}, anything, nil},
		{"secondary_breed", []any{SectionDetails, 0, 3}, anything, nil},
		{"primary_color", []any{SectionDetails, 1, 1}, anything, nil},
		{"secondary_color", []any{SectionDetails, 1, 3}, anything, nil},
		{"size", []any{SectionDetails, 2, 1}, anything, "lowercase"},
		{"weight", []any{SectionDetails, 2, 3}, `\d+(\.\d+)?`, "float"},

		{"location", []any{SectionLocation, 0, 1}, anything, nil},
		{"sub_location", []any{SectionLocation, 0, 3}, anything, nil},
	}
}

// DefaultSubtables are the per-event row specs of the repeating sections.
func DefaultSubtables() []Subtable {
	return []Subtable{
		{
			Label:     "intakes",
			Section:   SectionIntake,
			SkipFirst: true,
			Rows: extract.Spec{
				{"intake_date", []any{0}, datetimePattern, "datetime"},
				{"intake_type", []any{1}, anything, nil},
				{"intake_subtype", []any{2}, anything, nil},
				{"condition", []any{3}, anything, "lowercase"},
			},
		},
		{
			Label:     "outcomes",
			Section:   SectionOutcome,
			SkipFirst: true,
			Rows: extract.Spec{
				{"outcome_date", []any{0}, datetimePattern, "datetime"},
				{"outcome_type", []any{1}, anything, nil},
				{"outcome_subtype", []any{2}, anything, nil},
				{"destination", []any{3}, anything, nil},
			},
		},
	}
}

func DefaultSchema() Schema {
	return Schema{
		Sections:  DefaultSections(),
		Top:       DefaultTop(),
		Subtables: DefaultSubtables(),
	}
}

// WithSpecSet replaces specs by name: "top" replaces the record-level spec and a repeating
// section's name replaces that section's row spec. Unknown names are ignored.
func (s Schema) WithSpecSet(set extract.SpecSet) Schema {
	out := Schema{
		Sections:  s.Sections,
		Top:       s.Top,
		Subtables: make([]Subtable, len(s.Subtables)),
	}
	copy(out.Subtables, s.Subtables)

	if top, ok := set["top"]; ok {
		out.Top = top
	}
	for i, sub := range out.Subtables {
		if rows, ok := set[sub.Section]; ok {
			out.Subtables[i].Rows = rows
		}
	}
	return out
}
