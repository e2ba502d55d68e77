// Package animalreport turns stored animal view report documents into records.
package animalreport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sheltercrawl/internal/artifact"
	"sheltercrawl/internal/classify"
	"sheltercrawl/internal/components/chrono"
	"sheltercrawl/internal/components/assert"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/internal/extract"
	"sheltercrawl/internal/recordstore"
	"sheltercrawl/internal/tables"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_process  = "processor.process"
	report_validate = "processor.validate-record"
	report_items    = "processor.items"
)

// ErrIncompleteRecord means the record lacks the fields that identify it (the animal
// number and print date), it is not stored.
var ErrIncompleteRecord = errors.New("incomplete record")

// Documents loads stored report documents, artifact.Store implements it.
type Documents interface {
	Load(id string) (artifact.RawDocument, error)
}

// Sink receives finished records, recordstore.Writer and recordstore.DirectSink implement
// it.
type Sink interface {
	Put(ctx context.Context, id string, record any) error
}

type Processor struct {
	schema     Schema
	classifier classify.Classifier
	engine     *extract.Engine
	docs       Documents
	clock      chrono.API
	tel        telemetry.API
}

func NewProcessor(schema Schema, docs Documents, engine *extract.Engine, clock chrono.API, tel telemetry.API) (Processor, error) {
	assert.NotNil(docs)
	assert.NotNil(engine)
	assert.NotNil(clock)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("animalreport", tel)
	classifier, err := classify.New(tel, schema.Sections...)
	if err != nil {
		return Processor{}, fmt.Errorf("sections: %w", err)
	}
	for _, sub := range schema.Subtables {
		found := false
		for _, section := range schema.Sections {
			if section.Name == sub.Section {
				found = true
				break
			}
		}
		if !found {
			return Processor{}, fmt.Errorf("subtable %q refers to undeclared section %q", sub.Label, sub.Section)
		}
	}

	return Processor{
		schema:     schema,
		classifier: classifier,
		engine:     engine,
		docs:       docs,
		clock:      clock,
		tel:        tel,
	}, nil
}

// Frames extracts and classifies the tables of a report document.
func (p Processor) Frames(content []byte) (classify.Classification, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return classify.Classification{}, err
	}
	return p.classifier.Classify(tables.Extract(doc)), nil
}

// Parse converts a report document into a record. It only depends on `content`.
func (p Processor) Parse(content []byte) (extract.Record, error) {
	classification, err := p.Frames(content)
	if err != nil {
		return nil, err
	}

	record := p.engine.Apply(classification, p.schema.Top)
	for _, sub := range p.schema.Subtables {
		rows := p.engine.FlexibleSubtable(sub.Label, classification, extract.Path{sub.Section}, sub.Rows, sub.SkipFirst)
		for k, v := range rows {
			record[k] = v
		}
	}
	return record, nil
}

var (
	anumRegex  = regexp.MustCompile(`^A\d{8}$`)
	genders    = []string{"male", "female", "unknown"}
	species    = []string{"dog", "cat"}
	yesNoUnk   = []string{"yes", "no", "unknown"}
	wellFormed = map[string][]string{
		"gender":      genders,
		"species":     species,
		"spay_neuter": yesNoUnk,
	}
)

func oneOf(value string, options []string) bool {
	value = strings.ToLower(value)
	for _, o := range options {
		if value == o {
			return true
		}
	}
	return false
}

// Validate reports suspicious field values as warnings and returns how many it found,
// it never rejects a record.
func (p Processor) Validate(id string, record extract.Record) int {
	problems := 0
	warn := func(label string, value any) {
		problems++
		p.tel.ReportWarning(report_validate, fmt.Errorf("unexpected %s %q", label, value), id)
	}

	for _, label := range []string{"anum", "confirmation_anum"} {
		value, _ := record[label].(string)
		if !anumRegex.MatchString(value) {
			warn(label, value)
		}
	}
	for label, options := range wellFormed {
		value, isString := record[label].(string)
		if !isString || !oneOf(value, options) {
			warn(label, record[label])
		}
	}
	return problems
}

// Process parses the stored document for `id` and hands the record to `sink`.
// A missing document is reported as artifact.ErrNotFound.
func (p Processor) Process(ctx context.Context, id string, sink Sink) error {
	doc, err := p.docs.Load(id)
	if err != nil {
		return err
	}

	record, err := p.Parse(doc.Content)
	if err != nil {
		p.tel.ReportBroken(report_process, fmt.Errorf("parse A%s: %w", id, err))
		return fmt.Errorf("parse A%s: %w", id, err)
	}

	anum, _ := record["anum"].(string)
	_, hasPrintDate := record["print_date"].(time.Time)
	if anum == "" || !hasPrintDate {
		p.tel.ReportWarning(report_process, fmt.Errorf("A%s: %w", id, ErrIncompleteRecord), anum, record["print_date"])
		return fmt.Errorf("A%s: %w", id, ErrIncompleteRecord)
	}

	p.Validate(id, record)

	record["id"] = id
	record["fetched_at"] = doc.FetchedAt

	err = sink.Put(ctx, id, record)
	if errors.Is(err, recordstore.ErrDuplicate) {
		p.tel.ReportWarning(report_process, fmt.Errorf("store A%s: %w", id, err))
		return fmt.Errorf("store A%s: %w", id, err)
	}
	if err != nil {
		p.tel.ReportBroken(report_process, fmt.Errorf("store A%s: %w", id, err))
		return fmt.Errorf("store A%s: %w", id, err)
	}
	return nil
}
