package build

import (
	"context"
	"fmt"
	"time"

	"github.com/salusdata/bps2omop/internal/config"
	"github.com/salusdata/bps2omop/internal/omop"
	"github.com/salusdata/bps2omop/internal/source"
	"github.com/salusdata/bps2omop/internal/temporal"
)

// buildVisitOccurrence writes visit_occurrence and caches the visit
// intervals for the event tables.
func (p *Pipeline) buildVisitOccurrence(context.Context) (int, error) {
	rows, refs, err := p.visitRows()
	if err != nil {
		return 0, err
	}
	p.visitRefs = refs
	return writeRows(p.cfg.OutDir, omop.TableVisitOccurrence, rows)
}

// visitExtras carries the record fields the reducer does not, keyed on
// the interval triple. First record per triple wins.
type visitKey struct {
	person     int64
	start, end int64
}

type visitExtra struct {
	sourceValue string
	typeConcept int64
}

// visitRows builds the visit table in memory: assign visit concepts from
// the manifest rules, remove contained stays, assign dense IDs.
func (p *Pipeline) visitRows() ([]omop.VisitOccurrenceRow, []temporal.ReferenceInterval, error) {
	records, spec, err := p.loadTable(omop.TableVisitOccurrence)
	if err != nil {
		return nil, nil, err
	}

	intervals := make([]temporal.Interval, 0, len(records))
	extras := make(map[visitKey]visitExtra, len(records))
	for _, rec := range records {
		iv := temporal.Interval{
			PersonID: rec.PersonID,
			Start:    rec.Start,
			End:      rec.End,
			Concept:  visitConceptID(spec.VisitCodes, rec),
			Provider: rec.ProviderID,
		}
		intervals = append(intervals, iv)
		k := visitKey{rec.PersonID, rec.Start.UnixMilli(), rec.End.UnixMilli()}
		if _, ok := extras[k]; !ok {
			extras[k] = visitExtra{sourceValue: rec.SourceValue, typeConcept: rec.TypeConcept}
		}
	}

	reduced, err := p.reducer().Reduce(intervals, temporal.CanonicalSortSpec(temporal.ColConceptID))
	if err != nil {
		return nil, nil, fmt.Errorf("reduce visits: %w", err)
	}
	p.log.Debug().Int("in", len(intervals)).Int("out", len(reduced)).Msg("visit overlap reduction")

	rows := make([]omop.VisitOccurrenceRow, 0, len(reduced))
	refs := make([]temporal.ReferenceInterval, 0, len(reduced))
	for i, iv := range reduced {
		id := int64(i + 1)
		extra := extras[visitKey{iv.PersonID, iv.Start.UnixMilli(), iv.End.UnixMilli()}]
		rows = append(rows, omop.VisitOccurrenceRow{
			VisitOccurrenceID:  id,
			PersonID:           iv.PersonID,
			VisitConceptID:     iv.Concept,
			VisitStartDate:     omop.Date(iv.Start),
			VisitStartDatetime: omop.Datetime(iv.Start),
			VisitEndDate:       omop.Date(iv.End),
			VisitEndDatetime:   omop.Datetime(iv.End),
			VisitTypeConceptID: extra.typeConcept,
			ProviderID:         omop.OptInt64(iv.Provider),
			VisitSourceValue:   omop.OptString(extra.sourceValue),
		})
		refs = append(refs, temporal.ReferenceInterval{
			PersonID: iv.PersonID,
			Start:    iv.Start,
			End:      iv.End,
			RefID:    id,
		})
	}
	return rows, refs, nil
}

// visitConceptID applies the manifest's visit code rules in order and
// returns the first code whose rule matches the record, or 0.
func visitConceptID(rules []config.VisitCodeSpec, rec source.Record) int64 {
	for _, rule := range rules {
		switch rule.Rule {
		case "single_code":
			return rule.Code
		case "duration_code":
			days := int(rec.End.Sub(rec.Start) / (24 * time.Hour))
			if days >= rule.MinDays && days <= rule.MaxDays {
				return rule.Code
			}
		case "field_code":
			if rec.SourceValue == rule.Equals {
				return rule.Code
			}
		}
	}
	return 0
}

// eventVisitRefs returns the visit intervals, building them on first use
// when an event table is built without visit_occurrence in the same run.
func (p *Pipeline) eventVisitRefs() ([]temporal.ReferenceInterval, error) {
	if p.visitRefs != nil {
		return p.visitRefs, nil
	}
	_, refs, err := p.visitRows()
	if err != nil {
		return nil, fmt.Errorf("derive visit intervals: %w", err)
	}
	p.visitRefs = refs
	return refs, nil
}
