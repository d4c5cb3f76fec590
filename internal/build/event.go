package build

import (
	"context"
	"fmt"

	"github.com/salusdata/bps2omop/internal/omop"
	"github.com/salusdata/bps2omop/internal/source"
	"github.com/salusdata/bps2omop/internal/temporal"
)

// eventRow is a clinical event after mapping and visit linking, before
// it is shaped into its table-specific OMOP row.
type eventRow struct {
	ID              int64
	Record          source.Record
	ConceptID       int64
	SourceConceptID int64
	VisitID         *int64
}

// buildEventTable builds one of the four clinical event tables. They
// share the flow (load, map, link against visits, assign IDs) and differ
// only in the output row shape.
func (p *Pipeline) buildEventTable(ctx context.Context, table string) (int, error) {
	events, err := p.eventRows(ctx, table)
	if err != nil {
		return 0, err
	}

	switch table {
	case omop.TableConditionOccurrence:
		return writeRows(p.cfg.OutDir, table, conditionRows(events))
	case omop.TableMeasurement:
		return writeRows(p.cfg.OutDir, table, measurementRows(events))
	case omop.TableDrugExposure:
		return writeRows(p.cfg.OutDir, table, drugRows(events))
	case omop.TableProcedureOccurrence:
		return writeRows(p.cfg.OutDir, table, procedureRows(events))
	default:
		return 0, fmt.Errorf("not an event table: %q", table)
	}
}

// eventRows runs the shared part of an event table build.
func (p *Pipeline) eventRows(ctx context.Context, table string) ([]eventRow, error) {
	records, spec, err := p.loadTable(table)
	if err != nil {
		return nil, err
	}
	mappings, err := p.mapRecords(ctx, records, spec)
	if err != nil {
		return nil, err
	}

	refs, err := p.eventVisitRefs()
	if err != nil {
		return nil, err
	}
	events := make([]temporal.Event, len(records))
	for i, rec := range records {
		events[i] = temporal.Event{PersonID: rec.PersonID, OccurredAt: rec.Start, EventID: int64(i)}
	}
	linked, err := p.linker().LinkInBatches(events, refs, p.cfg.Link.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("link %s to visits: %w", table, err)
	}
	visitByEvent := make(map[int64]*int64, len(linked))
	for _, ev := range linked {
		if ev.Matched() {
			visitByEvent[ev.EventID] = ev.RefID
		}
	}

	out := make([]eventRow, len(records))
	for i, rec := range records {
		out[i] = eventRow{
			ID:              int64(i + 1),
			Record:          rec,
			ConceptID:       mappings[i].ConceptID,
			SourceConceptID: mappings[i].SourceConceptID,
			VisitID:         visitByEvent[int64(i)],
		}
	}
	return out, nil
}

func (p *Pipeline) linker() *temporal.Linker {
	return temporal.NewLinker(p.log)
}

func conditionRows(events []eventRow) []omop.ConditionOccurrenceRow {
	rows := make([]omop.ConditionOccurrenceRow, 0, len(events))
	for _, ev := range events {
		rec := ev.Record
		rows = append(rows, omop.ConditionOccurrenceRow{
			ConditionOccurrenceID:    ev.ID,
			PersonID:                 rec.PersonID,
			ConditionConceptID:       ev.ConceptID,
			ConditionStartDate:       omop.Date(rec.Start),
			ConditionStartDatetime:   omop.Datetime(rec.Start),
			ConditionEndDate:         omop.Date(rec.End),
			ConditionEndDatetime:     omop.Datetime(rec.End),
			ConditionTypeConceptID:   rec.TypeConcept,
			ProviderID:               omop.OptInt64(rec.ProviderID),
			VisitOccurrenceID:        ev.VisitID,
			ConditionSourceValue:     omop.OptString(rec.SourceValue),
			ConditionSourceConceptID: ev.SourceConceptID,
		})
	}
	return rows
}

func measurementRows(events []eventRow) []omop.MeasurementRow {
	rows := make([]omop.MeasurementRow, 0, len(events))
	for _, ev := range events {
		rec := ev.Record
		row := omop.MeasurementRow{
			MeasurementID:              ev.ID,
			PersonID:                   rec.PersonID,
			MeasurementConceptID:       ev.ConceptID,
			MeasurementDate:            omop.Date(rec.Start),
			MeasurementDatetime:        omop.Datetime(rec.Start),
			MeasurementTypeConceptID:   rec.TypeConcept,
			UnitSourceValue:            omop.OptString(rec.Unit),
			ProviderID:                 omop.OptInt64(rec.ProviderID),
			VisitOccurrenceID:          ev.VisitID,
			MeasurementSourceValue:     omop.OptString(rec.SourceValue),
			MeasurementSourceConceptID: ev.SourceConceptID,
		}
		if rec.HasValue {
			v := rec.Value
			row.ValueAsNumber = &v
		}
		rows = append(rows, row)
	}
	return rows
}

func drugRows(events []eventRow) []omop.DrugExposureRow {
	rows := make([]omop.DrugExposureRow, 0, len(events))
	for _, ev := range events {
		rec := ev.Record
		rows = append(rows, omop.DrugExposureRow{
			DrugExposureID:            ev.ID,
			PersonID:                  rec.PersonID,
			DrugConceptID:             ev.ConceptID,
			DrugExposureStartDate:     omop.Date(rec.Start),
			DrugExposureStartDatetime: omop.Datetime(rec.Start),
			DrugExposureEndDate:       omop.Date(rec.End),
			DrugExposureEndDatetime:   omop.Datetime(rec.End),
			DrugTypeConceptID:         rec.TypeConcept,
			ProviderID:                omop.OptInt64(rec.ProviderID),
			VisitOccurrenceID:         ev.VisitID,
			DrugSourceValue:           omop.OptString(rec.SourceValue),
			DrugSourceConceptID:       ev.SourceConceptID,
		})
	}
	return rows
}

func procedureRows(events []eventRow) []omop.ProcedureOccurrenceRow {
	rows := make([]omop.ProcedureOccurrenceRow, 0, len(events))
	for _, ev := range events {
		rec := ev.Record
		rows = append(rows, omop.ProcedureOccurrenceRow{
			ProcedureOccurrenceID:    ev.ID,
			PersonID:                 rec.PersonID,
			ProcedureConceptID:       ev.ConceptID,
			ProcedureDate:            omop.Date(rec.Start),
			ProcedureDatetime:        omop.Datetime(rec.Start),
			ProcedureTypeConceptID:   rec.TypeConcept,
			ProviderID:               omop.OptInt64(rec.ProviderID),
			VisitOccurrenceID:        ev.VisitID,
			ProcedureSourceValue:     omop.OptString(rec.SourceValue),
			ProcedureSourceConceptID: ev.SourceConceptID,
		})
	}
	return rows
}
