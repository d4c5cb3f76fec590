package build

import (
	"context"
	"sort"

	"github.com/salusdata/bps2omop/internal/omop"
)

// The tables in this file are rename/map/format only: no temporal
// algorithms, one output row per (deduplicated) input record.

// buildPerson writes person. The start date column carries the birth
// date and the source value the gender, mapped through the table's
// vocabulary targets. The first record per person wins.
func (p *Pipeline) buildPerson(ctx context.Context) (int, error) {
	records, spec, err := p.loadTable(omop.TablePerson)
	if err != nil {
		return 0, err
	}
	mappings, err := p.mapRecords(ctx, records, spec)
	if err != nil {
		return 0, err
	}

	seen := map[int64]struct{}{}
	rows := make([]omop.PersonRow, 0, len(records))
	for i, rec := range records {
		if _, ok := seen[rec.PersonID]; ok {
			continue
		}
		seen[rec.PersonID] = struct{}{}

		row := omop.PersonRow{
			PersonID:          rec.PersonID,
			GenderConceptID:   mappings[i].ConceptID,
			ProviderID:        omop.OptInt64(rec.ProviderID),
			GenderSourceValue: omop.OptString(rec.SourceValue),
		}
		if !rec.Start.IsZero() {
			row.YearOfBirth = int32(rec.Start.Year())
			month := int32(rec.Start.Month())
			day := int32(rec.Start.Day())
			row.MonthOfBirth = &month
			row.DayOfBirth = &day
			row.BirthDatetime = omop.Datetime(rec.Start)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PersonID < rows[j].PersonID })
	return writeRows(p.cfg.OutDir, omop.TablePerson, rows)
}

// buildProvider writes provider. The manifest binds the provider's own
// identifier through the person_id column slot and the provider name
// through source_value; the specialty resolves through the vocabulary
// targets.
func (p *Pipeline) buildProvider(ctx context.Context) (int, error) {
	records, spec, err := p.loadTable(omop.TableProvider)
	if err != nil {
		return 0, err
	}
	mappings, err := p.mapRecords(ctx, records, spec)
	if err != nil {
		return 0, err
	}

	seen := map[int64]struct{}{}
	rows := make([]omop.ProviderRow, 0, len(records))
	for i, rec := range records {
		if _, ok := seen[rec.PersonID]; ok {
			continue
		}
		seen[rec.PersonID] = struct{}{}
		rows = append(rows, omop.ProviderRow{
			ProviderID:          rec.PersonID,
			ProviderName:        omop.OptString(rec.SourceValue),
			SpecialtyConceptID:  mappings[i].ConceptID,
			ProviderSourceValue: omop.OptString(rec.SourceValue),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProviderID < rows[j].ProviderID })
	return writeRows(p.cfg.OutDir, omop.TableProvider, rows)
}

// buildLocation writes location: the identifier comes through the
// person_id slot, the address text through source_value and the zip
// through the unit slot.
func (p *Pipeline) buildLocation(context.Context) (int, error) {
	records, _, err := p.loadTable(omop.TableLocation)
	if err != nil {
		return 0, err
	}

	seen := map[int64]struct{}{}
	rows := make([]omop.LocationRow, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.PersonID]; ok {
			continue
		}
		seen[rec.PersonID] = struct{}{}
		rows = append(rows, omop.LocationRow{
			LocationID:          rec.PersonID,
			Zip:                 omop.OptString(rec.Unit),
			LocationSourceValue: omop.OptString(rec.SourceValue),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].LocationID < rows[j].LocationID })
	return writeRows(p.cfg.OutDir, omop.TableLocation, rows)
}

// buildDeath writes death: one row per person, earliest recorded death
// date wins, cause mapped through the vocabulary targets.
func (p *Pipeline) buildDeath(ctx context.Context) (int, error) {
	records, spec, err := p.loadTable(omop.TableDeath)
	if err != nil {
		return 0, err
	}
	mappings, err := p.mapRecords(ctx, records, spec)
	if err != nil {
		return 0, err
	}

	byPerson := map[int64]omop.DeathRow{}
	for i, rec := range records {
		row := omop.DeathRow{
			PersonID:           rec.PersonID,
			DeathDate:          omop.Date(rec.Start),
			DeathDatetime:      omop.Datetime(rec.Start),
			DeathTypeConceptID: rec.TypeConcept,
			CauseConceptID:     mappings[i].ConceptID,
			CauseSourceValue:   omop.OptString(rec.SourceValue),
		}
		prev, ok := byPerson[rec.PersonID]
		if !ok || (row.DeathDate != nil && (prev.DeathDate == nil || *row.DeathDate < *prev.DeathDate)) {
			byPerson[rec.PersonID] = row
		}
	}

	rows := make([]omop.DeathRow, 0, len(byPerson))
	for _, row := range byPerson {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PersonID < rows[j].PersonID })
	return writeRows(p.cfg.OutDir, omop.TableDeath, rows)
}

// buildCohort writes cohort. The source's type_concept doubles as the
// cohort_definition_id, so one manifest source per cohort.
func (p *Pipeline) buildCohort(context.Context) (int, error) {
	records, _, err := p.loadTable(omop.TableCohort)
	if err != nil {
		return 0, err
	}

	rows := make([]omop.CohortRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, omop.CohortRow{
			CohortDefinitionID: rec.TypeConcept,
			SubjectID:          rec.PersonID,
			CohortStartDate:    omop.Date(rec.Start),
			CohortEndDate:      omop.Date(rec.End),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CohortDefinitionID != rows[j].CohortDefinitionID {
			return rows[i].CohortDefinitionID < rows[j].CohortDefinitionID
		}
		return rows[i].SubjectID < rows[j].SubjectID
	})
	return writeRows(p.cfg.OutDir, omop.TableCohort, rows)
}
