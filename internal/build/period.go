package build

import (
	"context"
	"fmt"

	"github.com/salusdata/bps2omop/internal/omop"
	"github.com/salusdata/bps2omop/internal/temporal"
)

// defaultPeriodGapDays is the merge threshold when the manifest does not
// set one: consecutive intervals less than a year apart belong to the
// same observation period.
const defaultPeriodGapDays = 365

// defaultPeriodType is OMOP "EHR episode record".
const defaultPeriodType = 32828

// buildObservationPeriod derives observation periods from the table's
// interval sources: remove contained intervals, then merge runs whose
// gaps stay under the configured day threshold.
func (p *Pipeline) buildObservationPeriod(context.Context) (int, error) {
	records, spec, err := p.loadTable(omop.TableObservationPeriod)
	if err != nil {
		return 0, err
	}

	intervals := make([]temporal.Interval, 0, len(records))
	for _, rec := range records {
		intervals = append(intervals, temporal.Interval{
			PersonID: rec.PersonID,
			Start:    rec.Start,
			End:      rec.End,
			Concept:  rec.TypeConcept,
			Provider: rec.ProviderID,
		})
	}

	reduced, err := p.reducer().Reduce(intervals, temporal.CanonicalSortSpec())
	if err != nil {
		return 0, fmt.Errorf("reduce periods: %w", err)
	}

	nDays := spec.NDays
	if nDays <= 0 {
		nDays = defaultPeriodGapDays
	}
	grouped := temporal.NewGrouper(p.log).Group(reduced, nDays)
	p.log.Debug().
		Int("in", len(intervals)).
		Int("reduced", len(reduced)).
		Int("periods", len(grouped)).
		Int("n_days", nDays).
		Msg("observation periods derived")

	rows := make([]omop.ObservationPeriodRow, 0, len(grouped))
	for i, iv := range grouped {
		periodType := iv.Concept
		if periodType == 0 {
			periodType = defaultPeriodType
		}
		rows = append(rows, omop.ObservationPeriodRow{
			ObservationPeriodID:        int64(i + 1),
			PersonID:                   iv.PersonID,
			ObservationPeriodStartDate: omop.Date(iv.Start),
			ObservationPeriodEndDate:   omop.Date(iv.End),
			PeriodTypeConceptID:        periodType,
		})
	}
	return writeRows(p.cfg.OutDir, omop.TableObservationPeriod, rows)
}
