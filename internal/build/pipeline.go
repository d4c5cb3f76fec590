// Package build turns manifest-described BPS sources into OMOP tables:
// load, normalize, vocabulary-map, run the temporal algorithms where the
// table calls for them, assign dense IDs and write parquet.
package build

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/salusdata/bps2omop/internal/config"
	"github.com/salusdata/bps2omop/internal/omop"
	"github.com/salusdata/bps2omop/internal/source"
	"github.com/salusdata/bps2omop/internal/temporal"
	"github.com/salusdata/bps2omop/internal/vocab"
	"github.com/salusdata/bps2omop/internal/worker"
)

// AllTables is the build order for `build all`: reference tables first,
// then visits, then the event tables that link against them, then the
// derived and standalone tables.
var AllTables = []string{
	omop.TablePerson,
	omop.TableProvider,
	omop.TableLocation,
	omop.TableVisitOccurrence,
	omop.TableConditionOccurrence,
	omop.TableMeasurement,
	omop.TableDrugExposure,
	omop.TableProcedureOccurrence,
	omop.TableObservationPeriod,
	omop.TableDeath,
	omop.TableCohort,
}

// Pipeline builds OMOP tables from one manifest. Builders are
// independent: each loads its own sources and a failure aborts only
// that table.
type Pipeline struct {
	cfg      *config.Config
	manifest *config.Manifest
	mapper   *vocab.Mapper
	log      zerolog.Logger

	// visitRefs caches the visit intervals within one run so the four
	// event tables do not rebuild them.
	visitRefs []temporal.ReferenceInterval
}

// NewPipeline creates a Pipeline over a loaded manifest and concept
// store.
func NewPipeline(cfg *config.Config, manifest *config.Manifest, store vocab.ConceptStore, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		manifest: manifest,
		mapper:   vocab.NewMapper(store, log),
		log:      log,
	}
}

// Build builds one OMOP table and writes it to the output directory.
func (p *Pipeline) Build(ctx context.Context, table string) error {
	var (
		count int
		err   error
	)
	switch table {
	case omop.TablePerson:
		count, err = p.buildPerson(ctx)
	case omop.TableProvider:
		count, err = p.buildProvider(ctx)
	case omop.TableLocation:
		count, err = p.buildLocation(ctx)
	case omop.TableVisitOccurrence:
		count, err = p.buildVisitOccurrence(ctx)
	case omop.TableConditionOccurrence,
		omop.TableMeasurement,
		omop.TableDrugExposure,
		omop.TableProcedureOccurrence:
		count, err = p.buildEventTable(ctx, table)
	case omop.TableObservationPeriod:
		count, err = p.buildObservationPeriod(ctx)
	case omop.TableDeath:
		count, err = p.buildDeath(ctx)
	case omop.TableCohort:
		count, err = p.buildCohort(ctx)
	default:
		return fmt.Errorf("unknown table %q", table)
	}
	if err != nil {
		return fmt.Errorf("build %s: %w", table, err)
	}
	p.log.Info().Str("table", table).Int("rows", count).Msg("table written")
	return nil
}

// BuildAll builds every table the manifest defines, in dependency
// order. A failing table is reported and skipped; the rest still build.
func (p *Pipeline) BuildAll(ctx context.Context) error {
	var errs []error
	for _, table := range AllTables {
		if _, ok := p.manifest.Tables[table]; !ok {
			p.log.Debug().Str("table", table).Msg("not in manifest, skipping")
			continue
		}
		if err := p.Build(ctx, table); err != nil {
			p.log.Error().Str("table", table).Err(err).Msg("table failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unmapped loads and maps one table's sources and reports the distinct
// source values that resolved to no standard concept.
func (p *Pipeline) Unmapped(ctx context.Context, table string) ([]vocab.UnmappedValue, error) {
	records, spec, err := p.loadTable(table)
	if err != nil {
		return nil, err
	}
	mappings, err := p.mapRecords(ctx, records, spec)
	if err != nil {
		return nil, err
	}
	return vocab.Unmapped(mappings), nil
}

// sourceReaders bounds how many of a table's files are read at once.
const sourceReaders = 4

// loadTable reads all sources of one manifest table in parallel and
// concatenates them in manifest order.
func (p *Pipeline) loadTable(table string) ([]source.Record, config.TableSpec, error) {
	spec, err := p.manifest.Table(table)
	if err != nil {
		return nil, config.TableSpec{}, err
	}

	perSource, err := worker.Map(context.Background(), sourceReaders, spec.Sources,
		func(_ context.Context, src config.SourceSpec) ([]source.Record, error) {
			rows, err := source.Read(p.cfg.DataDir, src)
			if err != nil {
				return nil, err
			}
			p.log.Debug().Str("table", table).Str("source", src.Path).Int("rows", len(rows)).Msg("source read")
			return rows, nil
		})
	if err != nil {
		return nil, config.TableSpec{}, err
	}

	var records []source.Record
	for _, rows := range perSource {
		records = append(records, rows...)
	}
	return records, spec, nil
}

// mapRecords resolves every record's source value through the table's
// vocabulary targets and fallbacks. The returned slice is index-aligned
// with records.
func (p *Pipeline) mapRecords(ctx context.Context, records []source.Record, spec config.TableSpec) ([]vocab.Mapping, error) {
	mappings := make([]vocab.Mapping, len(records))
	for i, rec := range records {
		mappings[i] = vocab.Mapping{SourceValue: rec.SourceValue, Vocabulary: rec.Vocabulary}
	}

	targets := make(map[string]vocab.MatchOn, len(spec.Targets))
	for vocabulary, matchOn := range spec.Targets {
		targets[vocabulary] = vocab.MatchOn(matchOn)
	}
	fallbacks := make([]vocab.Fallback, 0, len(spec.Fallbacks))
	for _, fb := range spec.Fallbacks {
		fallbacks = append(fallbacks, vocab.Fallback{Vocabulary: fb.Vocabulary, MatchOn: vocab.MatchOn(fb.MatchOn)})
	}

	if err := p.mapper.Map(ctx, mappings, targets, fallbacks); err != nil {
		return nil, err
	}
	return mappings, nil
}

func (p *Pipeline) reducer() *temporal.Reducer {
	onCap := temporal.CapWarn
	if p.cfg.Reduce.FailOnCap {
		onCap = temporal.CapFail
	}
	return temporal.NewReducer(p.cfg.Reduce.MaxIterations, onCap, p.log)
}

func writeRows[T any](outDir, table string, rows []T) (int, error) {
	w, err := omop.NewWriter[T](outDir, table)
	if err != nil {
		return 0, err
	}
	if err := w.Write(rows...); err != nil {
		_ = w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.Count(), nil
}
