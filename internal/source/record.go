// Package source loads heterogeneous BPS export files (CSV and Parquet)
// into normalized records, applying the per-file column mapping and
// shape fixes declared in the manifest.
package source

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/salusdata/bps2omop/internal/config"
)

// Record is one normalized source row. Which fields are populated
// depends on the file's column map; Start doubles as the event date for
// single-date files.
type Record struct {
	PersonID    int64
	Start       time.Time
	End         time.Time
	SourceValue string
	Unit        string
	Vocabulary  string
	TypeConcept int64
	ProviderID  int64
	Value       float64
	HasValue    bool
}

// defaultDateLayout is how BPS exports format dates unless the manifest
// says otherwise.
const defaultDateLayout = "2006-01-02"

// Read loads one manifest source into normalized records: parse the
// file, stamp the file-level vocabulary and type concept, then apply the
// declared transform.
func Read(dataDir string, spec config.SourceSpec) ([]Record, error) {
	path := spec.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}

	var (
		records []Record
		err     error
	)
	switch spec.Format {
	case "csv":
		records, err = readCSV(path, spec)
	case "parquet":
		records, err = readParquet(path, spec)
	default:
		return nil, fmt.Errorf("unknown source format %q", spec.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Path, err)
	}

	for i := range records {
		records[i].Vocabulary = spec.Vocabulary
		records[i].TypeConcept = spec.TypeConcept
	}

	switch spec.Transform {
	case "":
		return records, nil
	case "single_day":
		return singleDay(records), nil
	case "melt_start_end":
		return meltStartEnd(records), nil
	default:
		return nil, fmt.Errorf("%s: unknown transform %q", spec.Path, spec.Transform)
	}
}

// singleDay makes every record a one-day event ending where it starts.
// Used for files whose end column carries no information.
func singleDay(records []Record) []Record {
	for i := range records {
		records[i].End = records[i].Start
	}
	return records
}

// meltStartEnd splits each record into independent single-day events at
// its start and end dates. Some files record a begin event and an end
// event in one row rather than a lived-through period.
func meltStartEnd(records []Record) []Record {
	type key struct {
		person int64
		at     int64
	}
	seen := make(map[key]struct{}, len(records)*2)
	out := make([]Record, 0, len(records)*2)

	add := func(rec Record, at time.Time) {
		if at.IsZero() {
			return
		}
		k := key{rec.PersonID, at.UnixMilli()}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		rec.Start = at
		rec.End = at
		out = append(out, rec)
	}

	for _, rec := range records {
		add(rec, rec.Start)
		add(rec, rec.End)
	}
	return out
}
