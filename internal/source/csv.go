package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/salusdata/bps2omop/internal/config"
)

func readCSV(path string, spec config.SourceSpec) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	r := csv.NewReader(file)
	if spec.CSV.Separator != "" {
		r.Comma = []rune(spec.CSV.Separator)[0]
	}
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := headerIndex(header, spec.Columns)
	if err != nil {
		return nil, err
	}

	layout := spec.CSV.DateLayout
	if layout == "" {
		layout = defaultDateLayout
	}

	var out []Record
	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++

		rec, err := csvRecord(row, idx, spec.Columns, layout)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// headerIndex maps each configured column to its header position,
// erroring with the names of every missing column at once.
func headerIndex(header []string, cols config.ColumnMap) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.TrimSpace(name)] = i
	}

	idx := map[string]int{}
	var missing []string
	bind := func(field, column string) {
		if column == "" {
			return
		}
		i, ok := pos[column]
		if !ok {
			missing = append(missing, column)
			return
		}
		idx[field] = i
	}
	bind("person_id", cols.PersonID)
	bind("start_date", cols.StartDate)
	bind("end_date", cols.EndDate)
	bind("source_value", cols.SourceValue)
	bind("value", cols.Value)
	bind("unit", cols.Unit)
	bind("provider_id", cols.ProviderID)

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func csvRecord(row []string, idx map[string]int, cols config.ColumnMap, layout string) (Record, error) {
	var rec Record
	var err error

	get := func(field string) string {
		i, ok := idx[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec.PersonID, err = strconv.ParseInt(get("person_id"), 10, 64)
	if err != nil {
		return rec, fmt.Errorf("parse %s: %w", cols.PersonID, err)
	}

	if cols.StartDate != "" {
		rec.Start, err = time.Parse(layout, get("start_date"))
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", cols.StartDate, err)
		}
	}
	if cols.EndDate != "" {
		if raw := get("end_date"); raw != "" {
			rec.End, err = time.Parse(layout, raw)
			if err != nil {
				return rec, fmt.Errorf("parse %s: %w", cols.EndDate, err)
			}
		}
	}
	if rec.End.IsZero() {
		rec.End = rec.Start
	}

	rec.SourceValue = get("source_value")
	rec.Unit = get("unit")

	if raw := get("value"); raw != "" && cols.Value != "" {
		rec.Value, err = strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", cols.Value, err)
		}
		rec.HasValue = true
	}
	if raw := get("provider_id"); raw != "" && cols.ProviderID != "" {
		rec.ProviderID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", cols.ProviderID, err)
		}
	}
	return rec, nil
}
