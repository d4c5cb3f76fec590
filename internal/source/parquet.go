package source

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/salusdata/bps2omop/internal/config"
)

// parquetReadBatch is how many rows are decoded per ReadRows call.
const parquetReadBatch = 1024

func readParquet(path string, spec config.SourceSpec) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	idx, err := schemaIndex(pf.Schema(), spec.Columns)
	if err != nil {
		return nil, err
	}

	layout := spec.CSV.DateLayout
	if layout == "" {
		layout = defaultDateLayout
	}

	var out []Record
	buf := make([]parquet.Row, parquetReadBatch)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				rec, convErr := parquetRecord(row, idx, spec.Columns, layout)
				if convErr != nil {
					_ = rows.Close()
					return nil, convErr
				}
				out = append(out, rec)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("read rows: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close row reader: %w", err)
		}
	}
	return out, nil
}

// schemaIndex resolves configured column names to leaf column indexes,
// erroring with every missing column at once.
func schemaIndex(schema *parquet.Schema, cols config.ColumnMap) (map[string]int, error) {
	idx := map[string]int{}
	var missing []string
	bind := func(field, column string) {
		if column == "" {
			return
		}
		leaf, ok := schema.Lookup(column)
		if !ok {
			missing = append(missing, column)
			return
		}
		idx[field] = leaf.ColumnIndex
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

func parquetRecord(row parquet.Row, idx map[string]int, cols config.ColumnMap, layout string) (Record, error) {
	var rec Record

	byColumn := map[int]parquet.Value{}
	for _, val := range row {
		byColumn[val.Column()] = val
	}
	get := func(field string) (parquet.Value, bool) {
		i, ok := idx[field]
		if !ok {
			return parquet.Value{}, false
		}
		val, ok := byColumn[i]
		if !ok || val.IsNull() {
			return parquet.Value{}, false
		}
		return val, true
	}

	val, ok := get("person_id")
	if !ok {
		return rec, fmt.Errorf("null %s value", cols.PersonID)
	}
	person, err := valueInt(val)
	if err != nil {
		return rec, fmt.Errorf("parse %s: %w", cols.PersonID, err)
	}
	rec.PersonID = person

	if val, ok := get("start_date"); ok {
		rec.Start, err = valueTime(val, layout)
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", cols.StartDate, err)
		}
	}
	if val, ok := get("end_date"); ok {
		rec.End, err = valueTime(val, layout)
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", cols.EndDate, err)
		}
	}
	if rec.End.IsZero() {
		rec.End = rec.Start
	}

	if val, ok := get("source_value"); ok {
		rec.SourceValue = val.String()
	}
	if val, ok := get("unit"); ok {
		rec.Unit = val.String()
	}
	if val, ok := get("value"); ok {
		rec.Value, err = valueFloat(val)
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", cols.Value, err)
		}
		rec.HasValue = true
	}
	if val, ok := get("provider_id"); ok {
		rec.ProviderID, err = valueInt(val)
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", cols.ProviderID, err)
		}
	}
	return rec, nil
}

func valueInt(val parquet.Value) (int64, error) {
	switch val.Kind() {
	case parquet.Int32:
		return int64(val.Int32()), nil
	case parquet.Int64:
		return val.Int64(), nil
	case parquet.ByteArray:
		return strconv.ParseInt(val.String(), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected kind %s for integer column", val.Kind())
	}
}

func valueFloat(val parquet.Value) (float64, error) {
	switch val.Kind() {
	case parquet.Float:
		return float64(val.Float()), nil
	case parquet.Double:
		return val.Double(), nil
	case parquet.Int32:
		return float64(val.Int32()), nil
	case parquet.Int64:
		return float64(val.Int64()), nil
	case parquet.ByteArray:
		return strconv.ParseFloat(val.String(), 64)
	default:
		return 0, fmt.Errorf("unexpected kind %s for numeric column", val.Kind())
	}
}

// valueTime decodes the date encodings seen across BPS exports: DATE
// columns (int32 days since epoch), millisecond timestamps (int64), or
// plain strings in the manifest's date layout.
func valueTime(val parquet.Value, layout string) (time.Time, error) {
	switch val.Kind() {
	case parquet.Int32:
		return time.Unix(int64(val.Int32())*86400, 0).UTC(), nil
	case parquet.Int64:
		return time.UnixMilli(val.Int64()).UTC(), nil
	case parquet.ByteArray:
		return time.Parse(layout, val.String())
	default:
		return time.Time{}, fmt.Errorf("unexpected kind %s for date column", val.Kind())
	}
}
