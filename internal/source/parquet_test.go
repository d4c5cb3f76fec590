package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/salusdata/bps2omop/internal/config"
)

type labRow struct {
	PersonID int64    `parquet:"pid"`
	Date     string   `parquet:"date,optional"`
	Code     *string  `parquet:"code,optional"`
	Result   *float64 `parquet:"result,optional"`
	Unit     *string  `parquet:"unit,optional"`
}

func writeParquetFile(t *testing.T, rows []labRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labs.parquet")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := parquet.NewGenericWriter[labRow](file, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func strp(s string) *string     { return &s }
func floatp(f float64) *float64 { return &f }

func TestReadParquet(t *testing.T) {
	path := writeParquetFile(t, []labRow{
		{PersonID: 1, Date: "2022-06-15", Code: strp("14749-6"), Result: floatp(6.1), Unit: strp("mmol/L")},
		{PersonID: 2, Date: "2022-07-01", Code: strp("718-7")},
	})

	spec := config.SourceSpec{
		Path:        path,
		Format:      "parquet",
		Vocabulary:  "LOINC",
		TypeConcept: 32856,
		Columns: config.ColumnMap{
			PersonID:    "pid",
			StartDate:   "date",
			SourceValue: "code",
			Value:       "result",
			Unit:        "unit",
		},
	}

	records, err := Read("", spec)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first.PersonID != 1 || first.SourceValue != "14749-6" || first.Unit != "mmol/L" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if !first.HasValue || first.Value != 6.1 {
		t.Errorf("value = %v (has=%v), want 6.1", first.Value, first.HasValue)
	}
	if !first.Start.Equal(time.Date(2022, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", first.Start)
	}
	if !first.End.Equal(first.Start) {
		t.Errorf("missing end should equal start, got %v", first.End)
	}
	if first.Vocabulary != "LOINC" || first.TypeConcept != 32856 {
		t.Errorf("file-level stamps not applied: %+v", first)
	}

	// A null value column leaves the record without a value.
	if records[1].HasValue {
		t.Errorf("second record should have no value: %+v", records[1])
	}
}

func TestReadParquetMissingColumns(t *testing.T) {
	path := writeParquetFile(t, []labRow{{PersonID: 1, Date: "2022-06-15"}})

	spec := config.SourceSpec{
		Path:   path,
		Format: "parquet",
		Columns: config.ColumnMap{
			PersonID:  "pid",
			StartDate: "date",
			EndDate:   "discharge",
			Unit:      "uom",
		},
	}

	_, err := Read("", spec)
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	for _, name := range []string{"discharge", "uom"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should name missing column %q", err, name)
		}
	}
}
