package omop

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// flushInterval bounds writer memory by cutting a row group every so
// many rows.
const flushInterval = 100_000

// Writer writes one OMOP table to a snappy-compressed parquet file.
type Writer[T any] struct {
	path   string
	file   *os.File
	writer *parquet.GenericWriter[T]
	count  int
}

// NewWriter creates <dir>/<table>.parquet and a writer for it.
func NewWriter[T any](dir, table string) (*Writer[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, table+".parquet")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	writer := parquet.NewGenericWriter[T](file,
		parquet.Compression(&parquet.Snappy),
	)
	return &Writer[T]{path: path, file: file, writer: writer}, nil
}

// Write appends rows, flushing a row group every flushInterval rows.
func (w *Writer[T]) Write(rows ...T) error {
	for len(rows) > 0 {
		n := flushInterval - w.count%flushInterval
		if n > len(rows) {
			n = len(rows)
		}
		if _, err := w.writer.Write(rows[:n]); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		w.count += n
		rows = rows[n:]

		if w.count%flushInterval == 0 {
			if err := w.writer.Flush(); err != nil {
				return fmt.Errorf("flush parquet row group: %w", err)
			}
		}
	}
	return nil
}

// Count returns the number of rows written so far.
func (w *Writer[T]) Count() int {
	return w.count
}

// Path returns the output file path.
func (w *Writer[T]) Path() string {
	return w.path
}

// Close flushes remaining rows and closes the file.
func (w *Writer[T]) Close() error {
	if err := w.writer.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}
