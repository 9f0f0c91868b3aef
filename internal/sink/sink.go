package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"comexexport/internal/model"
	"comexexport/internal/normalize"
)

const DefaultPreviewRows = 10

var ErrNoRows = errors.New("sink: no rows")

type Result struct {
	Path    string
	Rows    int
	Columns []string
	Bytes   int64
}

// WriteCSV writes records to path with a header made of the union of record
// keys. An existing file is truncated. When there is nothing to write (no
// records, or records without any field) no file is created.
func WriteCSV(path string, records []model.Record) (Result, error) {
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("sink: output path is required")
	}
	if len(records) == 0 || len(normalize.Columns(records)) == 0 {
		return Result{Path: path}, ErrNoRows
	}

	file, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("sink: create %s: %w", path, err)
	}
	defer file.Close()

	counter := &countingWriter{w: file}
	columns, err := Encode(counter, records)
	if err != nil {
		return Result{}, fmt.Errorf("sink: write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return Result{}, fmt.Errorf("sink: close %s: %w", path, err)
	}

	return Result{
		Path:    path,
		Rows:    len(records),
		Columns: columns,
		Bytes:   counter.n,
	}, nil
}

// Encode writes records as CSV to w and returns the header it used.
func Encode(w io.Writer, records []model.Record) ([]string, error) {
	columns := normalize.Columns(records)

	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return nil, err
	}
	row := make([]string, len(columns))
	for _, record := range records {
		for i, column := range columns {
			row[i] = record.Cell(column)
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return columns, nil
}

// Preview renders the first n records as a bordered table. The header covers
// every column of records, including those that only appear after row n.
func Preview(w io.Writer, records []model.Record, n int) error {
	if n <= 0 || n > len(records) {
		n = len(records)
	}
	head := records[:n]
	columns := normalize.Columns(records)

	rows := make([][]string, 0, len(head))
	for _, record := range head {
		row := make([]string, len(columns))
		for i, column := range columns {
			row[i] = record.Cell(column)
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(columns...).
		Rows(rows...)

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
