// Package export encodes trigger tables as CSV.
//
// The format is the one engine result files use: a header row, every field
// double quoted, embedded quotes doubled, rows separated by "\n". ReadTable
// accepts any RFC 4180 input, so both engine results and previous exports
// written by WriteTable round-trip through the same code.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/triggerexport/internal/models"
)

// ErrEmpty is returned when the input has no header row.
var ErrEmpty = errors.New("csv input is empty")

// ReadTable parses a CSV stream into a table keyed on timeColumn.
func ReadTable(r io.Reader, timeColumn string) (*models.Table, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	table, err := models.NewTable(header, timeColumn)
	if err != nil {
		return nil, err
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if err := table.Append(fields); err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return table, nil
}

// WriteTable writes the header and all records with every field quoted.
func WriteTable(w io.Writer, table *models.Table) error {
	bw := bufio.NewWriter(w)
	if err := writeRow(bw, table.Header); err != nil {
		return err
	}
	for _, r := range table.Records {
		if err := writeRow(bw, r.Fields); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Encode renders the table into memory.
func Encode(table *models.Table) ([]byte, error) {
	var sb strings.Builder
	if err := WriteTable(&sb, table); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := w.WriteString(strings.ReplaceAll(f, `"`, `""`)); err != nil {
			return err
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}
