package worklist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrColumnNotFound is returned when the header row lacks the URL column.
var ErrColumnNotFound = errors.New("url column not found")

// Load reads the worklist at path. Spreadsheets (.xlsx, .xlsm) are read from
// the named sheet; .csv files ignore sheet. In both cases the first row is
// the header and column names the URL column. Rows with an empty URL cell are
// dropped; the remaining rows keep their order.
func Load(path, sheet, column string) ([]WorkItem, error) {
	var (
		rows [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readSheet(path, sheet)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported worklist format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	return fromRows(rows, column)
}

func readSheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open worklist: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse worklist: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func fromRows(rows [][]string, column string) ([]WorkItem, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: worklist is empty", ErrColumnNotFound)
	}

	idx := -1
	for i, name := range rows[0] {
		if strings.TrimSpace(name) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	items := make([]WorkItem, 0, len(rows)-1)
	for _, row := range rows[1:] {
		// excelize trims trailing empty cells, so short rows are empty URLs
		if idx >= len(row) {
			continue
		}
		url := strings.TrimSpace(row[idx])
		if url == "" {
			continue
		}
		items = append(items, NewItem(url))
	}
	return items, nil
}
