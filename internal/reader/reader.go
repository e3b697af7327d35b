// Package reader decodes delimited and spreadsheet files into tabular
// records. Cells stay strings end to end; coercion to numbers and dates is
// the cleaner's job, which keeps the original cell formatting available for
// issue detail templates.
//
// Delimited files (.csv, .tsv, .txt) go through an ordered encoding probe
// (UTF-8, UTF-8 with BOM, GB18030, GBK, GB2312, Latin-1) and delimiter
// inference on the first data line. Spreadsheets (.xlsx, .xls) are read via
// excelize, first worksheet unless a sheet name is given.
package reader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"reconciliation-task-service/pkg/errors"
	"reconciliation-task-service/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// Record is one data row keyed by trimmed header strings.
type Record map[string]string

// Table is the decoded content of one file: the header in column order and
// every data row as a header-keyed record.
type Table struct {
	Path    string
	Headers []string
	Records []Record
}

// Options adjusts how a file is read.
type Options struct {
	// Sheet selects a worksheet by name for spreadsheet files. Empty
	// selects the first worksheet.
	Sheet string
}

// ReadStats summarizes one read operation for logging.
type ReadStats struct {
	Encoding  string
	Delimiter rune
	Rows      int
}

// Read decodes the file at path into a Table. The context is observed
// before decoding starts; the read itself is blocking.
func Read(ctx context.Context, path string, opts *Options) (*Table, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := logger.GetGlobalLogger().WithComponent("reader").WithField("file_path", path)

	var (
		table *Table
		stats *ReadStats
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		table, err = readSpreadsheet(path, opts.Sheet)
	default:
		table, stats, err = readDelimited(path)
	}
	if err != nil {
		return nil, err
	}

	fields := logger.Fields{"rows": len(table.Records), "columns": len(table.Headers)}
	if stats != nil {
		fields["encoding"] = stats.Encoding
		fields["delimiter"] = string(stats.Delimiter)
	}
	log.WithFields(fields).Debug("File decoded")
	return table, nil
}

// readDelimited decodes a CSV/TSV/TXT file: probe the encoding, infer the
// delimiter from the first non-empty line, then parse with encoding/csv.
func readDelimited(path string) (*Table, *ReadStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, nil, errors.ParseError(errors.CodeReadFailed, path, err)
	}

	text, encodingName, ok := decodeText(data)
	if !ok {
		return nil, nil, errors.ParseError(errors.CodeReadFailed, path,
			errors.ParseError(errors.CodeEncodingError, path, nil))
	}

	delimiter := inferDelimiter(text)

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.ParseError(errors.CodeReadFailed, path, err)
		}
		rows = append(rows, record)
	}

	table, err := buildTable(path, rows)
	if err != nil {
		return nil, nil, err
	}
	stats := &ReadStats{Encoding: encodingName, Delimiter: delimiter, Rows: len(table.Records)}
	return table, stats, nil
}

// readSpreadsheet decodes an Excel workbook. Legacy binary .xls files that
// excelize cannot open surface read_failed with the underlying cause.
func readSpreadsheet(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.ParseError(errors.CodeReadFailed, path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.ParseError(errors.CodeReadFailed, path,
			fmt.Errorf("worksheet %q: %w", sheet, err))
	}
	return buildTable(path, rows)
}

// buildTable locates the header and converts raw rows to records. The
// header is the first row with any non-empty cell; duplicate headers keep
// the first column; short rows pad with empty strings and long rows drop
// the overflow.
func buildTable(path string, rows [][]string) (*Table, error) {
	headerIdx := -1
	for i, row := range rows {
		if !rowEmpty(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return nil, errors.ParseError(errors.CodeEmptyFile, path, nil)
	}

	rawHeader := rows[headerIdx]
	headers := make([]string, 0, len(rawHeader))
	columns := make([]int, 0, len(rawHeader))
	seen := make(map[string]bool, len(rawHeader))
	for col, h := range rawHeader {
		name := strings.TrimSpace(h)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		headers = append(headers, name)
		columns = append(columns, col)
	}

	var records []Record
	for _, row := range rows[headerIdx+1:] {
		if rowEmpty(row) {
			continue
		}
		record := make(Record, len(headers))
		for i, name := range headers {
			col := columns[i]
			if col < len(row) {
				record[name] = row[col]
			} else {
				record[name] = ""
			}
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, errors.ParseError(errors.CodeEmptyFile, path, nil)
	}

	return &Table{Path: path, Headers: headers, Records: records}, nil
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// inferDelimiter picks the delimiter by counting candidate characters
// outside quotes on the first non-empty line. Comma wins ties, matching
// its position in the candidate order.
func inferDelimiter(text string) rune {
	line := firstNonEmptyLine(text)
	counts := map[rune]int{',': 0, ';': 0, '\t': 0}
	inQuotes := false
	for _, c := range line {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if _, ok := counts[c]; ok {
			counts[c]++
		}
	}

	best := ','
	for _, candidate := range []rune{',', ';', '\t'} {
		if counts[candidate] > counts[best] {
			best = candidate
		}
	}
	return best
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
