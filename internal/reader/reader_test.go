package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"reconciliation-task-service/pkg/errors"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestRead_UTF8CSV(t *testing.T) {
	path := writeTempFile(t, "orders.csv", []byte("order_id,amount\nA001,100.00\nA002,250.50\n"))

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	if len(table.Headers) != 2 || table.Headers[0] != "order_id" || table.Headers[1] != "amount" {
		t.Errorf("Headers = %v, want [order_id amount]", table.Headers)
	}
	if len(table.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(table.Records))
	}
	if table.Records[0]["order_id"] != "A001" || table.Records[0]["amount"] != "100.00" {
		t.Errorf("first record = %v", table.Records[0])
	}
}

func TestRead_PreservesNumericFormatting(t *testing.T) {
	path := writeTempFile(t, "amounts.csv", []byte("id,amount\nA,00100.00\n"))

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got := table.Records[0]["amount"]; got != "00100.00" {
		t.Errorf("amount = %q, want original formatting preserved", got)
	}
}

func TestRead_UTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("id,name\n1,alpha\n")...)
	path := writeTempFile(t, "bom.csv", data)

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if table.Headers[0] != "id" {
		t.Errorf("first header = %q, want %q (BOM must be stripped)", table.Headers[0], "id")
	}
}

func TestRead_GBKEncoded(t *testing.T) {
	content := "订单号,金额\nA001,100.00\n"
	encoded, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(content))
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	path := writeTempFile(t, "gbk.csv", encoded)

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if table.Headers[0] != "订单号" {
		t.Errorf("first header = %q, want %q", table.Headers[0], "订单号")
	}
	if table.Records[0]["订单号"] != "A001" {
		t.Errorf("record = %v", table.Records[0])
	}
}

func TestRead_GB18030Encoded(t *testing.T) {
	content := "单号,到账金额\nB007,42\n"
	encoded, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte(content))
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	path := writeTempFile(t, "gb18030.csv", encoded)

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if table.Records[0]["单号"] != "B007" {
		t.Errorf("record = %v", table.Records[0])
	}
}

func TestRead_BinaryFailsReadFailed(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02, 0xFF, 0x00, 0xFE, 0x00}
	path := writeTempFile(t, "binary.csv", data)

	_, err := Read(context.Background(), path, nil)
	if err == nil {
		t.Fatal("Read() should fail on binary input")
	}
	if !errors.HasCode(err, errors.CodeReadFailed) {
		t.Errorf("error code = %v, want read_failed", err)
	}
}

func TestRead_DelimiterInference(t *testing.T) {
	tests := []struct {
		name    string
		content string
		header  []string
	}{
		{"semicolon", "a;b;c\n1;2;3\n", []string{"a", "b", "c"}},
		{"tab", "a\tb\tc\n1\t2\t3\n", []string{"a", "b", "c"}},
		{"comma wins tie against absent", "a,b\n1,2\n", []string{"a", "b"}},
		{"quoted delimiters ignored", "a;\"x;y\";c\n1;2;3\n", []string{"a", "x;y", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "infer.csv", []byte(tt.content))
			table, err := Read(context.Background(), path, nil)
			if err != nil {
				t.Fatalf("Read() error: %v", err)
			}
			if len(table.Headers) != len(tt.header) {
				t.Fatalf("Headers = %v, want %v", table.Headers, tt.header)
			}
			for i, h := range tt.header {
				if table.Headers[i] != h {
					t.Errorf("Headers[%d] = %q, want %q", i, table.Headers[i], h)
				}
			}
		})
	}
}

func TestRead_ShortAndLongRows(t *testing.T) {
	path := writeTempFile(t, "ragged.csv", []byte("a,b,c\n1,2\n1,2,3,4\n"))

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got := table.Records[0]["c"]; got != "" {
		t.Errorf("short row c = %q, want empty pad", got)
	}
	if got := table.Records[1]["c"]; got != "3" {
		t.Errorf("long row c = %q, want 3 (overflow dropped)", got)
	}
}

func TestRead_HeaderSkipsLeadingEmptyRows(t *testing.T) {
	path := writeTempFile(t, "leading.csv", []byte("\n  ,  \nid,name\n1,x\n"))

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if table.Headers[0] != "id" {
		t.Errorf("header = %v, want first non-empty row", table.Headers)
	}
	if len(table.Records) != 1 {
		t.Errorf("got %d records, want 1", len(table.Records))
	}
}

func TestRead_DuplicateHeadersFirstColumnWins(t *testing.T) {
	path := writeTempFile(t, "dup.csv", []byte("id,id,name\n1,2,x\n"))

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(table.Headers) != 2 {
		t.Fatalf("Headers = %v, want 2 distinct", table.Headers)
	}
	if got := table.Records[0]["id"]; got != "1" {
		t.Errorf("id = %q, want first column value", got)
	}
}

func TestRead_EmptyFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no bytes", ""},
		{"header only", "id,name\n"},
		{"whitespace only", "\n\n  \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "empty.csv", []byte(tt.content))
			_, err := Read(context.Background(), path, nil)
			if err == nil {
				t.Fatal("Read() should fail on empty input")
			}
			if !errors.HasCode(err, errors.CodeEmptyFile) {
				t.Errorf("error code = %v, want empty_file", err)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), nil)
	if !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Errorf("error = %v, want file_not_found", err)
	}
}

func TestRead_Canceled(t *testing.T) {
	path := writeTempFile(t, "orders.csv", []byte("id\n1\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Read(ctx, path, nil); err != context.Canceled {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestRead_Spreadsheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := [][]interface{}{
		{"order_id", "amount"},
		{"A001", "100.00"},
		{"A002", "250"},
	}
	for r, row := range cells {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "orders.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}

	table, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(table.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(table.Records))
	}
	if table.Records[0]["order_id"] != "A001" {
		t.Errorf("record = %v", table.Records[0])
	}
}

func TestRead_SpreadsheetNamedSheet(t *testing.T) {
	f := excelize.NewFile()
	if _, err := f.NewSheet("finance"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	if err := f.SetCellValue("finance", "A1", "id"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	if err := f.SetCellValue("finance", "A2", "F1"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}

	table, err := Read(context.Background(), path, &Options{Sheet: "finance"})
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if table.Records[0]["id"] != "F1" {
		t.Errorf("record = %v, want named sheet content", table.Records[0])
	}
}

func TestRead_SpreadsheetBadFile(t *testing.T) {
	path := writeTempFile(t, "broken.xlsx", []byte("not a workbook"))
	_, err := Read(context.Background(), path, nil)
	if !errors.HasCode(err, errors.CodeReadFailed) {
		t.Errorf("error = %v, want read_failed", err)
	}
}
