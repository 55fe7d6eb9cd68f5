package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileKind 源文件类型
type FileKind string

const (
	KindWorkbook  FileKind = "excel"
	KindDelimited FileKind = "csv"
)

// ParseFileKind 解析文件类型，仅接受 excel 和 csv
func ParseFileKind(s string) (FileKind, error) {
	switch FileKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindWorkbook:
		return KindWorkbook, nil
	case KindDelimited:
		return KindDelimited, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedKind, s)
	}
}

// DetectFileKind infers the kind from the file extension. Unknown extensions
// report an empty kind.
func DetectFileKind(path string) FileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return KindWorkbook
	case ".csv", ".tsv", ".txt":
		return KindDelimited
	default:
		return ""
	}
}

// SourceFile 待解析的源文件
type SourceFile struct {
	Path string
	Kind FileKind
	// Sheet selects a worksheet by name; empty means the first declared sheet.
	// Ignored for delimited text.
	Sheet string
}

// Row column name -> scalar (string, int64, float64, bool, time.Time or nil)
type Row map[string]interface{}

// RowSet rows in source order
type RowSet []Row
