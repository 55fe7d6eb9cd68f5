package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// candidateDelimiters in preference order when field counts tie
var candidateDelimiters = []rune{',', '\t', '|', ';', '\x1e', '\x1f'}

const delimiterPreviewLines = 10

// decodeText 以 UTF-8 解码，去掉 BOM，非法字节替换为 U+FFFD
func decodeText(data []byte) (string, error) {
	decoded, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// readDelimited 读取表头和数据行，空行跳过，字段做动态类型推断
func readDelimited(text string, comma rune) (RowSet, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	rows := RowSet{}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return rows, nil
	}
	if err != nil {
		return nil, err
	}
	headers := normalizeHeaders(header, "")

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		rows = append(rows, recordToRow(headers, record))
	}

	return rows, nil
}

// recordToRow 将一条记录按列名转换为 Row
// 字段少于列名时缺失的键不出现；多出的字段放入 __parsed_extra
func recordToRow(headers []string, record []string) Row {
	row := make(Row, len(headers))
	var extra []interface{}
	for j, field := range record {
		value := dynamicValue(field)
		if j < len(headers) {
			row[headers[j]] = value
			continue
		}
		extra = append(extra, value)
	}
	if len(extra) > 0 {
		row[extraFields] = extra
	}
	return row
}

// guessDelimiter picks the candidate that splits the first lines into the same
// number of fields (more than one), preferring the widest split. Falls back to
// a comma.
func guessDelimiter(text string) rune {
	preview := previewLines(text, delimiterPreviewLines)
	best, bestFields := ',', 1

	for _, comma := range candidateDelimiters {
		reader := csv.NewReader(strings.NewReader(preview))
		reader.Comma = comma
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		fields, consistent := 0, true
		for {
			record, err := reader.Read()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					consistent = false
				}
				break
			}
			if fields == 0 {
				fields = len(record)
			} else if len(record) != fields {
				consistent = false
				break
			}
		}

		if consistent && fields > bestFields {
			best, bestFields = comma, fields
		}
	}

	return best
}

func previewLines(text string, n int) string {
	end := 0
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(text[end:], '\n')
		if idx < 0 {
			return text
		}
		end += idx + 1
	}
	return text[:end]
}
