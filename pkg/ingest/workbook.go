package ingest

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// builtInDateFormats 内置数字格式中表示日期/时间的编号
var builtInDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

var isoCellLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// readWorkbook 解码工作簿并将选定工作表转换为 RowSet
// ctx 在解码后和逐行转换时检查，取消后尽快返回 CANCELED
func readWorkbook(ctx context.Context, data []byte, src SourceFile) (RowSet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, newError(ErrCodeDecode, src.Path, err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return nil, newError(ErrCodeCanceled, src.Path, err)
	}

	sheet, err := selectSheet(f.GetSheetList(), src.Sheet)
	if err != nil {
		code := ErrCodeDecode
		if src.Sheet != "" {
			code = ErrCodeSheetNotFound
		}
		return nil, newError(code, src.Path, err)
	}

	grid, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, newError(ErrCodeParse, src.Path, err)
	}

	typer := &cellTyper{
		file:       f,
		sheet:      sheet,
		date1904:   uses1904Epoch(f),
		dateStyles: make(map[int]bool),
	}
	rows, err := gridToRows(ctx, grid, typer)
	if err != nil {
		if isContextErr(err) {
			return nil, newError(ErrCodeCanceled, src.Path, err)
		}
		return nil, newError(ErrCodeParse, src.Path, err)
	}
	return rows, nil
}

// selectSheet returns the named sheet, or the first declared one when name is empty.
func selectSheet(sheets []string, name string) (string, error) {
	if len(sheets) == 0 {
		return "", ErrNoSheets
	}
	if name == "" {
		return sheets[0], nil
	}
	if !slices.Contains(sheets, name) {
		return "", fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}
	return name, nil
}

func uses1904Epoch(f *excelize.File) bool {
	props, err := f.GetWorkbookProps()
	if err != nil || props.Date1904 == nil {
		return false
	}
	return *props.Date1904
}

// gridToRows 第一行非空行作为列头，之后每个非空行生成一个 Row
// 区域左侧全空的列会被裁掉，空单元格不出现在 Row 中
func gridToRows(ctx context.Context, grid [][]string, typer *cellTyper) (RowSet, error) {
	rows := RowSet{}

	headerIdx := -1
	for i, r := range grid {
		if !isBlank(r) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return rows, nil
	}

	firstCol, width := usedColumns(grid[headerIdx:])
	raw := make([]string, width-firstCol)
	for j := firstCol; j < len(grid[headerIdx]); j++ {
		raw[j-firstCol] = grid[headerIdx][j]
	}
	headers := normalizeHeaders(raw, emptyHeader)

	for i := headerIdx + 1; i < len(grid); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := make(Row)
		for j := firstCol; j < len(grid[i]); j++ {
			cell := grid[i][j]
			if cell == "" {
				continue
			}
			value, err := typer.value(j+1, i+1, cell)
			if err != nil {
				return nil, err
			}
			row[headers[j-firstCol]] = value
		}
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// usedColumns returns the first column index holding any value and the row width.
func usedColumns(grid [][]string) (first, width int) {
	first = -1
	for _, r := range grid {
		if len(r) > width {
			width = len(r)
		}
		for j, cell := range r {
			if cell != "" {
				if first < 0 || j < first {
					first = j
				}
				break
			}
		}
	}
	if first < 0 {
		first = 0
	}
	return first, width
}

func isBlank(r []string) bool {
	for _, cell := range r {
		if cell != "" {
			return false
		}
	}
	return true
}

// cellTyper 按单元格类型和数字格式还原原生值
type cellTyper struct {
	file       *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool
}

func (c *cellTyper) value(col, row int, raw string) (interface{}, error) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	cellType, err := c.file.GetCellType(c.sheet, cell)
	if err != nil {
		return nil, err
	}

	switch cellType {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeDate:
		for _, layout := range isoCellLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return raw, nil
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw, nil
		}
		isDate, err := c.isDateCell(cell)
		if err != nil {
			return nil, err
		}
		if isDate {
			t, err := excelize.ExcelDateToTime(f, c.date1904)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		return numericValue(f), nil
	default:
		return raw, nil
	}
}

// isDateCell 判断单元格的数字格式是否为日期/时间格式（按样式缓存）
func (c *cellTyper) isDateCell(cell string) (bool, error) {
	styleID, err := c.file.GetCellStyle(c.sheet, cell)
	if err != nil {
		return false, err
	}
	if isDate, ok := c.dateStyles[styleID]; ok {
		return isDate, nil
	}

	style, err := c.file.GetStyle(styleID)
	if err != nil {
		return false, err
	}
	isDate := builtInDateFormats[style.NumFmt]
	if !isDate && style.CustomNumFmt != nil {
		isDate = isDateFormatCode(*style.CustomNumFmt)
	}
	c.dateStyles[styleID] = isDate
	return isDate, nil
}

// isDateFormatCode reports whether a custom number format renders a date or
// time: any y/m/d/h/s token outside quoted literals, escapes and bracketed
// colour/locale sections. Elapsed-time brackets ([h], [mm], [ss]) count.
func isDateFormatCode(code string) bool {
	if strings.EqualFold(code, "general") {
		return false
	}
	// only the positive section decides
	if idx := strings.IndexByte(code, ';'); idx >= 0 {
		code = code[:idx]
	}

	lower := strings.ToLower(code)
	inQuote := false
	for i := 0; i < len(lower); i++ {
		ch := lower[i]
		switch {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		case ch == '[':
			end := strings.IndexByte(lower[i:], ']')
			if end < 0 {
				return false
			}
			section := lower[i+1 : i+end]
			if strings.Trim(section, "hms") == "" && section != "" {
				return true
			}
			i += end
		case strings.IndexByte("ymdhs", ch) >= 0:
			return true
		}
	}
	return false
}
