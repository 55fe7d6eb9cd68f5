package ingest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// maxSafeInteger numbers beyond this magnitude stay strings
	maxSafeInteger = 1<<53 - 1

	emptyHeader = "__EMPTY"
	extraFields = "__parsed_extra"
)

var (
	numberPattern  = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-[01]\d-[0-3]\dT[0-2]\d:[0-5]\d(:[0-5]\d(\.\d+)?)?([+-][0-2]\d:[0-5]\d|Z)$`)
)

// dynamicValue 对文本单元格做动态类型推断
func dynamicValue(s string) interface{} {
	switch s {
	case "":
		return nil
	case "true", "TRUE":
		return true
	case "false", "FALSE":
		return false
	}

	if numberPattern.MatchString(s) {
		if v, ok := parseNumber(strings.TrimSpace(s)); ok {
			return v
		}
		return s
	}

	if isoDatePattern.MatchString(s) {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}

	return s
}

// parseNumber returns int64 for integral literals and float64 otherwise.
func parseNumber(s string) (interface{}, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.Abs(f) > maxSafeInteger {
		return nil, false
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
	}
	return f, true
}

// numericValue narrows a float to int64 when it has no fractional part.
func numericValue(f float64) interface{} {
	if f == math.Trunc(f) && math.Abs(f) <= maxSafeInteger {
		return int64(f)
	}
	return f
}

// normalizeHeaders 规范化列名：重复列名追加 _1、_2 后缀，列名文本原样保留
// emptyName 非空时用于替换空列名（工作簿使用 __EMPTY，分隔文本保留空字符串）
func normalizeHeaders(raw []string, emptyName string) []string {
	headers := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	suffix := make(map[string]int)

	for i, h := range raw {
		base := h
		if base == "" && emptyName != "" {
			base = emptyName
		}
		name := base
		for used[name] {
			suffix[base]++
			name = fmt.Sprintf("%s_%d", base, suffix[base])
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}
