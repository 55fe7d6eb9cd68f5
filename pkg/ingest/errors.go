package ingest

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码
type ErrorCode string

const (
	ErrCodeRead            ErrorCode = "READ"
	ErrCodeDecode          ErrorCode = "DECODE"
	ErrCodeParse           ErrorCode = "PARSE"
	ErrCodeSheetNotFound   ErrorCode = "SHEET_NOT_FOUND"
	ErrCodeUnsupportedKind ErrorCode = "UNSUPPORTED_KIND"
	ErrCodeCanceled        ErrorCode = "CANCELED"
)

// failureMessage is the one message every ingestion failure reports.
const failureMessage = "Error parsing file"

var (
	ErrSheetNotFound   = errors.New("sheet not found")
	ErrUnsupportedKind = errors.New("unsupported file kind")
	ErrNoSheets        = errors.New("workbook contains no sheets")
)

// Error 解析失败（带错误码和堆栈）
//
// Error() always reads "Error parsing file: <cause>", so callers that only look at the
// message see a single failure kind; Code carries the finer classification.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
	Stack   []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StackTrace 返回调用堆栈
func (e *Error) StackTrace() []string {
	return e.Stack
}

// newError 包装底层错误为解析失败
func newError(code ErrorCode, path string, cause error) *Error {
	var existing *Error
	if errors.As(cause, &existing) {
		return existing
	}
	return &Error{
		Code:    code,
		Message: failureMessage,
		Path:    path,
		Stack:   captureStackTrace(),
		Cause:   cause,
	}
}

// captureStackTrace 捕获调用堆栈
func captureStackTrace() []string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return []string{}
	}

	frames := runtime.CallersFrames(pc[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()

		file := frame.File
		if idx := strings.LastIndex(file, "/"); idx != -1 {
			file = file[idx+1:]
		}
		fn := frame.Function
		if idx := strings.LastIndex(fn, "/"); idx != -1 {
			fn = fn[idx+1:]
		}
		stack = append(stack, fmt.Sprintf("  at %s (%s:%d)", fn, file, frame.Line))

		if !more {
			break
		}
	}
	return stack
}

// IsErrorCode 检查错误码
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	var ingestErr *Error
	if errors.As(err, &ingestErr) {
		return ingestErr.Code
	}
	return ""
}
