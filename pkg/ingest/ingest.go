// Package ingest turns one on-disk spreadsheet (xlsx workbook or delimited
// text) into an ordered set of column-keyed rows.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/contentmcp/pkg/logging"
)

// Ingestor 表格数据导入器
// 每次调用都重新读取并解析文件，不缓存，调用之间不共享可变状态
type Ingestor struct {
	reader FileReader
	logger logging.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(in *Ingestor) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// NewIngestor 创建导入器；reader 为 nil 时使用本地文件系统
func NewIngestor(reader FileReader, opts ...Option) *Ingestor {
	if reader == nil {
		reader = NewOSFileReader("")
	}
	in := &Ingestor{
		reader: reader,
		logger: logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest reads src and parses it into a RowSet. Every failure is an *Error
// whose message reads "Error parsing file: <cause>". Cancelling ctx abandons
// the wait; it does not interrupt a read already in progress.
func (in *Ingestor) Ingest(ctx context.Context, src SourceFile) (RowSet, error) {
	start := time.Now()

	rows, err := in.ingest(ctx, src)
	if err != nil {
		in.logger.Warn("[INGEST] %s (%s) failed: %v", src.Path, src.Kind, err)
		return nil, err
	}

	in.logger.Debug("[INGEST] %s (%s) parsed %d rows in %s", src.Path, src.Kind, len(rows), time.Since(start))
	return rows, nil
}

func (in *Ingestor) ingest(ctx context.Context, src SourceFile) (RowSet, error) {
	kind, err := ParseFileKind(string(src.Kind))
	if err != nil {
		return nil, newError(ErrCodeUnsupportedKind, src.Path, err)
	}

	data, err := in.reader.ReadFile(ctx, src.Path)
	if err != nil {
		if isContextErr(err) {
			return nil, newError(ErrCodeCanceled, src.Path, err)
		}
		return nil, newError(ErrCodeRead, src.Path, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, newError(ErrCodeCanceled, src.Path, err)
	}

	var parse func() (RowSet, error)
	if kind == KindWorkbook {
		parse = func() (RowSet, error) { return readWorkbook(ctx, data, src) }
	} else {
		text, err := decodeText(data)
		if err != nil {
			return nil, newError(ErrCodeDecode, src.Path, err)
		}
		parse = func() (RowSet, error) {
			rows, err := readDelimited(text, guessDelimiter(text))
			if err != nil {
				return nil, newError(ErrCodeParse, src.Path, err)
			}
			return rows, nil
		}
	}

	select {
	case res := <-parseAsync(parse):
		return res.rows, res.err
	case <-ctx.Done():
		return nil, newError(ErrCodeCanceled, src.Path, ctx.Err())
	}
}

type parseResult struct {
	rows RowSet
	err  error
}

// parseAsync runs parse on its own goroutine. The returned channel yields
// exactly one result and is buffered, so the parser never blocks on an
// abandoned receiver.
func parseAsync(parse func() (RowSet, error)) <-chan parseResult {
	done := make(chan parseResult, 1)
	go func() {
		rows, err := parse()
		done <- parseResult{rows: rows, err: err}
	}()
	return done
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
