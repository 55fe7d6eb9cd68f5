package ingest

import (
	"context"
	"os"
	"path/filepath"
)

// FileReader reads a file's raw bytes. The ingestor owns nothing beyond the
// returned buffer.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// FileReaderFunc adapts a function to FileReader.
type FileReaderFunc func(ctx context.Context, path string) ([]byte, error)

func (f FileReaderFunc) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// OSFileReader 从本地文件系统读取文件
// Root 非空时，相对路径以 Root 为基准解析
type OSFileReader struct {
	Root string
}

// NewOSFileReader 创建本地文件读取器
func NewOSFileReader(root string) *OSFileReader {
	return &OSFileReader{Root: root}
}

// ReadFile 读取整个文件
func (r *OSFileReader) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(r.resolve(path))
}

func (r *OSFileReader) resolve(path string) string {
	if r.Root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.Root, path)
}
