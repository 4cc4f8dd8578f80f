package tabular

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

// Writer stores frames as CSV files with a header row and no index column.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) WriteFrame(ctx context.Context, path string, frame *domain.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.WrapError(domain.ErrIO, "create table dir", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "create table file", err)
	}
	if err := WriteCSV(f, frame); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return domain.WrapError(domain.ErrIO, "close table file", err)
	}
	return nil
}

// WriteCSV renders the frame. Missing values are written as empty cells.
func WriteCSV(dst io.Writer, frame *domain.Frame) error {
	if frame.Rows() == 0 {
		if _, err := io.WriteString(dst, strings.Join(frame.Names(), ",")+"\n"); err != nil {
			return domain.WrapError(domain.ErrIO, "write csv", err)
		}
		return nil
	}
	df := dataframe.LoadRecords(frame.Records(), loadOptions()...)
	if df.Err != nil {
		return domain.WrapError(domain.ErrDataInvalid, "build csv", df.Err)
	}
	if err := df.WriteCSV(dst); err != nil {
		return domain.WrapError(domain.ErrIO, "write csv", err)
	}
	return nil
}
