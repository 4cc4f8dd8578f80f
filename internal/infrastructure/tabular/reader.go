// Package tabular reads and writes header-first tabular files (CSV, XLSX)
// as domain frames.
package tabular

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

type Reader struct {
	// Sheet selects the XLSX worksheet; empty means the first sheet.
	Sheet string
}

func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) ReadFrame(ctx context.Context, path string) (*domain.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "open table", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		frame, err := r.readXLSX(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		return frame, nil
	default:
		frame, err := ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		return frame, nil
	}
}

// ReadCSV parses comma-separated text with a header row.
func ReadCSV(src io.Reader) (*domain.Frame, error) {
	return fromDataFrame(dataframe.ReadCSV(src, loadOptions()...))
}

func (r *Reader) readXLSX(src io.Reader) (*domain.Frame, error) {
	book, err := excelize.OpenReader(src)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDataInvalid, "open workbook", err)
	}
	defer book.Close()

	sheet := r.Sheet
	if sheet == "" {
		sheet = book.GetSheetName(0)
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDataInvalid, "read sheet "+sheet, err)
	}
	return FromRecords(rows)
}
