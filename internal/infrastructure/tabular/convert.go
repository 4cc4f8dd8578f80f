package tabular

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

// missingTokens are cell values read as "no value".
var missingTokens = map[string]struct{}{
	"":    {},
	"na":  {},
	"NA":  {},
	"N/A": {},
	"NaN": {},
	"nan": {},
}

func IsMissing(cell string) bool {
	_, ok := missingTokens[strings.TrimSpace(cell)]
	return ok
}

// loadOptions keep every column as text so type inference stays in one place.
func loadOptions() []dataframe.LoadOption {
	return []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	}
}

// FromRecords builds a frame from a header row followed by data rows. Short
// rows are padded with missing cells.
func FromRecords(records [][]string) (*domain.Frame, error) {
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrDataInvalid, "load records", errors.New("no header row"))
	}
	width := len(records[0])
	padded := make([][]string, len(records))
	for i, row := range records {
		if len(row) > width {
			return nil, domain.WrapError(domain.ErrDataInvalid, "load records",
				fmt.Errorf("row %d has %d cells, header has %d", i, len(row), width))
		}
		padded[i] = append(append(make([]string, 0, width), row...), make([]string, width-len(row))...)
	}
	if len(padded) == 1 {
		return headerOnly(padded[0])
	}
	return fromDataFrame(dataframe.LoadRecords(padded, loadOptions()...))
}

func headerOnly(header []string) (*domain.Frame, error) {
	cols := make([]domain.Column, len(header))
	for i, name := range header {
		cols[i] = domain.FloatColumn(strings.TrimSpace(name), []float64{})
	}
	frame, err := domain.NewFrame(cols...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDataInvalid, "load records", err)
	}
	return frame, nil
}

func fromDataFrame(df dataframe.DataFrame) (*domain.Frame, error) {
	if df.Err != nil {
		return nil, domain.WrapError(domain.ErrDataInvalid, "parse table", df.Err)
	}
	cols := make([]domain.Column, 0, df.Ncol())
	for _, name := range df.Names() {
		s := df.Col(name)
		cells := make([]string, s.Len())
		for i := range cells {
			if e := s.Elem(i); !e.IsNA() {
				cells[i] = e.String()
			}
		}
		cols = append(cols, inferColumn(strings.TrimSpace(name), cells))
	}
	frame, err := domain.NewFrame(cols...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDataInvalid, "parse table", err)
	}
	return frame, nil
}

// inferColumn picks the narrowest kind that fits every present cell:
// int, then float, then bool, falling back to string.
func inferColumn(name string, cells []string) domain.Column {
	present := make([]string, len(cells))
	seen := false
	for i, c := range cells {
		if !IsMissing(c) {
			present[i] = strings.TrimSpace(c)
			seen = true
		}
	}
	if !seen {
		return domain.FloatColumn(name, nanSlice(len(cells)))
	}
	if values, ok := parseAll(present, parseInt); ok {
		return domain.IntColumn(name, values)
	}
	if values, ok := parseAll(present, parseFloat); ok {
		return domain.FloatColumn(name, values)
	}
	if values, ok := parseAll(present, parseBool); ok {
		return domain.BoolColumn(name, values)
	}
	return domain.StringColumn(name, present)
}

func parseAll(cells []string, parse func(string) (float64, bool)) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		if c == "" {
			out[i] = math.NaN()
			continue
		}
		v, ok := parse(c)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func parseInt(s string) (float64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	return float64(v), err == nil
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func parseBool(s string) (float64, bool) {
	switch s {
	case "true", "True", "TRUE":
		return 1, true
	case "false", "False", "FALSE":
		return 0, true
	}
	return 0, false
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
