package domain

import (
	"fmt"
	"math"
	"slices"
)

type ColumnKind int

const (
	KindString ColumnKind = iota
	KindFloat
	KindInt
	KindBool
)

func (k ColumnKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Numeric reports whether the column can feed a numeric matrix as is.
func (k ColumnKind) Numeric() bool { return k != KindString }

// Column is one named field of a Frame. String columns use Labels, where an
// empty label marks a missing value. Every other kind uses Values, where NaN
// marks a missing value.
type Column struct {
	Name   string
	Kind   ColumnKind
	Labels []string
	Values []float64
}

func (c Column) Len() int {
	if c.Kind == KindString {
		return len(c.Labels)
	}
	return len(c.Values)
}

func StringColumn(name string, labels []string) Column {
	return Column{Name: name, Kind: KindString, Labels: labels}
}

func FloatColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: KindFloat, Values: values}
}

func IntColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: KindInt, Values: values}
}

func BoolColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: KindBool, Values: values}
}

// Frame is a rectangular, ordered set of named columns. Operations return new
// frames and never mutate the receiver's column list.
type Frame struct {
	columns []Column
	rows    int
}

func NewFrame(columns ...Column) (*Frame, error) {
	f := &Frame{}
	seen := make(map[string]struct{}, len(columns))
	for i, col := range columns {
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		seen[col.Name] = struct{}{}
		if i == 0 {
			f.rows = col.Len()
		} else if col.Len() != f.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", col.Name, col.Len(), f.rows)
		}
	}
	f.columns = append([]Column(nil), columns...)
	return f, nil
}

func (f *Frame) Rows() int { return f.rows }

func (f *Frame) Width() int { return len(f.columns) }

func (f *Frame) Columns() []Column { return append([]Column(nil), f.columns...) }

func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, col := range f.columns {
		names[i] = col.Name
	}
	return names
}

func (f *Frame) Index(name string) int {
	return slices.IndexFunc(f.columns, func(c Column) bool { return c.Name == name })
}

func (f *Frame) Has(name string) bool { return f.Index(name) >= 0 }

func (f *Frame) Column(name string) (Column, bool) {
	i := f.Index(name)
	if i < 0 {
		return Column{}, false
	}
	return f.columns[i], true
}

// Drop returns a frame without the named column. Absent names are ignored.
func (f *Frame) Drop(name string) *Frame {
	i := f.Index(name)
	if i < 0 {
		return f
	}
	cols := make([]Column, 0, len(f.columns)-1)
	cols = append(cols, f.columns[:i]...)
	cols = append(cols, f.columns[i+1:]...)
	return &Frame{columns: cols, rows: f.rows}
}

// Replace swaps the column carrying the same name as col, keeping its position.
func (f *Frame) Replace(col Column) (*Frame, error) {
	i := f.Index(col.Name)
	if i < 0 {
		return nil, fmt.Errorf("column %q not found", col.Name)
	}
	if col.Len() != f.rows {
		return nil, fmt.Errorf("column %q has %d rows, want %d", col.Name, col.Len(), f.rows)
	}
	cols := f.Columns()
	cols[i] = col
	return &Frame{columns: cols, rows: f.rows}, nil
}

// Rename changes a column name in place of the old one.
func (f *Frame) Rename(from, to string) (*Frame, error) {
	i := f.Index(from)
	if i < 0 {
		return nil, fmt.Errorf("column %q not found", from)
	}
	if from != to && f.Has(to) {
		return nil, fmt.Errorf("column %q already exists", to)
	}
	cols := f.Columns()
	cols[i].Name = to
	return &Frame{columns: cols, rows: f.rows}, nil
}

// Take returns a frame with the rows at the given indices, in that order.
func (f *Frame) Take(indices []int) *Frame {
	cols := make([]Column, len(f.columns))
	for j, col := range f.columns {
		out := Column{Name: col.Name, Kind: col.Kind}
		if col.Kind == KindString {
			out.Labels = make([]string, len(indices))
			for i, idx := range indices {
				out.Labels[i] = col.Labels[idx]
			}
		} else {
			out.Values = make([]float64, len(indices))
			for i, idx := range indices {
				out.Values[i] = col.Values[idx]
			}
		}
		cols[j] = out
	}
	return &Frame{columns: cols, rows: len(indices)}
}

// Records renders the frame as a header plus string rows. Missing values
// render as empty strings.
func (f *Frame) Records() [][]string {
	out := make([][]string, 0, f.rows+1)
	out = append(out, f.Names())
	for i := 0; i < f.rows; i++ {
		row := make([]string, len(f.columns))
		for j, col := range f.columns {
			row[j] = col.Cell(i)
		}
		out = append(out, row)
	}
	return out
}

// Cell formats a single value of the column.
func (c Column) Cell(i int) string {
	switch c.Kind {
	case KindString:
		return c.Labels[i]
	case KindBool:
		if math.IsNaN(c.Values[i]) {
			return ""
		}
		if c.Values[i] != 0 {
			return "true"
		}
		return "false"
	default:
		v := c.Values[i]
		if math.IsNaN(v) {
			return ""
		}
		if c.Kind == KindInt {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	}
}
