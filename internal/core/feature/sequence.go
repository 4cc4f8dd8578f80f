// Package feature holds the transformation core of the pipeline: the ordered
// column transform sequence, the schema-driven scaling plan and the class
// balancer.
package feature

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

// Step is a row-preserving frame transformation.
type Step interface {
	Name() string
	Apply(f *domain.Frame) (*domain.Frame, error)
}

// Sequence applies its steps strictly in order. Each step assumes the column
// shape produced by the previous one.
type Sequence struct {
	steps []Step
}

func NewSequence(steps ...Step) *Sequence {
	return &Sequence{steps: steps}
}

// NewColumnSequence builds the canonical order: gender mapping, id drop,
// dummy expansion, rename and integer coercion.
func NewColumnSequence(schema domain.Schema) *Sequence {
	return NewSequence(
		MapCategories{Column: schema.GenderColumn, Mapping: schema.GenderMapping},
		DropColumn{Column: schema.DropColumn},
		ExpandDummies{},
		RenameAndCoerce{Renames: schema.RenameColumns, IntColumns: schema.IntColumns},
	)
}

func (s *Sequence) Steps() []string {
	names := make([]string, len(s.steps))
	for i, st := range s.steps {
		names[i] = st.Name()
	}
	return names
}

func (s *Sequence) Apply(f *domain.Frame) (*domain.Frame, error) {
	out := f
	for _, st := range s.steps {
		next, err := st.Apply(out)
		if err != nil {
			return nil, domain.NewStageError(st.Name(), err)
		}
		out = next
	}
	return out, nil
}

// MapCategories replaces a categorical column by integer codes. Unknown or
// missing categories fail the step instead of turning into nulls.
type MapCategories struct {
	Column  string
	Mapping map[string]int
}

func (MapCategories) Name() string { return "map_categories" }

func (m MapCategories) Apply(f *domain.Frame) (*domain.Frame, error) {
	col, ok := f.Column(m.Column)
	if !ok {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "map categories", fmt.Errorf("column %q not found", m.Column))
	}
	if col.Kind != domain.KindString {
		return nil, domain.WrapError(domain.ErrDataInvalid, "map categories",
			fmt.Errorf("column %q is %s, want categorical", m.Column, col.Kind))
	}
	values := make([]float64, len(col.Labels))
	for i, label := range col.Labels {
		code, ok := m.Mapping[label]
		if !ok {
			if label == "" {
				return nil, domain.WrapError(domain.ErrDataInvalid, "map categories",
					fmt.Errorf("column %q row %d: missing value", m.Column, i))
			}
			return nil, domain.WrapError(domain.ErrDataInvalid, "map categories",
				fmt.Errorf("column %q row %d: unexpected category %q", m.Column, i, label))
		}
		values[i] = float64(code)
	}
	return f.Replace(domain.IntColumn(m.Column, values))
}

// DropColumn removes a column when present. A missing column is not an error.
type DropColumn struct {
	Column string
}

func (DropColumn) Name() string { return "drop_column" }

func (d DropColumn) Apply(f *domain.Frame) (*domain.Frame, error) {
	if d.Column == "" {
		return f, nil
	}
	return f.Drop(d.Column), nil
}

// ExpandDummies one-hot encodes every remaining categorical column, dropping
// the first (lexicographically smallest) category of each. Numeric columns
// keep their order and the indicator columns are appended after them, named
// "{column}_{category}". Missing labels encode as all zeros.
type ExpandDummies struct{}

func (ExpandDummies) Name() string { return "expand_dummies" }

func (ExpandDummies) Apply(f *domain.Frame) (*domain.Frame, error) {
	var kept, dummies []domain.Column
	for _, col := range f.Columns() {
		if col.Kind != domain.KindString {
			kept = append(kept, col)
			continue
		}
		dummies = append(dummies, dummyColumns(col)...)
	}
	out, err := domain.NewFrame(append(kept, dummies...)...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "expand dummies", err)
	}
	return out, nil
}

func dummyColumns(col domain.Column) []domain.Column {
	seen := make(map[string]struct{})
	for _, label := range col.Labels {
		if label != "" {
			seen[label] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for label := range seen {
		categories = append(categories, label)
	}
	sort.Strings(categories)
	if len(categories) <= 1 {
		return nil
	}

	out := make([]domain.Column, 0, len(categories)-1)
	for _, category := range categories[1:] {
		values := make([]float64, len(col.Labels))
		for i, label := range col.Labels {
			if label == category {
				values[i] = 1
			}
		}
		out = append(out, domain.BoolColumn(col.Name+"_"+category, values))
	}
	return out
}

// RenameAndCoerce renames generated indicator columns to identifier-safe
// names, then casts the required indicator columns to integers. Unlike
// DropColumn it is strict: every expected column must be present, so a
// drifted category vocabulary fails loudly. A rename whose target already
// exists is treated as done, which keeps the step idempotent.
type RenameAndCoerce struct {
	Renames    map[string]string
	IntColumns []string
}

func (RenameAndCoerce) Name() string { return "rename_and_coerce" }

func (r RenameAndCoerce) Apply(f *domain.Frame) (*domain.Frame, error) {
	sources := make([]string, 0, len(r.Renames))
	for from := range r.Renames {
		sources = append(sources, from)
	}
	sort.Strings(sources)

	out := f
	var missing []error
	for _, from := range sources {
		to := r.Renames[from]
		switch {
		case out.Has(from):
			next, err := out.Rename(from, to)
			if err != nil {
				return nil, domain.WrapError(domain.ErrSchemaMismatch, "rename columns", err)
			}
			out = next
		case out.Has(to):
		default:
			missing = append(missing, fmt.Errorf("expected column %q (renamed to %q) was not produced", from, to))
		}
	}
	if len(missing) > 0 {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "rename columns", errors.Join(missing...))
	}

	for _, name := range r.IntColumns {
		col, ok := out.Column(name)
		if !ok {
			missing = append(missing, fmt.Errorf("expected indicator column %q is absent", name))
			continue
		}
		if !col.Kind.Numeric() {
			return nil, domain.WrapError(domain.ErrDataInvalid, "coerce columns",
				fmt.Errorf("column %q is %s, want numeric", name, col.Kind))
		}
		values := make([]float64, len(col.Values))
		for i, v := range col.Values {
			if math.IsNaN(v) {
				return nil, domain.WrapError(domain.ErrDataInvalid, "coerce columns",
					fmt.Errorf("column %q row %d: missing value", name, i))
			}
			values[i] = math.Trunc(v)
		}
		next, err := out.Replace(domain.IntColumn(name, values))
		if err != nil {
			return nil, domain.WrapError(domain.ErrSchemaMismatch, "coerce columns", err)
		}
		out = next
	}
	if len(missing) > 0 {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "coerce columns", errors.Join(missing...))
	}
	return out, nil
}

// SplitTarget separates the label column from the features.
func SplitTarget(f *domain.Frame, target string) (*domain.Frame, []float64, error) {
	col, ok := f.Column(target)
	if !ok {
		return nil, nil, domain.WrapError(domain.ErrSchemaMismatch, "split target", fmt.Errorf("target column %q not found", target))
	}
	if !col.Kind.Numeric() {
		return nil, nil, domain.WrapError(domain.ErrDataInvalid, "split target",
			fmt.Errorf("target column %q is %s, want numeric labels", target, col.Kind))
	}
	labels := append([]float64(nil), col.Values...)
	for i, v := range labels {
		if math.IsNaN(v) {
			return nil, nil, domain.WrapError(domain.ErrDataInvalid, "split target",
				fmt.Errorf("target column %q row %d: missing label", target, i))
		}
	}
	return f.Drop(target), labels, nil
}
