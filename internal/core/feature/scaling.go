package feature

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

var ErrNotFitted = errors.New("scaling plan is not fitted")

// ScalingPlan is a column-wise transformer with three branches: standardize
// StandardColumns, min-max normalize MinMaxColumns, pass the rest through.
// Output columns are standardized first, then min-max, then passthrough in
// their input order.
//
// Fields are exported so the plan can be persisted and reloaded for serving.
type ScalingPlan struct {
	StandardColumns []string
	MinMaxColumns   []string

	// Learned by Fit.
	PassthroughColumns []string
	Means              []float64
	Scales             []float64
	Mins               []float64
	Ranges             []float64
	IsFitted           bool
}

// NewScalingPlan composes an unfitted plan from the schema column groups.
func NewScalingPlan(schema domain.Schema) (*ScalingPlan, error) {
	for _, col := range schema.NumericColumns {
		if slices.Contains(schema.MinMaxColumns, col) {
			return nil, domain.WrapError(domain.ErrSchemaMismatch, "compose scaling plan",
				fmt.Errorf("column %q is in both standard and min-max groups", col))
		}
	}
	return &ScalingPlan{
		StandardColumns: append([]string(nil), schema.NumericColumns...),
		MinMaxColumns:   append([]string(nil), schema.MinMaxColumns...),
	}, nil
}

func (p *ScalingPlan) Fitted() bool { return p.IsFitted }

// OutputColumns lists the matrix column names produced by Transform.
func (p *ScalingPlan) OutputColumns() []string {
	out := make([]string, 0, len(p.StandardColumns)+len(p.MinMaxColumns)+len(p.PassthroughColumns))
	out = append(out, p.StandardColumns...)
	out = append(out, p.MinMaxColumns...)
	return append(out, p.PassthroughColumns...)
}

// Fit learns mean/std for the standard group and min/range for the min-max
// group. NaN values are ignored while fitting.
func (p *ScalingPlan) Fit(f *domain.Frame) error {
	passthrough, err := p.resolve(f)
	if err != nil {
		return err
	}

	means := make([]float64, len(p.StandardColumns))
	scales := make([]float64, len(p.StandardColumns))
	for i, name := range p.StandardColumns {
		col, _ := f.Column(name)
		mean, std := stat.PopMeanStdDev(present(col.Values), nil)
		if math.IsNaN(mean) {
			mean = 0
		}
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		means[i], scales[i] = mean, std
	}

	mins := make([]float64, len(p.MinMaxColumns))
	ranges := make([]float64, len(p.MinMaxColumns))
	for i, name := range p.MinMaxColumns {
		col, _ := f.Column(name)
		vals := present(col.Values)
		if len(vals) == 0 {
			mins[i], ranges[i] = 0, 1
			continue
		}
		lo, hi := floats.Min(vals), floats.Max(vals)
		rng := hi - lo
		if rng == 0 {
			rng = 1
		}
		mins[i], ranges[i] = lo, rng
	}

	p.PassthroughColumns = passthrough
	p.Means, p.Scales = means, scales
	p.Mins, p.Ranges = mins, ranges
	p.IsFitted = true
	return nil
}

// Transform applies the learned statistics without refitting.
func (p *ScalingPlan) Transform(f *domain.Frame) (*mat.Dense, error) {
	if !p.IsFitted {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "apply scaling plan", ErrNotFitted)
	}
	passthrough, err := p.resolve(f)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(passthrough, p.PassthroughColumns) {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "apply scaling plan",
			fmt.Errorf("passthrough columns %v differ from fitted %v", passthrough, p.PassthroughColumns))
	}

	rows, width := f.Rows(), len(p.OutputColumns())
	if rows == 0 || width == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(rows, width, nil)
	j := 0
	for i, name := range p.StandardColumns {
		col, _ := f.Column(name)
		for r, v := range col.Values {
			out.Set(r, j, (v-p.Means[i])/p.Scales[i])
		}
		j++
	}
	for i, name := range p.MinMaxColumns {
		col, _ := f.Column(name)
		for r, v := range col.Values {
			out.Set(r, j, (v-p.Mins[i])/p.Ranges[i])
		}
		j++
	}
	for _, name := range p.PassthroughColumns {
		col, _ := f.Column(name)
		out.SetCol(j, col.Values)
		j++
	}
	return out, nil
}

// FitTransform fits fresh statistics on f and transforms it in one call.
// Calling it on another frame refits; nothing from a previous fit is reused.
func (p *ScalingPlan) FitTransform(f *domain.Frame) (*mat.Dense, error) {
	if err := p.Fit(f); err != nil {
		return nil, err
	}
	return p.Transform(f)
}

// resolve checks that every named column exists and is numeric, and returns
// the remaining columns in frame order.
func (p *ScalingPlan) resolve(f *domain.Frame) ([]string, error) {
	var missing []error
	for _, name := range slices.Concat(p.StandardColumns, p.MinMaxColumns) {
		if !f.Has(name) {
			missing = append(missing, fmt.Errorf("column %q not found", name))
		}
	}
	if len(missing) > 0 {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "resolve scaling columns", errors.Join(missing...))
	}

	var passthrough []string
	for _, col := range f.Columns() {
		if !col.Kind.Numeric() {
			return nil, domain.WrapError(domain.ErrDataInvalid, "resolve scaling columns",
				fmt.Errorf("column %q is %s, want numeric", col.Name, col.Kind))
		}
		if slices.Contains(p.StandardColumns, col.Name) || slices.Contains(p.MinMaxColumns, col.Name) {
			continue
		}
		passthrough = append(passthrough, col.Name)
	}
	return passthrough, nil
}

func present(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
