package domain

import (
	"errors"
	"fmt"
	"slices"
)

// Schema assigns roles to the columns of the vehicle-insurance dataset. It is
// loaded once per run and never mutated afterwards.
type Schema struct {
	NumericColumns []string
	MinMaxColumns  []string
	DropColumn     string
	TargetColumn   string

	GenderColumn  string
	GenderMapping map[string]int

	// RenameColumns maps generated dummy column names to identifier-safe names.
	RenameColumns map[string]string
	// IntColumns must exist after renaming and are cast to integers.
	IntColumns []string
}

func DefaultGenderMapping() map[string]int {
	return map[string]int{"Female": 0, "Male": 1}
}

func DefaultRenameColumns() map[string]string {
	return map[string]string{
		"Vehicle_Age_< 1 Year":  "Vehicle_Age_lt_1_Year",
		"Vehicle_Age_> 2 Years": "Vehicle_Age_gt_2_Years",
	}
}

func DefaultIntColumns() []string {
	return []string{"Vehicle_Age_lt_1_Year", "Vehicle_Age_gt_2_Years", "Vehicle_Damage_Yes"}
}

func (s Schema) Validate() error {
	var errs []error
	if s.TargetColumn == "" {
		errs = append(errs, errors.New("target column is empty"))
	}
	if s.GenderColumn == "" {
		errs = append(errs, errors.New("gender column is empty"))
	}
	if len(s.GenderMapping) == 0 {
		errs = append(errs, errors.New("gender mapping is empty"))
	}
	seen := make(map[string]string)
	for _, group := range []struct {
		name string
		cols []string
	}{{"num_features", s.NumericColumns}, {"mm_columns", s.MinMaxColumns}} {
		for _, col := range group.cols {
			if prev, ok := seen[col]; ok {
				errs = append(errs, fmt.Errorf("column %q listed in both %s and %s", col, prev, group.name))
				continue
			}
			seen[col] = group.name
		}
	}
	if _, ok := seen[s.TargetColumn]; ok && s.TargetColumn != "" {
		errs = append(errs, fmt.Errorf("target column %q cannot be scaled", s.TargetColumn))
	}
	if s.DropColumn != "" && s.DropColumn == s.TargetColumn {
		errs = append(errs, fmt.Errorf("drop column %q is the target column", s.DropColumn))
	}
	if slices.Contains(s.NumericColumns, s.DropColumn) || slices.Contains(s.MinMaxColumns, s.DropColumn) {
		errs = append(errs, fmt.Errorf("drop column %q cannot be scaled", s.DropColumn))
	}
	if len(errs) > 0 {
		return WrapError(ErrSchemaMismatch, "validate schema", errors.Join(errs...))
	}
	return nil
}
