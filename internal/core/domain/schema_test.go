package domain

import (
	"strings"
	"testing"
)

func validSchema() Schema {
	return Schema{
		NumericColumns: []string{"Age", "Vintage"},
		MinMaxColumns:  []string{"Annual_Premium"},
		DropColumn:     "id",
		TargetColumn:   "Response",
		GenderColumn:   "Gender",
		GenderMapping:  DefaultGenderMapping(),
		RenameColumns:  DefaultRenameColumns(),
		IntColumns:     DefaultIntColumns(),
	}
}

func TestSchemaValidateAcceptsDefaults(t *testing.T) {
	if err := validSchema().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestSchemaValidateRejections(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Schema)
		want   string
	}{
		"overlap": {
			mutate: func(s *Schema) { s.MinMaxColumns = append(s.MinMaxColumns, "Age") },
			want:   `column "Age" listed in both num_features and mm_columns`,
		},
		"scaled target": {
			mutate: func(s *Schema) { s.NumericColumns = append(s.NumericColumns, "Response") },
			want:   "cannot be scaled",
		},
		"empty target": {
			mutate: func(s *Schema) { s.TargetColumn = "" },
			want:   "target column is empty",
		},
		"drop target": {
			mutate: func(s *Schema) { s.DropColumn = "Response" },
			want:   "is the target column",
		},
		"empty mapping": {
			mutate: func(s *Schema) { s.GenderMapping = nil },
			want:   "gender mapping is empty",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := validSchema()
			tc.mutate(&s)
			err := s.Validate()
			if !IsKind(err, ErrSchemaMismatch) {
				t.Fatalf("expected ErrSchemaMismatch, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}
