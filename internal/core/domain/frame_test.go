package domain

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := NewFrame(
		IntColumn("id", []float64{1, 2, 3}),
		StringColumn("Gender", []string{"Male", "", "Female"}),
		FloatColumn("Annual_Premium", []float64{1.5, math.NaN(), 30000}),
		BoolColumn("Vehicle_Damage_Yes", []float64{1, 0, math.NaN()}),
	)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	return f
}

func TestNewFrameRejectsRaggedAndDuplicateColumns(t *testing.T) {
	if _, err := NewFrame(IntColumn("a", []float64{1}), IntColumn("b", []float64{1, 2})); err == nil {
		t.Fatalf("expected row count mismatch error")
	}
	if _, err := NewFrame(IntColumn("a", []float64{1}), StringColumn("a", []string{"x"})); err == nil {
		t.Fatalf("expected duplicate column error")
	}
}

func TestFrameDropRenameReplaceKeepReceiver(t *testing.T) {
	f := sampleFrame(t)

	dropped := f.Drop("id")
	if slices.Contains(dropped.Names(), "id") || !f.Has("id") {
		t.Fatalf("Drop must not mutate the receiver: %v / %v", dropped.Names(), f.Names())
	}
	if f.Drop("absent") != f {
		t.Fatalf("dropping an absent column should return the same frame")
	}

	renamed, err := f.Rename("Gender", "Sex")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if renamed.Index("Sex") != 1 || !f.Has("Gender") {
		t.Fatalf("unexpected rename result %v", renamed.Names())
	}
	if _, err := f.Rename("Gender", "id"); err == nil {
		t.Fatalf("expected collision error")
	}

	replaced, err := f.Replace(IntColumn("Gender", []float64{1, 0, 0}))
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if col, _ := replaced.Column("Gender"); col.Kind != KindInt || replaced.Index("Gender") != 1 {
		t.Fatalf("unexpected replaced column %+v", col)
	}
	if _, err := f.Replace(IntColumn("Gender", []float64{1})); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}

func TestFrameTakeReordersRows(t *testing.T) {
	taken := sampleFrame(t).Take([]int{2, 0})
	if taken.Rows() != 2 || taken.Width() != 4 {
		t.Fatalf("unexpected shape %dx%d", taken.Rows(), taken.Width())
	}
	ids, _ := taken.Column("id")
	gender, _ := taken.Column("Gender")
	if !slices.Equal(ids.Values, []float64{3, 1}) || !slices.Equal(gender.Labels, []string{"Female", "Male"}) {
		t.Fatalf("unexpected rows %v %v", ids.Values, gender.Labels)
	}
}

func TestFrameRecordsRenderMissingAsEmpty(t *testing.T) {
	records := sampleFrame(t).Records()
	want := [][]string{
		{"id", "Gender", "Annual_Premium", "Vehicle_Damage_Yes"},
		{"1", "Male", "1.5", "true"},
		{"2", "", "", "false"},
		{"3", "Female", "30000", ""},
	}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i := range want {
		if !slices.Equal(records[i], want[i]) {
			t.Fatalf("record %d = %v, want %v", i, records[i], want[i])
		}
	}
}

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("column \"Age\" not found")
	err := WrapError(ErrSchemaMismatch, "scale features", cause)
	if !IsKind(err, ErrSchemaMismatch) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause in chain: %v", err)
	}
	if WrapError(ErrIO, "noop", nil) != nil {
		t.Fatalf("nil cause must stay nil")
	}
}

func TestValidationErrorMessageIsVerbatim(t *testing.T) {
	err := error(&ValidationError{Message: "dataset drift detected"})
	if err.Error() != "dataset drift detected" || !IsKind(err, ErrValidationFailed) {
		t.Fatalf("unexpected validation error %v", err)
	}
}

// failAt returns the expected wrap location and the wrapped error.
func failAt() (string, error) {
	_, file, line, _ := runtime.Caller(0)
	return fmt.Sprintf("%s:%d", filepath.Base(file), line+2),
		WrapError(ErrDataInvalid, "coerce", errors.New("bad value"))
}

func TestStageErrorUsesWrapSite(t *testing.T) {
	want, cause := failAt()
	err := NewStageError("coerce", fmt.Errorf("outer: %w", cause))
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T", err)
	}
	if stageErr.Location != want {
		t.Fatalf("expected location %q, got %q", want, stageErr.Location)
	}
	if cause.Error() != "coerce: invalid data: bad value" {
		t.Fatalf("unexpected message %q", cause.Error())
	}
}

func TestStageErrorRecordsLocation(t *testing.T) {
	err := NewStageError("expand_dummies", ErrDataInvalid)
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T", err)
	}
	if !strings.HasPrefix(stageErr.Location, "frame_test.go:") {
		t.Fatalf("unexpected location %q", stageErr.Location)
	}
	if !IsKind(err, ErrDataInvalid) {
		t.Fatalf("StageError must unwrap to its cause")
	}
}
