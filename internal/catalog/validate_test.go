package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

func step(id string, metrics ...domain.MetricDef) domain.StepDescriptor {
	return domain.StepDescriptor{
		ID:              id,
		Name:            "Step " + id,
		NominalDuration: time.Second,
		Details:         metrics,
	}
}

func TestValidate_EmptyCatalog(t *testing.T) {
	tests := []struct {
		name  string
		steps []domain.StepDescriptor
	}{
		{name: "nil steps", steps: nil},
		{name: "empty steps", steps: []domain.StepDescriptor{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.steps); !errors.Is(err, ErrEmptyCatalog) {
				t.Errorf("expected ErrEmptyCatalog, got %v", err)
			}
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		steps   []domain.StepDescriptor
		wantErr error
		stepID  string
	}{
		{
			name:    "empty id",
			steps:   []domain.StepDescriptor{step("")},
			wantErr: ErrEmptyStepID,
		},
		{
			name:    "duplicate id",
			steps:   []domain.StepDescriptor{step("a"), step("a")},
			wantErr: ErrDuplicateStepID,
			stepID:  "a",
		},
		{
			name: "empty name",
			steps: []domain.StepDescriptor{
				{ID: "a", NominalDuration: time.Second},
			},
			wantErr: ErrEmptyName,
			stepID:  "a",
		},
		{
			name: "zero duration",
			steps: []domain.StepDescriptor{
				{ID: "a", Name: "A"},
			},
			wantErr: ErrInvalidDuration,
			stepID:  "a",
		},
		{
			name:    "metric without name",
			steps:   []domain.StepDescriptor{step("a", domain.MetricDef{Total: 3})},
			wantErr: ErrInvalidMetric,
			stepID:  "a",
		},
		{
			name:    "negative total",
			steps:   []domain.StepDescriptor{step("a", domain.MetricDef{Name: "pages", Total: -1})},
			wantErr: ErrInvalidMetric,
			stepID:  "a",
		},
		{
			name: "duplicate metric",
			steps: []domain.StepDescriptor{step("a",
				domain.MetricDef{Name: "pages", Total: 1},
				domain.MetricDef{Name: "pages", Total: 2},
			)},
			wantErr: ErrDuplicateMetric,
			stepID:  "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.steps)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if vErr.StepID != tt.stepID {
				t.Errorf("expected step ID %q, got %q", tt.stepID, vErr.StepID)
			}
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	steps := []domain.StepDescriptor{
		step("a", domain.MetricDef{Name: "pages", Total: 45}),
		step("b"),
		step("c", domain.MetricDef{Name: "zero", Total: 0}),
	}

	if err := Validate(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("a", "id", "boom", ErrEmptyStepID)
	if err.Error() != "step a: boom" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	err = NewValidationError("", "id", "boom", ErrEmptyStepID)
	if err.Error() != "boom" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
