package release

import (
	"errors"
	"fmt"
	"testing"
)

func TestNoPreviousStateErrorClassification(t *testing.T) {
	err := fmt.Errorf("rollback staging: %w", &NoPreviousStateError{Environment: "staging"})
	if !errors.Is(err, ErrStateInconsistency) {
		t.Error("NoPreviousStateError should classify as a state inconsistency")
	}
	var npse *NoPreviousStateError
	if !errors.As(err, &npse) || npse.Environment != "staging" {
		t.Errorf("errors.As failed: %v", err)
	}
}

func TestApplyErrorClassification(t *testing.T) {
	cause := errors.New("deployment degraded")
	err := &ApplyError{
		ReleaseID: "rel-1",
		Resource:  "deployment/web/api",
		Applied:   []string{"configmap/web/api-config"},
		Cause:     cause,
	}
	if !errors.Is(err, ErrApplyFailed) {
		t.Error("ApplyError should classify as an apply failure")
	}
	if !errors.Is(err, cause) {
		t.Error("ApplyError should preserve its cause")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("ApplyError must not classify as a validation error")
	}
}
