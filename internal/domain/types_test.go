package domain

import "testing"

// TestValidTransitionEdges checks the allowed state machine edges.
func TestValidTransitionEdges(t *testing.T) {
	allowed := [][2]JobStatus{
		{JobStatusNew, JobStatusRunning},
		{JobStatusRunning, JobStatusDone},
		{JobStatusRunning, JobStatusFailed},
		{JobStatusDone, JobStatusNew},
		{JobStatusFailed, JobStatusNew},
	}
	for _, edge := range allowed {
		if !ValidTransition(edge[0], edge[1]) {
			t.Errorf("ValidTransition(%s, %s) = false, want true", edge[0], edge[1])
		}
	}

	denied := [][2]JobStatus{
		{JobStatusNew, JobStatusDone},
		{JobStatusNew, JobStatusFailed},
		{JobStatusDone, JobStatusRunning},
		{JobStatusFailed, JobStatusRunning},
		{JobStatusDone, JobStatusFailed},
		{JobStatusRunning, JobStatusNew},
	}
	for _, edge := range denied {
		if ValidTransition(edge[0], edge[1]) {
			t.Errorf("ValidTransition(%s, %s) = true, want false", edge[0], edge[1])
		}
	}
}

// TestTerminal verifies which statuses end the lifecycle.
func TestTerminal(t *testing.T) {
	if Terminal(JobStatusNew) || Terminal(JobStatusRunning) {
		t.Fatal("NEW and RUNNING must not be terminal")
	}
	if !Terminal(JobStatusDone) || !Terminal(JobStatusFailed) {
		t.Fatal("DONE and FAILED must be terminal")
	}
}

// TestValidationError checks message formatting and detection.
func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "podcast", Message: "must not be empty"}
	if err.Error() != "invalid submission: podcast: must not be empty" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !IsValidation(err) {
		t.Fatal("IsValidation should detect ValidationError")
	}
	if IsValidation(ErrNotFound) {
		t.Fatal("IsValidation should reject other errors")
	}
}
