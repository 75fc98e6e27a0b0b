package breaker

import (
	"testing"
	"time"
)

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		recovery  time.Duration
		wantErr   bool
	}{
		{"valid config", 5, 30 * time.Second, false},
		{"zero threshold", 0, 30 * time.Second, true},
		{"negative threshold", -1, 30 * time.Second, true},
		{"zero recovery", 5, 0, true},
		{"negative recovery", 5, -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.threshold, tt.recovery)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRegistry(%d, %v) error = %v, wantErr %v",
					tt.threshold, tt.recovery, err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_StartsClosed(t *testing.T) {
	reg, err := NewRegistry(3, 30*time.Second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if state := reg.State("api.example.com"); state != StateClosed {
		t.Errorf("State = %v, want %v for never-seen endpoint", state, StateClosed)
	}
	if !reg.Allow("api.example.com") {
		t.Error("Allow = false, want true for never-seen endpoint")
	}
}

func TestRegistry_OpensAtThreshold(t *testing.T) {
	reg, err := NewRegistry(3, 30*time.Second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	endpoint := "api.example.com"

	// Available for the first threshold-1 failures.
	for i := 0; i < 2; i++ {
		reg.RecordFailure(endpoint)
		if !reg.Allow(endpoint) {
			t.Fatalf("Allow = false after %d failures, want true below threshold", i+1)
		}
	}

	// Unavailable immediately on the threshold-th failure.
	reg.RecordFailure(endpoint)
	if reg.Allow(endpoint) {
		t.Error("Allow = true after threshold failures, want false")
	}
	if state := reg.State(endpoint); state != StateOpen {
		t.Errorf("State = %v, want %v", state, StateOpen)
	}
}

func TestRegistry_SuccessResetsFailures(t *testing.T) {
	reg, err := NewRegistry(3, 30*time.Second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	endpoint := "api.example.com"

	reg.RecordFailure(endpoint)
	reg.RecordFailure(endpoint)
	reg.RecordSuccess(endpoint)

	if count := reg.FailureCount(endpoint); count != 0 {
		t.Errorf("FailureCount = %d after success, want 0", count)
	}

	// Counter restarted: two more failures must not open the circuit.
	reg.RecordFailure(endpoint)
	reg.RecordFailure(endpoint)
	if !reg.Allow(endpoint) {
		t.Error("Allow = false, want true (failure count was reset)")
	}
}

func TestRegistry_HalfOpenAfterRecovery(t *testing.T) {
	reg, err := NewRegistry(1, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	endpoint := "api.example.com"

	reg.RecordFailure(endpoint)
	if reg.Allow(endpoint) {
		t.Fatal("Allow = true for open circuit, want false")
	}

	time.Sleep(70 * time.Millisecond)

	if state := reg.State(endpoint); state != StateHalfOpen {
		t.Errorf("State = %v after recovery timeout, want %v", state, StateHalfOpen)
	}
	if !reg.Allow(endpoint) {
		t.Error("Allow = false for half-open circuit, want true (probe allowed)")
	}
}

func TestRegistry_SuccessfulProbeCloses(t *testing.T) {
	reg, err := NewRegistry(1, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	endpoint := "api.example.com"

	reg.RecordFailure(endpoint)
	time.Sleep(70 * time.Millisecond)
	if state := reg.State(endpoint); state != StateHalfOpen {
		t.Fatalf("State = %v, want %v", state, StateHalfOpen)
	}

	reg.RecordSuccess(endpoint)

	if state := reg.State(endpoint); state != StateClosed {
		t.Errorf("State = %v after probe success, want %v", state, StateClosed)
	}
	if count := reg.FailureCount(endpoint); count != 0 {
		t.Errorf("FailureCount = %d after probe success, want 0", count)
	}
}

func TestRegistry_FailedProbeReopens(t *testing.T) {
	reg, err := NewRegistry(2, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	endpoint := "api.example.com"

	reg.RecordFailure(endpoint)
	reg.RecordFailure(endpoint)
	time.Sleep(70 * time.Millisecond)
	if state := reg.State(endpoint); state != StateHalfOpen {
		t.Fatalf("State = %v, want %v", state, StateHalfOpen)
	}

	// One failed probe is enough to reopen, even below the threshold.
	reg.RecordFailure(endpoint)

	if state := reg.State(endpoint); state != StateOpen {
		t.Errorf("State = %v after failed probe, want %v", state, StateOpen)
	}
}

func TestRegistry_EndpointsAreIndependent(t *testing.T) {
	reg, err := NewRegistry(1, 30*time.Second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	reg.RecordFailure("bad.example.com")

	if reg.Allow("bad.example.com") {
		t.Error("Allow = true for failed endpoint, want false")
	}
	if !reg.Allow("good.example.com") {
		t.Error("Allow = false for healthy endpoint, want true")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
