package model

import (
	"encoding/json"
	"regexp"
	"testing"
)

// lowerCrockford matches lowercase ULID strings (26 chars, Crockford Base32 alphabet).
var lowerCrockford = regexp.MustCompile(`^[0123456789abcdefghjkmnpqrstvwxyz]{26}$`)

func TestNewWorkerIDFormat(t *testing.T) {
	id := NewWorkerID()
	if !lowerCrockford.MatchString(id) {
		t.Errorf("NewWorkerID() = %q, does not match lowercase ULID format", id)
	}
}

func TestNewWorkerIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewWorkerID()
		if seen[id] {
			t.Fatalf("NewWorkerID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestStatusConstants(t *testing.T) {
	statuses := []struct {
		constant string
		expected string
	}{
		{StatusScheduling, "scheduling"},
		{StatusRunning, "running"},
		{StatusSucceeded, "succeeded"},
		{StatusFailed, "failed"},
		{StatusTimedOut, "timedout"},
		{StatusStopped, "stopped"},
	}
	for _, s := range statuses {
		if s.constant != s.expected {
			t.Errorf("status constant = %q, want %q", s.constant, s.expected)
		}
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusScheduling, StatusRunning, true},
		{StatusScheduling, StatusStopped, true},
		{StatusScheduling, StatusSucceeded, false},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusTimedOut, true},
		{StatusRunning, StatusScheduling, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusStopped, StatusRunning, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusSucceeded, StatusFailed, StatusTimedOut, StatusStopped} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = false, want true", s)
		}
	}
	for _, s := range []string{StatusScheduling, StatusRunning, StatusUnknown, ""} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = true, want false", s)
		}
	}
	if IsFailure(StatusSucceeded) {
		t.Error("IsFailure(succeeded) = true, want false")
	}
}

func TestWorkerReachable(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"", false},
		{UnknownIPAddress, false},
		{"10.0.0.7", true},
	}
	for _, tt := range tests {
		w := Worker{ID: "w1", Status: StatusRunning, IPAddress: tt.ip}
		if got := w.Reachable(); got != tt.want {
			t.Errorf("Worker{IPAddress: %q}.Reachable() = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestLaunchResultDecodesErrorPayload(t *testing.T) {
	body := `[{"id":"abc","status":"scheduling"},{"message":"quota exceeded","engine_id":"e-2"}]`

	var results []LaunchResult
	if err := json.Unmarshal([]byte(body), &results); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].OK() || results[0].Status != StatusScheduling {
		t.Errorf("results[0] = %+v, want ok scheduling worker", results[0])
	}
	if results[1].OK() {
		t.Error("results[1].OK() = true, want false")
	}
	if results[1].Message != "quota exceeded" || results[1].EngineID != "e-2" {
		t.Errorf("results[1] payload = {%q, %q}", results[1].Message, results[1].EngineID)
	}
}
