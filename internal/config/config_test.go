package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	if got := HTTPPort(); got != 5000 {
		t.Errorf("default HTTP port = %d, want 5000", got)
	}
	if got := LivenessTimeout(); got != 60*time.Second {
		t.Errorf("default liveness timeout = %s, want 60s", got)
	}
	if got := HeartbeatInterval(); got != 30*time.Second {
		t.Errorf("default heartbeat interval = %s, want 30s", got)
	}
	if got := PendingTTL(); got != 2*time.Minute {
		t.Errorf("default pending TTL = %s, want 2m", got)
	}
	// One lost heartbeat must not flip a device offline.
	if 2*HeartbeatInterval() > LivenessTimeout() {
		t.Error("heartbeat interval too close to the liveness timeout")
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv(EnvHTTPPort, "6001")
	t.Setenv(EnvLivenessTimeout, "90s")
	t.Setenv(EnvDeviceName, "bench-box")

	if got := HTTPPort(); got != 6001 {
		t.Errorf("HTTP port override = %d, want 6001", got)
	}
	if got := LivenessTimeout(); got != 90*time.Second {
		t.Errorf("liveness override = %s, want 90s", got)
	}
	if got := DeviceName(); got != "bench-box" {
		t.Errorf("device name override = %q", got)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv(EnvHTTPPort, "not-a-number")
	t.Setenv(EnvPendingTTL, "soon")

	if got := HTTPPort(); got != 5000 {
		t.Errorf("invalid port should fall back, got %d", got)
	}
	if got := PendingTTL(); got != 2*time.Minute {
		t.Errorf("invalid duration should fall back, got %s", got)
	}
}
