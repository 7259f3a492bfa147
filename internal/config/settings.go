package config

import (
	"os"
	"path/filepath"
	"time"
)

// Environment keys understood by erevent. Every value has a usable default so a
// bare binary works on a LAN with no configuration at all.
const (
	EnvHTTPPort          = "EREVENT_HTTP_PORT"
	EnvLivenessTimeout   = "EREVENT_LIVENESS_TIMEOUT"
	EnvHeartbeatInterval = "EREVENT_HEARTBEAT_INTERVAL"
	EnvPendingTTL        = "EREVENT_PENDING_TTL"
	EnvAcceptTimeout     = "EREVENT_ACCEPT_TIMEOUT"
	EnvDialTimeout       = "EREVENT_DIAL_TIMEOUT"
	EnvNotifyTimeout     = "EREVENT_NOTIFY_TIMEOUT"
	EnvDeviceName        = "EREVENT_DEVICE_NAME"
	EnvDownloadDir       = "EREVENT_DOWNLOAD_DIR"
	EnvNotifyPort        = "EREVENT_NOTIFY_PORT"
)

// HTTPPort is the coordinator API port, also announced over zeroconf.
func HTTPPort() int { return Int(EnvHTTPPort, 5000) }

// LivenessTimeout is the window after which a silent device reads as offline.
func LivenessTimeout() time.Duration { return Duration(EnvLivenessTimeout, 60*time.Second) }

// HeartbeatInterval is the client heartbeat period, kept well under the
// liveness timeout so one lost heartbeat does not flip a device offline.
func HeartbeatInterval() time.Duration { return Duration(EnvHeartbeatInterval, 30*time.Second) }

// PendingTTL bounds how long a pending transfer may sit with no status change.
func PendingTTL() time.Duration { return Duration(EnvPendingTTL, 2*time.Minute) }

// AcceptTimeout bounds the sender's wait for the receiver to dial in.
func AcceptTimeout() time.Duration { return Duration(EnvAcceptTimeout, 45*time.Second) }

// DialTimeout bounds the receiver's connect to the sender rendezvous.
func DialTimeout() time.Duration { return Duration(EnvDialTimeout, 10*time.Second) }

// NotifyTimeout bounds the coordinator's push to a target device.
func NotifyTimeout() time.Duration { return Duration(EnvNotifyTimeout, 5*time.Second) }

// NotifyPort is the client notify listener port; 0 picks an ephemeral port.
func NotifyPort() int { return Int(EnvNotifyPort, 0) }

// DeviceName is the human label sent at registration.
func DeviceName() string {
	if name := String(EnvDeviceName, ""); name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "erevent-device"
	}
	return hostname
}

// DownloadDir is where received files land.
func DownloadDir() string {
	if dir := String(EnvDownloadDir, ""); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}
