package coordinator

import "time"

// Status is a transfer task lifecycle state. Transitions are monotonic:
// pending -> in_progress -> completed/failed, never backwards.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Failure reasons recorded alongside StatusFailed.
const (
	ReasonTimeout     = "timeout"
	ReasonIncomplete  = "incomplete"
	ReasonUnreachable = "unreachable"
)

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// Known reports whether s is a valid task status.
func (s Status) Known() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether s allows no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FileInfo describes the file being offered and the rendezvous port the sender
// is already listening on.
type FileInfo struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ReceivePort int    `json:"receive_port"`
}

// Task is the coordinator's record of one handshake. The coordinator is the
// single source of truth for Status; peers poll, they never cache it.
type Task struct {
	ID         string    `json:"transfer_id"`
	FromDevice string    `json:"from_device"`
	ToDevice   string    `json:"to_device"`
	File       FileInfo  `json:"file_info"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
