package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"erevent/internal/apperr"
	"erevent/internal/registry"
)

// Notifier pushes rendezvous information to the target device. Without this
// push the receiver has no way to learn a transfer exists.
type Notifier interface {
	NotifyTransfer(ctx context.Context, target registry.Device, sourceIP string, task Task) error
}

// Coordinator mediates transfer handshakes. It validates endpoints against the
// registry, owns the task table, and never touches file bytes.
type Coordinator struct {
	reg      *registry.Registry
	notifier Notifier

	mu    sync.Mutex
	tasks map[string]*Task

	pendingTTL time.Duration
	now        func() time.Time
}

// New builds a coordinator over the given registry. pendingTTL bounds how long
// a pending task may sit with no status change before it expires to failed.
func New(reg *registry.Registry, notifier Notifier, pendingTTL time.Duration) *Coordinator {
	return &Coordinator{
		reg:        reg,
		notifier:   notifier,
		tasks:      make(map[string]*Task),
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

// SetClock replaces the coordinator clock. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// InitTransfer validates both endpoints, records a pending task and pushes the
// rendezvous info to the target. The push is part of the contract: a failed
// push fails the task and the caller gets TargetUnreachable.
func (c *Coordinator) InitTransfer(ctx context.Context, fromID, toID string, file FileInfo) (string, error) {
	const op = "coordinator.InitTransfer"

	if fromID == "" || toID == "" {
		return "", apperr.New(apperr.Validation, op, "from_device and to_device are required")
	}
	if file.Filename == "" || file.Size <= 0 {
		return "", apperr.New(apperr.Validation, op, "file_info needs a filename and a positive size")
	}
	if file.ReceivePort <= 0 || file.ReceivePort > 65535 {
		return "", apperr.New(apperr.Validation, op, "invalid receive_port %d", file.ReceivePort)
	}

	source, err := c.reg.Get(fromID)
	if err != nil {
		return "", err
	}
	target, err := c.reg.Get(toID)
	if err != nil {
		return "", err
	}
	if !c.reg.Online(toID) {
		return "", apperr.New(apperr.TargetUnreachable, op, "device %q is offline", toID)
	}

	task := c.createTask(fromID, toID, file)

	if err := c.notifier.NotifyTransfer(ctx, target, source.Address, task); err != nil {
		c.failTask(task.ID, ReasonUnreachable)
		log.Warn().Err(err).Str("transfer_id", task.ID).Str("to_device", toID).
			Msg("rendezvous push failed")
		return "", apperr.Wrap(apperr.TargetUnreachable, op, err,
			"could not deliver rendezvous to %q", toID)
	}

	log.Info().Str("transfer_id", task.ID).Str("from", fromID).Str("to", toID).
		Str("filename", file.Filename).Int64("size", file.Size).
		Msg("transfer initialized")
	return task.ID, nil
}

// ReportStatus advances a task. Either endpoint may call it; the coordinator
// enforces the monotonic ordering and keeps terminal states sticky.
func (c *Coordinator) ReportStatus(id string, status Status, reason string) error {
	const op = "coordinator.ReportStatus"

	if !status.Known() {
		return apperr.New(apperr.Validation, op, "unknown status %q", status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[id]
	if !ok {
		return apperr.New(apperr.NotFound, op, "unknown transfer %q", id)
	}
	c.expireLocked(task)

	if statusRank[status] < statusRank[task.Status] || (task.Status.Terminal() && status != task.Status) {
		return apperr.New(apperr.Validation, op,
			"transfer %q cannot move %s -> %s", id, task.Status, status)
	}

	task.Status = status
	if reason != "" {
		task.Reason = reason
	}
	task.UpdatedAt = c.now()

	log.Info().Str("transfer_id", id).Str("status", string(status)).Str("reason", reason).
		Msg("transfer status reported")
	return nil
}

// GetStatus returns the last-written task record. Pending tasks past the TTL
// are expired to failed/timeout here, on read, mirroring the registry's lazy
// liveness evaluation.
func (c *Coordinator) GetStatus(id string) (Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[id]
	if !ok {
		return Task{}, apperr.New(apperr.NotFound, "coordinator.GetStatus", "unknown transfer %q", id)
	}
	c.expireLocked(task)
	return *task, nil
}

// Len returns the number of tracked tasks.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// PruneTerminal drops terminal tasks older than age. Housekeeping; the task
// table is process-lifetime only and this keeps it bounded.
func (c *Coordinator) PruneTerminal(age time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, task := range c.tasks {
		c.expireLocked(task)
		if task.Status.Terminal() && now.Sub(task.UpdatedAt) > age {
			delete(c.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("pruned terminal transfers")
	}
	return removed
}

func (c *Coordinator) createTask(fromID, toID string, file FileInfo) Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	id := fmt.Sprintf("%s-%s-%d", fromID, toID, now.UnixNano())
	if _, taken := c.tasks[id]; taken {
		id = fmt.Sprintf("%s-%s", id, uuid.NewString()[:8])
	}

	task := &Task{
		ID:         id,
		FromDevice: fromID,
		ToDevice:   toID,
		File:       file,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.tasks[id] = task
	return *task
}

func (c *Coordinator) failTask(id, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[id]
	if !ok || task.Status.Terminal() {
		return
	}
	task.Status = StatusFailed
	task.Reason = reason
	task.UpdatedAt = c.now()
}

// expireLocked flips a stale pending task to failed/timeout. Caller holds mu.
func (c *Coordinator) expireLocked(task *Task) {
	if task.Status != StatusPending {
		return
	}
	if c.now().Sub(task.UpdatedAt) < c.pendingTTL {
		return
	}
	task.Status = StatusFailed
	task.Reason = ReasonTimeout
	task.UpdatedAt = c.now()
	log.Warn().Str("transfer_id", task.ID).Msg("pending transfer expired")
}
