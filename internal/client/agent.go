package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"erevent/internal/apperr"
	"erevent/internal/config"
	"erevent/internal/coordinator"
	"erevent/internal/discovery"
	"erevent/internal/registry"
	"erevent/internal/transfer"
)

// Agent is one device's view of the system: a process-lifetime identity, a
// connection to the discovered coordinator, a heartbeat loop and the notify
// listener the coordinator pushes transfers to.
type Agent struct {
	id           string
	name         string
	downloadDir  string
	showProgress bool

	api    *API
	notify *notifyListener
}

// NewAgent creates an agent with a fresh uuid identity held for the process
// lifetime.
func NewAgent(name, downloadDir string, showProgress bool) *Agent {
	return &Agent{
		id:           uuid.NewString(),
		name:         name,
		downloadDir:  downloadDir,
		showProgress: showProgress,
	}
}

// ID returns the device id.
func (a *Agent) ID() string { return a.id }

// Start discovers the coordinator, opens the notify listener, registers and
// launches the heartbeat loop. It returns once the device is registered;
// background loops stop when ctx is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	ep, err := discovery.ResolveFirst(ctx)
	if err != nil {
		return err
	}
	a.api = NewAPI(ep)

	nl, err := startNotifyListener(a, config.NotifyPort())
	if err != nil {
		return apperr.Wrap(apperr.Connectivity, "client.Start", err, "cannot open notify listener")
	}
	a.notify = nl

	if err := a.api.Register(ctx, a.id, a.name, nl.Port()); err != nil {
		nl.Shutdown(context.Background())
		return err
	}
	log.Info().Str("device_id", a.id).Str("name", a.name).Msg("registered with coordinator")

	go a.heartbeatLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		nl.Shutdown(shutdownCtx)
	}()
	return nil
}

// heartbeatLoop keeps last_seen fresh. Failures are logged and dropped: the
// next tick self-heals, and a silent device simply ages toward offline.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(config.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.api.Heartbeat(ctx, a.id); err != nil {
				log.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

// Devices lists peers known to the coordinator, excluding this agent.
func (a *Agent) Devices(ctx context.Context) (map[string]registry.View, error) {
	devices, err := a.api.Devices(ctx)
	if err != nil {
		return nil, err
	}
	delete(devices, a.id)
	return devices, nil
}

// Status fetches a transfer task from the coordinator.
func (a *Agent) Status(ctx context.Context, transferID string) (coordinator.Task, error) {
	return a.api.GetStatus(ctx, transferID)
}

// SendFile offers the file at path to the target device. The rendezvous
// listener is open before the handshake so its port rides along in file_info;
// the stream itself runs in the background and failures are reported to the
// coordinator as terminal status.
func (a *Agent) SendFile(ctx context.Context, toID, path string) (string, error) {
	session, err := transfer.OpenSendSession(path, config.AcceptTimeout())
	if err != nil {
		return "", err
	}

	transferID, err := a.api.InitTransfer(ctx, a.id, toID, coordinator.FileInfo{
		Filename:    session.Filename(),
		Size:        session.Size(),
		ReceivePort: session.Port(),
	})
	if err != nil {
		session.Close()
		return "", err
	}

	go func() {
		if err := session.Send(ctx); err != nil {
			log.Error().Err(err).Str("transfer_id", transferID).Msg("send failed")
			a.reportFailure(context.Background(), transferID, err)
		}
	}()
	return transferID, nil
}

// reportFailure marks a task failed with a reason derived from the error
// taxonomy. A report that cannot be delivered is only logged; the pending-task
// expiry on the coordinator backstops a silent failure.
func (a *Agent) reportFailure(ctx context.Context, transferID string, cause error) {
	reason := coordinator.ReasonUnreachable
	switch apperr.KindOf(cause) {
	case apperr.Timeout:
		reason = coordinator.ReasonTimeout
	case apperr.TransferIncomplete:
		reason = coordinator.ReasonIncomplete
	}
	if err := a.api.ReportStatus(ctx, transferID, coordinator.StatusFailed, reason); err != nil {
		log.Warn().Err(err).Str("transfer_id", transferID).Msg("failure report not delivered")
	}
}
