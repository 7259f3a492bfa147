package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"erevent/internal/config"
	"erevent/internal/coordinator"
	"erevent/internal/transfer"
)

// notifyListener is the small HTTP surface each client exposes so the
// coordinator can push pending transfers to it. This is the receiving half of
// the handshake: once notified, the client dials the sender directly.
type notifyListener struct {
	agent    *Agent
	listener net.Listener
	srv      *http.Server
}

// startNotifyListener binds the notify port (0 picks an ephemeral one) and
// begins serving pushes. The bound port is what the agent registers with.
func startNotifyListener(agent *Agent, port int) (*notifyListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}

	nl := &notifyListener{agent: agent, listener: ln}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/transfer/receive", nl.handleReceive)
	nl.srv = &http.Server{Handler: mux}

	go func() {
		if err := nl.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("notify listener stopped")
		}
	}()
	log.Info().Int("port", nl.Port()).Msg("notify listener started")
	return nl, nil
}

// Port returns the bound notify port.
func (nl *notifyListener) Port() int {
	return nl.listener.Addr().(*net.TCPAddr).Port
}

// Shutdown stops the listener.
func (nl *notifyListener) Shutdown(ctx context.Context) {
	nl.srv.Shutdown(ctx)
}

// handleReceive accepts a pushed rendezvous, acknowledges immediately and
// drains the stream in the background so the coordinator's push call never
// blocks on file bytes.
func (nl *notifyListener) handleReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var note coordinator.Notification
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	log.Info().Str("transfer_id", note.TransferID).Str("source", note.SourceIP).
		Str("filename", note.File.Filename).Int64("size", note.File.Size).
		Msg("incoming transfer")

	go nl.agent.receive(note)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// receive runs the receiving side of one transfer and reports the terminal
// status back to the coordinator.
func (a *Agent) receive(note coordinator.Notification) {
	ctx := context.Background()

	if err := a.api.ReportStatus(ctx, note.TransferID, coordinator.StatusInProgress, ""); err != nil {
		log.Warn().Err(err).Str("transfer_id", note.TransferID).Msg("in_progress report failed")
	}

	path, err := transfer.Receive(ctx, note.SourceIP, note.File.ReceivePort,
		note.File.Filename, note.File.Size, a.downloadDir, transfer.ReceiveOptions{
			DialTimeout:  config.DialTimeout(),
			ShowProgress: a.showProgress,
		})
	if err != nil {
		log.Error().Err(err).Str("transfer_id", note.TransferID).Msg("receive failed")
		a.reportFailure(ctx, note.TransferID, err)
		return
	}

	if err := a.api.ReportStatus(ctx, note.TransferID, coordinator.StatusCompleted, ""); err != nil {
		log.Warn().Err(err).Str("transfer_id", note.TransferID).Msg("completed report failed")
	}
	log.Info().Str("transfer_id", note.TransferID).Str("path", path).Msg("transfer completed")
}
