package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"erevent/internal/apperr"
	"erevent/internal/coordinator"
)

type registerRequest struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	NotifyPort int    `json:"notify_port"`
}

type heartbeatRequest struct {
	DeviceID string `json:"device_id"`
}

type transferInitRequest struct {
	FromDevice string               `json:"from_device"`
	ToDevice   string               `json:"to_device"`
	File       coordinator.FileInfo `json:"file_info"`
}

type transferReportRequest struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "server.register", "invalid JSON body"))
		return
	}

	// The address is what the coordinator observed, never a client claim.
	if err := s.reg.Register(req.DeviceID, req.DeviceName, remoteIP(r), req.NotifyPort); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "device registered successfully",
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "server.heartbeat", "invalid JSON body"))
		return
	}
	if err := s.reg.Heartbeat(req.DeviceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"devices": s.reg.List(),
	})
}

func (s *Server) handleTransferInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req transferInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "server.transferInit", "invalid JSON body"))
		return
	}
	id, err := s.coord.InitTransfer(r.Context(), req.FromDevice, req.ToDevice, req.File)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "success",
		"transfer_id": id,
	})
}

func (s *Server) handleTransferReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req transferReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "server.transferReport", "invalid JSON body"))
		return
	}
	if err := s.coord.ReportStatus(req.TransferID, coordinator.Status(req.Status), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleTransferStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/transfer/status/")
	task, err := s.coord.GetStatus(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"task":   task,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// remoteIP strips the port from the request's source address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), map[string]string{
		"status":  "error",
		"error":   apperr.KindOf(err).String(),
		"message": err.Error(),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func httpStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.TargetUnreachable:
		return http.StatusConflict
	case apperr.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
