package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"erevent/internal/apperr"
	"erevent/internal/coordinator"
	"erevent/internal/discovery"
	"erevent/internal/registry"
)

// API is a thin REST client for the coordinator. Transport failures come back
// as Connectivity errors; coordinator-side failures are mapped back onto the
// error taxonomy from the response body.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI builds a client for the discovered coordinator endpoint.
func NewAPI(ep discovery.Endpoint) *API {
	return &API{
		baseURL: fmt.Sprintf("http://%s:%d", ep.Address, ep.Port),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiError struct {
	Status  string `json:"status"`
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func (a *API) Register(ctx context.Context, deviceID, deviceName string, notifyPort int) error {
	return a.post(ctx, "/api/register", map[string]interface{}{
		"device_id":   deviceID,
		"device_name": deviceName,
		"notify_port": notifyPort,
	}, nil)
}

func (a *API) Heartbeat(ctx context.Context, deviceID string) error {
	return a.post(ctx, "/api/heartbeat", map[string]string{"device_id": deviceID}, nil)
}

// Devices lists every device the coordinator knows about.
func (a *API) Devices(ctx context.Context) (map[string]registry.View, error) {
	var resp struct {
		Devices map[string]registry.View `json:"devices"`
	}
	if err := a.get(ctx, "/api/devices", &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// InitTransfer asks the coordinator to open a handshake and returns the
// transfer id.
func (a *API) InitTransfer(ctx context.Context, fromID, toID string, file coordinator.FileInfo) (string, error) {
	var resp struct {
		TransferID string `json:"transfer_id"`
	}
	err := a.post(ctx, "/api/transfer/init", map[string]interface{}{
		"from_device": fromID,
		"to_device":   toID,
		"file_info":   file,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TransferID, nil
}

func (a *API) ReportStatus(ctx context.Context, transferID string, status coordinator.Status, reason string) error {
	return a.post(ctx, "/api/transfer/report", map[string]string{
		"transfer_id": transferID,
		"status":      string(status),
		"reason":      reason,
	}, nil)
}

func (a *API) GetStatus(ctx context.Context, transferID string) (coordinator.Task, error) {
	var resp struct {
		Task coordinator.Task `json:"task"`
	}
	if err := a.get(ctx, "/api/transfer/status/"+transferID, &resp); err != nil {
		return coordinator.Task{}, err
	}
	return resp.Task, nil
}

func (a *API) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *API) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	return a.do(req, out)
}

func (a *API) do(req *http.Request, out interface{}) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Connectivity, "client.api", err, "coordinator unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&ae); decodeErr == nil && ae.Message != "" {
			return apperr.New(kindFromWire(ae.Kind), "client.api", "%s", ae.Message)
		}
		return apperr.New(apperr.Unknown, "client.api", "coordinator returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func kindFromWire(kind string) apperr.Kind {
	switch kind {
	case apperr.Validation.String():
		return apperr.Validation
	case apperr.NotFound.String():
		return apperr.NotFound
	case apperr.TargetUnreachable.String():
		return apperr.TargetUnreachable
	case apperr.Timeout.String():
		return apperr.Timeout
	case apperr.TransferIncomplete.String():
		return apperr.TransferIncomplete
	case apperr.Connectivity.String():
		return apperr.Connectivity
	default:
		return apperr.Unknown
	}
}
