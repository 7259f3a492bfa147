package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"erevent/internal/registry"
)

// Notification is the payload pushed to the target device's notify listener.
// The receiver dials source_ip:receive_port directly from these fields.
type Notification struct {
	TransferID string   `json:"transfer_id"`
	SourceIP   string   `json:"source_ip"`
	File       FileInfo `json:"file_info"`
}

// HTTPNotifier delivers notifications to the notify port each device supplies
// at registration.
type HTTPNotifier struct {
	client *http.Client
}

// NewHTTPNotifier builds a notifier with a bounded per-push timeout.
func NewHTTPNotifier(timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{client: &http.Client{Timeout: timeout}}
}

// NotifyTransfer POSTs the rendezvous info to the target device.
func (n *HTTPNotifier) NotifyTransfer(ctx context.Context, target registry.Device, sourceIP string, task Task) error {
	if target.NotifyPort <= 0 {
		return errors.Errorf("device %q registered no notify port", target.ID)
	}

	payload, err := json.Marshal(Notification{
		TransferID: task.ID,
		SourceIP:   sourceIP,
		File:       task.File,
	})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}

	url := fmt.Sprintf("http://%s/api/transfer/receive",
		net.JoinHostPort(target.Address, strconv.Itoa(target.NotifyPort)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build notify request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "notify device %q", target.ID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("device %q notify returned %d", target.ID, resp.StatusCode)
	}
	return nil
}
