package ota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deskbuddy/firmware-command/internal/log"
)

// State mirrors the device's OTA state machine.
type State string

const (
	StateIdle       State = "Idle"
	StateUploading  State = "Uploading"
	StateVerifying  State = "Verifying"
	StateInstalling State = "Installing"
	StateSuccess    State = "Success"
	StateError      State = "Error"
)

// Status is the device's report of update progress.
type Status struct {
	State     State  `json:"state"`
	Progress  int    `json:"progress"` // 0-100
	Received  int64  `json:"received"`
	Total     int64  `json:"total"`
	Error     string `json:"error,omitempty"`
	Version   string `json:"version"`
	Partition string `json:"partition"`
}

// Terminal reports whether the device has finished processing an upload.
func (s *Status) Terminal() bool {
	return s.State == StateSuccess || s.State == StateError
}

// A DeviceError is a non-2xx response from the device's update API. It is
// distinct from local signature errors: the image may be fine and the device
// busy, or the device may hold a different signing key.
type DeviceError struct {
	StatusCode int
	Message    string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("device returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to a device's OTA update API.
type Client struct {
	// Addr is the device's host[:port], with an optional http:// prefix.
	Addr string
	// HTTP is the underlying client. Uploads of multi-megabyte images over
	// Wi-Fi are slow, so the default timeout is generous.
	HTTP *http.Client
}

// NewClient returns a Client for the device at addr.
func NewClient(addr string) *Client {
	return &Client{
		Addr: addr,
		HTTP: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) url(path string) string {
	addr := c.Addr
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimSuffix(addr, "/") + path
}

func (c *Client) decodeError(rsp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	// The error body is best effort; some failures arrive as bare text.
	raw, _ := io.ReadAll(io.LimitReader(rsp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &DeviceError{StatusCode: rsp.StatusCode, Message: body.Error}
}

// Upload streams a signed image of the given size to the device. The device
// verifies the trailing tag itself before installing; Upload returning nil
// means the body was accepted, not that installation finished. Use Status to
// follow the install.
func (c *Client) Upload(ctx context.Context, image io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/ota/update"), image)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	log.Debug("POST %s (%d bytes)", req.URL, size)

	rsp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return c.decodeError(rsp)
	}
	return nil
}

// Status fetches the device's current OTA state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/ota/status"), nil)
	if err != nil {
		return nil, err
	}
	rsp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return nil, c.decodeError(rsp)
	}
	var status Status
	if err := json.NewDecoder(rsp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("invalid status response: %w", err)
	}
	return &status, nil
}

// Rollback asks the device to boot the previous firmware. The device restarts
// on success.
func (c *Client) Rollback(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/ota/rollback"), nil)
	if err != nil {
		return err
	}
	rsp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return c.decodeError(rsp)
	}
	return nil
}
