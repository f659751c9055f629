// Package relay delivers operator commands to the onboard process. Delivery
// only: a successful send means the relay accepted the command, not that
// the vessel executed it. No retries anywhere; the operator re-clicks.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"vessel-gcs/internal/models"
)

var (
	// ErrTimeout marks a send that exceeded the configured bound.
	ErrTimeout = errors.New("relay timed out")
	// ErrRelay marks a send the relay rejected or could not deliver.
	ErrRelay = errors.New("relay failure")
)

// DefaultTimeout bounds a single send when the configuration does not.
const DefaultTimeout = 15 * time.Second

// Relay is the single delivery contract; the HTTP and exec strategies are
// interchangeable behind it.
type Relay interface {
	Send(ctx context.Context, cmd models.Command) error
}

// HTTPRelay POSTs {type, payload} as JSON to a local relay service.
type HTTPRelay struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPRelay creates the loopback-call strategy. A non-positive timeout
// falls back to DefaultTimeout.
func NewHTTPRelay(url string, timeout time.Duration) *HTTPRelay {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// The per-send context carries the bound; a client-level timeout on
	// top of it would just make the error ambiguous.
	return &HTTPRelay{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// relayResponse is the optional body a relay service may answer with. A
// 2xx with no parseable body still counts as delivered; only an explicit
// success=false demotes it to failure.
type relayResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

func (r *HTTPRelay) Send(ctx context.Context, cmd models.Command) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: encoding command: %v", ErrRelay, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelay, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %s %s", ErrTimeout, r.timeout, cmd.Type, cmd.Payload)
		}
		return fmt.Errorf("%w: %v", ErrRelay, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: relay returned %s: %s", ErrRelay, resp.Status, strings.TrimSpace(string(raw)))
	}
	var rr relayResponse
	if err := json.Unmarshal(raw, &rr); err == nil && rr.Success != nil && !*rr.Success {
		return fmt.Errorf("%w: %s", ErrRelay, rr.Message)
	}
	return nil
}

// ExecRelay launches a helper executable with the command type and payload
// as positional arguments. Non-zero exit is failure with the combined
// output as the message.
type ExecRelay struct {
	command string
	timeout time.Duration
}

// NewExecRelay creates the process-invocation strategy.
func NewExecRelay(command string, timeout time.Duration) *ExecRelay {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRelay{command: command, timeout: timeout}
}

func (r *ExecRelay) Send(ctx context.Context, cmd models.Command) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{string(cmd.Type)}
	if cmd.Payload != "" {
		args = append(args, cmd.Payload)
	}
	out, err := exec.CommandContext(ctx, r.command, args...).CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s %s", ErrTimeout, r.timeout, cmd.Type, cmd.Payload)
	}
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrRelay, msg)
	}
	return nil
}
