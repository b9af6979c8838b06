package router

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/54b3r/ehl-ingestd/internal/wire"
)

// sendTimeout bounds a single socket read/write.
const sendTimeout = 5 * time.Second

// sendRetries is the number of attempts before giving up on one send.
const sendRetries = 3

// sendRetryDelay is the pause between retry attempts.
const sendRetryDelay = time.Second

// Client sends CapturePayloads to the ingestion server over a Unix domain
// socket, one connection per send (the server accepts either style; the
// router prefers simplicity over connection reuse).
type Client struct {
	socketPath string
}

// NewClient constructs a Client targeting the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Send delivers payload and returns the server's response, making up to
// sendRetries attempts in all, with sendRetryDelay between attempts, on
// connection or I/O failure.
func (c *Client) Send(ctx context.Context, payload wire.CapturePayload) (wire.IngestionResponse, error) {
	var lastErr error
	for attempt := 0; attempt < sendRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return wire.IngestionResponse{}, ctx.Err()
			case <-time.After(sendRetryDelay):
			}
		}
		resp, err := c.sendOnce(payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return wire.IngestionResponse{}, fmt.Errorf("router: send failed after %d attempts: %w", sendRetries, lastErr)
}

func (c *Client) sendOnce(payload wire.CapturePayload) (wire.IngestionResponse, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, sendTimeout)
	if err != nil {
		return wire.IngestionResponse{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(payload)
	if err != nil {
		return wire.IngestionResponse{}, fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	conn.SetDeadline(time.Now().Add(sendTimeout))
	if _, err := conn.Write(data); err != nil {
		return wire.IngestionResponse{}, fmt.Errorf("write: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return wire.IngestionResponse{}, fmt.Errorf("read: %w", err)
	}

	var resp wire.IngestionResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return wire.IngestionResponse{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp, nil
}
