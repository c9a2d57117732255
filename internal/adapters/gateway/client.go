package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/mkalas/sessionkeeper/internal/ports"
	"github.com/sony/gobreaker"
)

const defaultTimeout = 10 * time.Second

// Client talks to the host gateway's session registry over HTTP. All
// calls carry the client timeout and pass through a circuit breaker so a
// flapping gateway fails fast instead of consuming the batch's
// wall-clock budget one timeout at a time.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

var _ ports.SessionGateway = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "session-registry",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

type sessionDescriptor struct {
	Key          string    `json:"key"`
	RotatingID   string    `json:"rotating_id"`
	TokenCount   int64     `json:"token_count"`
	LastModified time.Time `json:"last_modified"`
	ByteSize     int64     `json:"byte_size"`
}

type listResponse struct {
	Sessions []sessionDescriptor `json:"sessions"`
}

type rotateRequest struct {
	Key string `json:"key"`
}

type rotateResponse struct {
	OK         bool   `json:"ok"`
	RotatingID string `json:"rotating_id"`
	Error      string `json:"error"`
}

func (c *Client) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var payload listResponse
	if err := c.call(ctx, http.MethodGet, "/api/sessions", nil, &payload); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(payload.Sessions))
	for _, d := range payload.Sessions {
		sessions = append(sessions, domain.Session{
			Key:          domain.SessionKey(d.Key),
			RotatingID:   d.RotatingID,
			TokenCount:   d.TokenCount,
			LastModified: d.LastModified,
			ByteSize:     d.ByteSize,
		})
	}

	return sessions, nil
}

func (c *Client) Rotate(ctx context.Context, key domain.SessionKey) (string, error) {
	body, err := json.Marshal(rotateRequest{Key: string(key)})
	if err != nil {
		return "", fmt.Errorf("encode rotate request: %w", err)
	}

	var payload rotateResponse
	if err := c.call(ctx, http.MethodPost, "/api/sessions/rotate", body, &payload); err != nil {
		return "", fmt.Errorf("rotate session %s: %w", key, err)
	}
	if !payload.OK {
		reason := payload.Error
		if reason == "" {
			reason = "gateway refused rotation"
		}
		return "", fmt.Errorf("rotate session %s: %s", key, reason)
	}

	return payload.RotatingID, nil
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	result, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, method, path, body, out)
	})
	_ = result

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", domain.ErrRegistryUnavailable)
	}

	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: gateway returned %s", domain.ErrRegistryUnavailable, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
