// internal/httpapi/client.go

// Package httpapi is the client for the platform's room HTTP endpoints: room
// creation, join-by-code, and the liveness probe that gates showing the
// interface at all. 4xx responses are final; 5xx and network failures are
// retried with capped exponential backoff before surfacing.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Defaults for the request retry policy.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 300 * time.Millisecond
	requestTimeout    = 10 * time.Second
)

// Sentinel outcomes for 4xx responses the caller must render, not retry.
var (
	// ErrCannotRejoin means the room's game is in progress and not paused, so
	// joining is refused. Not a fatal error; the user simply cannot rejoin now.
	ErrCannotRejoin = errors.New("httpapi: cannot rejoin an active game")
	// ErrRoomNotFound means the room code matched nothing.
	ErrRoomNotFound = errors.New("httpapi: room not found")
	// ErrRoomFull means the room is at capacity.
	ErrRoomFull = errors.New("httpapi: room is full")
)

// JoinResult is returned by room creation and join-by-code.
type JoinResult struct {
	RoomID   uuid.UUID `json:"roomId"`
	UserID   uuid.UUID `json:"userId"`
	RoomCode string    `json:"roomCode"`
	Token    string    `json:"token,omitempty"`
}

// Client talks to the room endpoints.
type Client struct {
	base       string
	http       *http.Client
	log        *logrus.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewClient builds a Client against base (e.g. "http://localhost:8080").
func NewClient(base string, logger *logrus.Logger) *Client {
	return &Client{
		base:       base,
		http:       &http.Client{Timeout: requestTimeout},
		log:        logger,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
	}
}

// CreateRoom creates a new room hosted by userName.
func (c *Client) CreateRoom(ctx context.Context, userName string) (JoinResult, error) {
	return c.postJoin(ctx, "/rooms", map[string]string{"userName": userName})
}

// JoinRoom joins an existing room by its share code. A previously issued
// userID may be supplied to rejoin as the same participant.
func (c *Client) JoinRoom(ctx context.Context, roomCode, userName, userID string) (JoinResult, error) {
	body := map[string]string{"roomCode": roomCode, "userName": userName}
	if userID != "" {
		body["userId"] = userID
	}
	return c.postJoin(ctx, "/rooms/join", body)
}

// Probe checks the liveness endpoint. A false result means the interface
// should not be shown.
func (c *Client) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).Warn("httpapi: liveness probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) postJoin(ctx context.Context, path string, body map[string]string) (JoinResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return JoinResult{}, fmt.Errorf("httpapi: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return JoinResult{}, ctx.Err()
			case <-time.After(delay):
			}
			c.log.WithFields(logrus.Fields{"path": path, "attempt": attempt}).Info("httpapi: retrying request")
		}

		res, retryable, err := c.once(ctx, path, payload)
		if err == nil {
			return res, nil
		}
		if !retryable {
			return JoinResult{}, err
		}
		lastErr = err
	}
	return JoinResult{}, fmt.Errorf("httpapi: %s failed after %d retries: %w", path, c.maxRetries, lastErr)
}

// once performs a single POST. The second return value reports whether the
// failure is retryable (network error or 5xx).
func (c *Client) once(ctx context.Context, path string, payload []byte) (JoinResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return JoinResult{}, false, fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return JoinResult{}, true, fmt.Errorf("httpapi: %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var res JoinResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return JoinResult{}, false, fmt.Errorf("httpapi: decode %s response: %w", path, err)
		}
		return res, false, nil

	case resp.StatusCode == http.StatusNotFound:
		return JoinResult{}, false, ErrRoomNotFound
	case resp.StatusCode == http.StatusConflict:
		return JoinResult{}, false, ErrCannotRejoin
	case resp.StatusCode == http.StatusForbidden:
		return JoinResult{}, false, ErrRoomFull

	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return JoinResult{}, true, fmt.Errorf("httpapi: %s: server error %d", path, resp.StatusCode)

	default:
		// Remaining 4xx: the caller's intent was invalid, do not retry.
		raw, _ := io.ReadAll(resp.Body)
		return JoinResult{}, false, fmt.Errorf("httpapi: %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(raw))
	}
}
