package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/capture"
	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

const defaultTimeout = 10 * time.Second

// Result is the server's answer to a submission.
type Result struct {
	Status  int    `json:"-"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Token   string `json:"access_token,omitempty"`
}

// Client posts reduced submissions to a KeyRhythm server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

// Submit sends username, password and times to the register or login
// endpoint selected by mode.
func (c *Client) Submit(ctx context.Context, mode capture.Mode, username, password string, times rhythm.Vector) (*Result, error) {
	if times == nil {
		times = rhythm.Vector{}
	}
	body, err := json.Marshal(map[string]any{
		"username": username,
		"password": password,
		"times":    times,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding submission: %w", err)
	}

	endpoint := "/api/login"
	if mode == capture.ModeRegister {
		endpoint = "/api/register"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding %s response (status %d): %w", endpoint, resp.StatusCode, err)
	}
	res.Status = resp.StatusCode
	return &res, nil
}

// Run replays s and submits it. A local capture error is returned as a
// failed Result without contacting the server.
func Run(ctx context.Context, c *Client, s *Script) (*Result, rhythm.Vector, error) {
	times, err := s.Vector()
	if err != nil {
		return &Result{Message: capture.Message(err)}, nil, nil
	}
	res, err := c.Submit(ctx, s.Mode, s.Username, s.Password, times)
	return res, times, err
}
