// Package classify is the client side of the classification service
// contract: POST /analyze, GET /health and POST /chat.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sprite-ai/blinky/internal/model"
)

// Errors returned by the client. ErrMalformed wraps ErrOffline, so callers
// that only care about reachability can test for ErrOffline alone.
var (
	ErrOffline   = errors.New("classification service offline")
	ErrMalformed = fmt.Errorf("%w: malformed response", ErrOffline)
	ErrService   = errors.New("classification service reported failure")
)

const maxBody = 1 << 20

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

// AnalyzeData is the verdict payload of a successful analysis.
type AnalyzeData struct {
	IsSafe      bool     `json:"is_safe"`
	ThreatLevel *string  `json:"threat_level,omitempty"`
	Score       float64  `json:"score"`
	Emotion     string   `json:"blinky_emotion"`
	Findings    []string `json:"findings"`
	Suggestions []string `json:"suggestions"`
	Context     string   `json:"context,omitempty"`
}

// AnalyzeResponse is the envelope of POST /analyze.
type AnalyzeResponse struct {
	Success bool         `json:"success"`
	Data    *AnalyzeData `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the envelope of POST /chat.
type ChatResponse struct {
	Success      bool   `json:"success"`
	Response     string `json:"response"`
	ResponseHTML string `json:"response_html,omitempty"`
}

// Client talks to the classification service. It never retries; every call
// stands alone.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// Classify submits a fragment and returns the service's verdict.
func (c *Client) Classify(ctx context.Context, f model.Fragment) (model.Verdict, error) {
	ctxLabel := string(f.Context)
	if ctxLabel == "" {
		ctxLabel = string(model.ContextGeneral)
	}

	var resp AnalyzeResponse
	if err := c.post(ctx, "/analyze", AnalyzeRequest{Text: f.Text, Context: ctxLabel}, &resp); err != nil {
		return model.Verdict{}, err
	}
	if !resp.Success {
		if resp.Error != "" {
			return model.Verdict{}, fmt.Errorf("%w: %s", ErrService, resp.Error)
		}
		return model.Verdict{}, ErrService
	}
	if resp.Data == nil {
		return model.Verdict{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	return resp.Data.Verdict(), nil
}

// Verdict converts the wire payload. A missing threat_level is derived from
// the score; a missing emotion from the level.
func (d *AnalyzeData) Verdict() model.Verdict {
	score := int(math.Round(d.Score))
	var level model.Level
	if d.ThreatLevel != nil {
		level = model.ParseLevel(*d.ThreatLevel)
	} else {
		level = model.LevelForScore(score)
	}
	mood := model.Mood(d.Emotion)
	if mood == "" {
		mood = model.MoodForLevel(level)
	}
	return model.NewVerdict(d.IsSafe, score, level, d.Findings, d.Suggestions, mood)
}

// Health probes GET /health. Any JSON body on a 2xx status means reachable.
func (c *Client) Health(ctx context.Context) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	var status any
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// Chat relays one message to POST /chat.
func (c *Client) Chat(ctx context.Context, message string) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/chat", ChatRequest{Message: message}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return &resp, ErrService
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrOffline, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrOffline, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
