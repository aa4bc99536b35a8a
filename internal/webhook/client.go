// Package webhook is the outbound API client for the three ARIA webhooks:
// incoming messages, task completion and push subscription storage.
// Any endpoint may be left unconfigured, in which case the client answers
// locally.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/aria/internal/domain"
)

// ApologyMessage is shown when the message webhook cannot be reached.
const ApologyMessage = "I couldn't connect right now. Try again in a moment?"

// TaskFailureError is reported when the task webhook cannot be reached.
const TaskFailureError = "Failed to update task"

// maxResponseSize bounds webhook response bodies.
const maxResponseSize = 1 << 20

// Config holds the webhook endpoints. An empty endpoint is unconfigured.
type Config struct {
	MessageEndpoint string
	TaskEndpoint    string
	PushEndpoint    string
	UserID          string
}

// Client calls the webhooks. It never returns errors: every failure is
// logged and converted to a safe default.
type Client struct {
	cfg       Config
	http      *http.Client
	now       func() time.Time
	simulator *Simulator
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Defaults to http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithClock sets the clock used for task completion dates.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
	}
}

// WithSimulator replaces the local response rules.
func WithSimulator(s *Simulator) Option {
	return func(cl *Client) {
		if s != nil {
			cl.simulator = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New creates a webhook client for cfg.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		http:      http.DefaultClient,
		now:       time.Now,
		simulator: DefaultSimulator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

type messageRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type taskRequest struct {
	TaskID    int    `json:"task_id"`
	Completed bool   `json:"completed"`
	Date      string `json:"date"`
}

type pushRequest struct {
	UserID       string                   `json:"user_id"`
	Subscription *domain.PushSubscription `json:"subscription"`
}

// SendMessage delivers a user message and returns ARIA's reply.
func (c *Client) SendMessage(ctx context.Context, message string) domain.MessageResponse {
	if c.cfg.MessageEndpoint == "" {
		resp, rule := c.simulator.Respond(message)
		c.logger.Debug("Message endpoint not configured, using simulation", "rule", rule)
		return resp
	}

	var resp domain.MessageResponse
	if err := c.post(ctx, c.cfg.MessageEndpoint, messageRequest{Message: message, UserID: c.cfg.UserID}, &resp); err != nil {
		c.logger.Error("sendMessage failed", "endpoint", c.cfg.MessageEndpoint, "error", err)
		return domain.MessageResponse{Message: ApologyMessage, Cards: []domain.Card{}}
	}
	if resp.Cards == nil {
		resp.Cards = []domain.Card{}
	}
	return resp
}

// CompleteTask records a task as completed or pending for today.
func (c *Client) CompleteTask(ctx context.Context, taskID int, completed bool) domain.TaskResult {
	if c.cfg.TaskEndpoint == "" {
		c.logger.Debug("Task completion endpoint not configured, using simulation", "task_id", taskID)
		status := domain.TaskStatusPending
		if completed {
			status = domain.TaskStatusCompleted
		}
		return domain.TaskResult{Success: true, TaskID: taskID, Status: status}
	}

	body := taskRequest{
		TaskID:    taskID,
		Completed: completed,
		Date:      c.now().UTC().Format(time.DateOnly),
	}
	var result domain.TaskResult
	if err := c.post(ctx, c.cfg.TaskEndpoint, body, &result); err != nil {
		c.logger.Error("completeTask failed", "endpoint", c.cfg.TaskEndpoint, "task_id", taskID, "error", err)
		return domain.TaskResult{Success: false, Error: TaskFailureError}
	}
	return result
}

// RegisterPushSubscription forwards a push subscription for storage.
// Returns false when unconfigured or on any failure.
func (c *Client) RegisterPushSubscription(ctx context.Context, sub *domain.PushSubscription) bool {
	if c.cfg.PushEndpoint == "" {
		c.logger.Info("Push subscription endpoint not configured")
		return false
	}

	if err := c.post(ctx, c.cfg.PushEndpoint, pushRequest{UserID: c.cfg.UserID, Subscription: sub}, nil); err != nil {
		c.logger.Error("registerPushSubscription failed", "endpoint", c.cfg.PushEndpoint, "error", err)
		return false
	}
	return true
}

// post sends body as JSON and decodes a 2xx response into out when out is non-nil.
func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close webhook response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
