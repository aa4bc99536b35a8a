// Package chat holds the conversation and routine state of one client and
// drives a Renderer as that state changes.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/aria/internal/domain"
)

// Toast texts.
const (
	ToastToggleFailed = "Failed to update — try again"
)

// API is the subset of the webhook client the controller needs.
type API interface {
	SendMessage(ctx context.Context, message string) domain.MessageResponse
	CompleteTask(ctx context.Context, taskID int, completed bool) domain.TaskResult
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Messages []domain.Message
	Groups   []domain.TaskGroup
	State    State
}

// Controller owns one client's conversation and routine board.
type Controller struct {
	api         API
	renderer    Renderer
	typingDelay time.Duration
	greeting    string
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger

	mu    sync.Mutex
	conv  *Conversation
	board *Board

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithTypingDelay sets the pause between the user's message and the typing indicator.
func WithTypingDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.typingDelay = d
		}
	}
}

// WithGreeting sets the assistant message shown on Start.
func WithGreeting(text string) Option {
	return func(c *Controller) { c.greeting = text }
}

// WithClock sets the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDs sets the message and turn id generator.
func WithIDs(newID func() string) Option {
	return func(c *Controller) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates a controller over a copy of groups.
func NewController(api API, renderer Renderer, groups []domain.TaskGroup, opts ...Option) *Controller {
	c := &Controller{
		api:         api,
		renderer:    renderer,
		typingDelay: 300 * time.Millisecond,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.Default(),
		conv:        NewConversation(),
		board:       NewBoard(groups),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start renders the greeting and the routine board.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.greeting != "" {
		c.appendLocked(domain.Message{
			ID:        c.newID(),
			Text:      c.greeting,
			Sender:    domain.SenderAssistant,
			Timestamp: c.now(),
		})
	}
	c.renderer.ShowBoard(c.board.Groups())
}

// Submit sends a user message. Whitespace-only text is ignored and
// Submit reports false. The response is handled asynchronously; overlapping
// submits each get their own turn.
func (c *Controller) Submit(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	turnID := c.newID()

	c.mu.Lock()
	c.appendLocked(domain.Message{
		ID:        turnID,
		Text:      text,
		Sender:    domain.SenderUser,
		Timestamp: c.now(),
	})
	c.conv.Begin(turnID)
	c.renderer.ClearInput()
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.respond(ctx, turnID, text)
	}()
	return true
}

// QuickReply submits a predefined reply.
func (c *Controller) QuickReply(ctx context.Context, text string) bool {
	return c.Submit(ctx, text)
}

func (c *Controller) respond(ctx context.Context, turnID, text string) {
	defer func() {
		c.mu.Lock()
		c.conv.Complete(turnID)
		c.mu.Unlock()
	}()

	if c.typingDelay > 0 {
		timer := time.NewTimer(c.typingDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Debug("Turn abandoned", "turn_id", turnID)
			return
		case <-timer.C:
		}
	}

	c.renderer.ShowTyping()
	resp := c.api.SendMessage(ctx, text)
	c.renderer.HideTyping()

	if resp.HasCards() {
		c.logger.Debug("Ignoring response cards", "turn_id", turnID, "count", len(resp.Cards))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(domain.Message{
		ID:        c.newID(),
		Text:      resp.Message,
		Sender:    domain.SenderAssistant,
		Timestamp: c.now(),
		ReplyTo:   turnID,
	})
}

// ToggleTask flips a task optimistically and confirms it with the API.
// On failure this call's flip is undone by flipping again, so overlapping
// failed toggles of one task settle back where they started. Tasks without an id are only toggled
// locally. The confirmed or reverted state is returned.
func (c *Controller) ToggleTask(ctx context.Context, ref TaskRef) (TaskToggle, error) {
	c.mu.Lock()
	t, err := c.board.Toggle(ref)
	if err != nil {
		c.mu.Unlock()
		return TaskToggle{}, err
	}
	c.renderer.UpdateTask(t)
	c.renderer.ShowToast(toggleToast(t))
	c.mu.Unlock()

	if t.TaskID == 0 {
		return t, nil
	}

	result := c.api.CompleteTask(ctx, t.TaskID, t.Completed)
	if result.Success {
		return t, nil
	}

	c.logger.Warn("Task update failed, reverting", "task_id", t.TaskID, "error", result.Error)

	c.mu.Lock()
	defer c.mu.Unlock()
	reverted, err := c.board.Toggle(ref)
	if err != nil {
		return TaskToggle{}, err
	}
	c.renderer.UpdateTask(reverted)
	c.renderer.ShowToast(ToastToggleFailed)
	return reverted, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Messages: c.conv.Messages(),
		Groups:   c.board.Groups(),
		State:    c.conv.State(),
	}
}

// Wait blocks until every outstanding turn has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// appendLocked must be called with c.mu held so that render order matches
// log order.
func (c *Controller) appendLocked(m domain.Message) {
	c.conv.Append(m)
	c.renderer.AppendMessage(m)
}

func toggleToast(t TaskToggle) string {
	if t.Completed {
		return "Marked " + t.Title + " done"
	}
	return "Unmarked " + t.Title
}
