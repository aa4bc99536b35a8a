package chat

import (
	"bytes"
	"html/template"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"github.com/ashureev/aria/internal/domain"
)

// Element ids the renderer targets in the page.
const (
	ElemConversation = "conversation"
	ElemInput        = "messageInput"
	ElemToast        = "toast"
	ElemToastText    = "toast-text"
	ElemTyping       = "typing-indicator"
)

// TimeLayout is the 12-hour hour:minute layout shown under each message.
const TimeLayout = "3:04 PM"

// Renderer applies conversation changes to a view.
type Renderer interface {
	AppendMessage(m domain.Message)
	ShowBoard(groups []domain.TaskGroup)
	ShowTyping()
	HideTyping()
	ClearInput()
	ShowToast(text string)
	UpdateTask(t TaskToggle)
}

// Op is a single DOM mutation sent to the client.
type Op struct {
	Op     string `json:"op"`
	Target string `json:"target"`
	HTML   string `json:"html,omitempty"`
	Text   string `json:"text,omitempty"`
	Value  string `json:"value,omitempty"`
	Class  string `json:"class,omitempty"`
	On     bool   `json:"on,omitempty"`
}

// Patch op names.
const (
	OpAppend      = "append"
	OpRemove      = "remove"
	OpSetText     = "set_text"
	OpSetValue    = "set_value"
	OpToggleClass = "toggle_class"
	OpScroll      = "scroll"
)

// Patcher delivers ops to a client. Implementations must not block for long.
type Patcher interface {
	Patch(ops ...Op)
}

// PatcherFunc adapts a function to Patcher.
type PatcherFunc func(ops ...Op)

// Patch calls f(ops...).
func (f PatcherFunc) Patch(ops ...Op) { f(ops...) }

var messageTemplate = template.Must(template.New("message").Parse(
	`<div class="message {{.Sender}}" id="msg-{{.ID}}">` +
		`<div class="message-bubble"><div class="message-text">{{.Body}}</div></div>` +
		`<div class="message-time">{{.Time}}</div></div>`,
))

const typingHTML = `<div class="message aria typing" id="` + ElemTyping + `">` +
	`<div class="message-bubble"><div class="typing-dots"><span></span><span></span><span></span></div></div></div>`

var boardTemplate = template.Must(template.New("board").Parse(
	`{{range $g := .}}<div class="card routine-card" id="card-{{$g.ID}}">` +
		`<div class="card-header"><span class="card-title">{{$g.Title}}</span>` +
		`<span class="card-badge" id="badge-{{$g.ID}}">{{$g.Badge}}</span></div>` +
		`<ul class="task-list">{{range $i, $t := $g.Tasks}}` +
		`<li class="task-item{{if $t.Completed}} completed{{end}}" id="task-{{$g.ID}}-{{$i}}" ` +
		`data-group="{{$g.ID}}" data-index="{{$i}}"{{if $t.ID}} data-task-id="{{$t.ID}}"{{end}}>` +
		`<span class="task-check"></span><span class="task-title">{{$t.Title}}</span></li>` +
		`{{end}}</ul></div>{{end}}`,
))

type messageView struct {
	ID     string
	Sender domain.Sender
	Body   any
	Time   string
}

// HTMLRenderer renders server-side HTML fragments and sends them as ops.
// Assistant text is treated as markdown with raw HTML disabled; user text
// is always escaped.
type HTMLRenderer struct {
	patcher       Patcher
	markdown      goldmark.Markdown
	toastDuration time.Duration
	logger        *slog.Logger

	mu         sync.Mutex
	location   *time.Location
	toastTimer *time.Timer
}

// NewHTMLRenderer creates a renderer writing to patcher.
func NewHTMLRenderer(patcher Patcher, toastDuration time.Duration, logger *slog.Logger) *HTMLRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLRenderer{
		patcher:       patcher,
		markdown:      goldmark.New(),
		toastDuration: toastDuration,
		location:      time.Local,
		logger:        logger,
	}
}

// SetLocation sets the zone message times are shown in.
func (r *HTMLRenderer) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location = loc
}

func (r *HTMLRenderer) clock(t time.Time) string {
	r.mu.Lock()
	loc := r.location
	r.mu.Unlock()
	return t.In(loc).Format(TimeLayout)
}

// AppendMessage appends a message bubble and scrolls to it.
func (r *HTMLRenderer) AppendMessage(m domain.Message) {
	view := messageView{
		ID:     m.ID,
		Sender: m.Sender,
		Body:   m.Text,
		Time:   r.clock(m.Timestamp),
	}
	if m.Sender == domain.SenderAssistant {
		var buf bytes.Buffer
		if err := r.markdown.Convert([]byte(m.Text), &buf); err != nil {
			r.logger.Warn("Markdown conversion failed", "message_id", m.ID, "error", err)
		} else {
			view.Body = template.HTML(buf.String())
		}
	}

	html, err := execute(messageTemplate, view)
	if err != nil {
		r.logger.Error("Failed to render message", "message_id", m.ID, "error", err)
		return
	}
	r.patcher.Patch(
		Op{Op: OpAppend, Target: ElemConversation, HTML: html},
		Op{Op: OpScroll, Target: ElemConversation},
	)
}

// ShowBoard appends the routine cards.
func (r *HTMLRenderer) ShowBoard(groups []domain.TaskGroup) {
	if len(groups) == 0 {
		return
	}
	html, err := execute(boardTemplate, groups)
	if err != nil {
		r.logger.Error("Failed to render routine", "error", err)
		return
	}
	r.patcher.Patch(
		Op{Op: OpAppend, Target: ElemConversation, HTML: html},
		Op{Op: OpScroll, Target: ElemConversation},
	)
}

// ShowTyping appends the typing indicator.
func (r *HTMLRenderer) ShowTyping() {
	r.patcher.Patch(
		Op{Op: OpAppend, Target: ElemConversation, HTML: typingHTML},
		Op{Op: OpScroll, Target: ElemConversation},
	)
}

// HideTyping removes the typing indicator.
func (r *HTMLRenderer) HideTyping() {
	r.patcher.Patch(Op{Op: OpRemove, Target: ElemTyping})
}

// ClearInput empties the message input.
func (r *HTMLRenderer) ClearInput() {
	r.patcher.Patch(Op{Op: OpSetValue, Target: ElemInput, Value: ""})
}

// ShowToast shows text in the toast and hides it after the toast duration.
func (r *HTMLRenderer) ShowToast(text string) {
	r.patcher.Patch(
		Op{Op: OpSetText, Target: ElemToastText, Text: text},
		Op{Op: OpToggleClass, Target: ElemToast, Class: "visible", On: true},
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.toastTimer != nil {
		r.toastTimer.Stop()
	}
	r.toastTimer = time.AfterFunc(r.toastDuration, func() {
		r.patcher.Patch(Op{Op: OpToggleClass, Target: ElemToast, Class: "visible", On: false})
	})
}

// UpdateTask marks the task and refreshes its group's badge.
func (r *HTMLRenderer) UpdateTask(t TaskToggle) {
	r.patcher.Patch(
		Op{Op: OpToggleClass, Target: TaskElementID(t.Ref), Class: "completed", On: t.Completed},
		Op{Op: OpSetText, Target: "badge-" + t.Ref.Group, Text: t.Badge()},
	)
}

// Close stops a pending toast hide.
func (r *HTMLRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.toastTimer != nil {
		r.toastTimer.Stop()
	}
}

// TaskElementID returns the element id of a rendered task.
func TaskElementID(ref TaskRef) string {
	return "task-" + ref.Group + "-" + strconv.Itoa(ref.Index)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
