package domain

import "fmt"

// TaskStatus values reported by the task completion endpoint.
const (
	TaskStatusCompleted = "completed"
	TaskStatusPending   = "pending"
)

// Task is a single routine item.
// ID 0 means the task has no server identity and is only tracked locally.
type Task struct {
	ID        int    `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Completed bool   `json:"completed" yaml:"completed"`
}

// TaskGroup is a card of related tasks, e.g. a morning routine.
type TaskGroup struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// Progress returns the completed and total task counts.
func (g TaskGroup) Progress() (done, total int) {
	for _, t := range g.Tasks {
		if t.Completed {
			done++
		}
	}
	return done, len(g.Tasks)
}

// Badge renders the "N of M" counter shown on the group card.
func (g TaskGroup) Badge() string {
	done, total := g.Progress()
	return fmt.Sprintf("%d of %d", done, total)
}

// TaskResult is the confirmation returned by the task completion endpoint.
type TaskResult struct {
	Success bool   `json:"success"`
	TaskID  int    `json:"task_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}
