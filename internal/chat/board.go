package chat

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ashureev/aria/internal/domain"
)

// ErrUnknownTask is returned when a TaskRef does not name a task on the board.
var ErrUnknownTask = errors.New("unknown task")

// TaskRef addresses a rendered task by group and position.
type TaskRef struct {
	Group string `json:"group"`
	Index int    `json:"index"`
}

// TaskToggle describes a task after a toggle, along with its group's progress.
type TaskToggle struct {
	Ref       TaskRef
	TaskID    int
	Title     string
	Completed bool
	Done      int
	Total     int
}

// Badge renders the "N of M" counter of the owning group.
func (t TaskToggle) Badge() string {
	return fmt.Sprintf("%d of %d", t.Done, t.Total)
}

// setTask returns a copy of groups with the referenced task's completed flag
// set, and the resulting view of that task. groups is not modified.
func setTask(groups []domain.TaskGroup, ref TaskRef, completed bool) ([]domain.TaskGroup, TaskToggle, error) {
	gi := slices.IndexFunc(groups, func(g domain.TaskGroup) bool { return g.ID == ref.Group })
	if gi < 0 || ref.Index < 0 || ref.Index >= len(groups[gi].Tasks) {
		return groups, TaskToggle{}, fmt.Errorf("%w: %s/%d", ErrUnknownTask, ref.Group, ref.Index)
	}

	next := cloneGroups(groups)
	group := &next[gi]
	group.Tasks[ref.Index].Completed = completed

	task := group.Tasks[ref.Index]
	done, total := group.Progress()
	return next, TaskToggle{
		Ref:       ref,
		TaskID:    task.ID,
		Title:     task.Title,
		Completed: task.Completed,
		Done:      done,
		Total:     total,
	}, nil
}

// ToggleTask returns a copy of groups with the referenced task flipped.
func ToggleTask(groups []domain.TaskGroup, ref TaskRef) ([]domain.TaskGroup, TaskToggle, error) {
	gi := slices.IndexFunc(groups, func(g domain.TaskGroup) bool { return g.ID == ref.Group })
	if gi < 0 || ref.Index < 0 || ref.Index >= len(groups[gi].Tasks) {
		return groups, TaskToggle{}, fmt.Errorf("%w: %s/%d", ErrUnknownTask, ref.Group, ref.Index)
	}
	return setTask(groups, ref, !groups[gi].Tasks[ref.Index].Completed)
}

// Board holds the current task groups.
type Board struct {
	groups []domain.TaskGroup
}

// NewBoard creates a board from a copy of groups.
func NewBoard(groups []domain.TaskGroup) *Board {
	return &Board{groups: cloneGroups(groups)}
}

// Toggle flips a task in place.
func (b *Board) Toggle(ref TaskRef) (TaskToggle, error) {
	next, t, err := ToggleTask(b.groups, ref)
	if err != nil {
		return TaskToggle{}, err
	}
	b.groups = next
	return t, nil
}

// Groups returns a copy of the current groups.
func (b *Board) Groups() []domain.TaskGroup {
	return cloneGroups(b.groups)
}

func cloneGroups(groups []domain.TaskGroup) []domain.TaskGroup {
	out := make([]domain.TaskGroup, len(groups))
	for i, g := range groups {
		out[i] = g
		out[i].Tasks = slices.Clone(g.Tasks)
	}
	return out
}
