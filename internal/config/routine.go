package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/aria/internal/domain"
)

// routineFile is the on-disk routine format.
type routineFile struct {
	Groups []domain.TaskGroup `yaml:"groups"`
}

// DefaultRoutine is shown when no routine file is configured.
func DefaultRoutine() []domain.TaskGroup {
	return []domain.TaskGroup{
		{
			ID:    "morning",
			Title: "Morning routine",
			Tasks: []domain.Task{
				{ID: 1, Title: "Take medication"},
				{ID: 2, Title: "Drink a glass of water"},
				{ID: 3, Title: "10 minute walk"},
				{ID: 4, Title: "Review today's plan"},
			},
		},
		{
			ID:    "evening",
			Title: "Evening wind-down",
			Tasks: []domain.Task{
				{ID: 5, Title: "Prep tomorrow's bag"},
				{ID: 6, Title: "Screens off by 10"},
			},
		},
	}
}

// LoadRoutine reads task groups from a YAML file. An empty path returns
// DefaultRoutine.
func LoadRoutine(path string) ([]domain.TaskGroup, error) {
	if path == "" {
		return DefaultRoutine(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routine: %w", err)
	}
	return ParseRoutine(data)
}

// ParseRoutine decodes and validates a routine document.
func ParseRoutine(data []byte) ([]domain.TaskGroup, error) {
	var f routineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routine: %w", err)
	}
	if len(f.Groups) == 0 {
		return nil, errors.New("routine has no groups")
	}

	seen := make(map[string]bool, len(f.Groups))
	for _, g := range f.Groups {
		if g.ID == "" {
			return nil, fmt.Errorf("routine group %q has no id", g.Title)
		}
		if seen[g.ID] {
			return nil, fmt.Errorf("duplicate routine group %q", g.ID)
		}
		seen[g.ID] = true
		for _, t := range g.Tasks {
			if t.ID < 0 {
				return nil, fmt.Errorf("group %q: task %q has a negative id", g.ID, t.Title)
			}
		}
	}
	return f.Groups, nil
}
