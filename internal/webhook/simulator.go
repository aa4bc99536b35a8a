package webhook

import (
	"strings"

	"github.com/ashureev/aria/internal/domain"
)

// Rule maps a set of keywords to a canned reply.
type Rule struct {
	Name     string
	Keywords []string
	Reply    string
}

// Matches reports whether any keyword occurs in the lower-cased message.
func (r Rule) Matches(lower string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Simulator answers messages locally while no message endpoint is configured.
// Rules are evaluated in order and the first match wins.
type Simulator struct {
	Rules    []Rule
	Fallback string
}

// DefaultSimulator returns the stock rule set.
func DefaultSimulator() *Simulator {
	return &Simulator{
		Rules: []Rule{
			{Name: "done", Keywords: []string{"done", "finished"}, Reply: "✓ Got it — nice work. What's next?"},
			{Name: "routine", Keywords: []string{"routine", "tasks"}, Reply: "Here's your current routine. Tap to mark items done."},
			{Name: "skip", Keywords: []string{"skip"}, Reply: "✓ Skipped for today. It'll be back tomorrow."},
		},
		Fallback: "✓ Got it — I'll note that.",
	}
}

// Respond picks the reply for message. The matched rule name is "" for the fallback.
func (s *Simulator) Respond(message string) (domain.MessageResponse, string) {
	lower := strings.ToLower(message)
	for _, rule := range s.Rules {
		if rule.Matches(lower) {
			return domain.MessageResponse{Message: rule.Reply, Cards: []domain.Card{}}, rule.Name
		}
	}
	return domain.MessageResponse{Message: s.Fallback, Cards: []domain.Card{}}, ""
}
