package expect

import "fmt"

// Score counts the sub-conditions of a check that hold. A check using a
// score passes when at least Required of them hold.
type Score struct {
	Required int

	names []string
	hits  map[string]bool
}

// NewScore returns a score passing with required hits. A required value of
// zero or less means every sub-condition must hold.
func NewScore(required int) *Score {
	return &Score{
		Required: required,
		hits:     make(map[string]bool),
	}
}

// Mark records whether the named sub-condition holds.
func (s *Score) Mark(name string, ok bool) {
	if _, seen := s.hits[name]; !seen {
		s.names = append(s.names, name)
	}
	s.hits[name] = ok
}

func (s *Score) Hits() int {
	n := 0
	for _, ok := range s.hits {
		if ok {
			n++
		}
	}
	return n
}

func (s *Score) Total() int {
	return len(s.names)
}

func (s *Score) required() int {
	if s.Required <= 0 || s.Required > s.Total() {
		return s.Total()
	}
	return s.Required
}

// Passed reports whether enough sub-conditions hold.
func (s *Score) Passed() bool {
	return s.Total() > 0 && s.Hits() >= s.required()
}

// Summary renders the score as "3/4".
func (s *Score) Summary() string {
	return fmt.Sprintf("%d/%d", s.Hits(), s.Total())
}

// Details returns the outcome of each sub-condition under "conditions",
// plus the score and the number of hits required.
func (s *Score) Details() map[string]any {
	conditions := make(map[string]any, len(s.names))
	for _, name := range s.names {
		conditions[name] = s.hits[name]
	}

	return map[string]any{
		"conditions": conditions,
		"score":      s.Summary(),
		"required":   s.required(),
	}
}
