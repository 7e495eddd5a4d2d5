package logging

import "sync"

// StepSampler thins out "done of total" progress reports to the first one
// seen in each of a fixed number of equal steps. The final report always
// passes once. It is safe for concurrent use.
type StepSampler struct {
	mu    sync.Mutex
	steps int
	total int
	last  int
}

// NewStepSampler divides progress into steps slices; values below 1 default
// to 10.
func NewStepSampler(steps int) *StepSampler {
	if steps < 1 {
		steps = 10
	}
	return &StepSampler{steps: steps, last: -1}
}

// Allow reports whether done of total should be reported. A new total starts
// a new sequence.
func (s *StepSampler) Allow(done, total int) bool {
	if s == nil || total <= 0 {
		return true
	}
	step := min(max(done, 0), total) * s.steps / total

	s.mu.Lock()
	defer s.mu.Unlock()
	if total != s.total {
		s.total = total
		s.last = -1
	}
	if step <= s.last {
		return false
	}
	s.last = step
	return true
}
