package provider

import (
	"context"
	"sync"
	"time"
)

// Step is one scripted stream event: an optional delay, then either a fragment or an error.
type Step struct {
	Delay    time.Duration
	Fragment Fragment
	Err      error
}

// Text returns content steps for each chunk.
func Text(chunks ...string) []Step {
	out := make([]Step, len(chunks))
	for i, c := range chunks {
		out[i] = Step{Fragment: Fragment{Type: FragmentContent, Content: c}}
	}
	return out
}

// Scripted replays one script per Stream call, in order. Once the scripts run
// out the last one repeats. It records every request it receives.
type Scripted struct {
	mu       sync.Mutex
	scripts  [][]Step
	calls    int
	requests []Request
	// OpenErr, when set, fails Stream itself.
	OpenErr error
}

// NewScripted returns a backend replaying scripts.
func NewScripted(scripts ...[]Step) *Scripted {
	return &Scripted{scripts: scripts}
}

func (s *Scripted) Stream(ctx context.Context, req Request) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	var steps []Step
	if n := len(s.scripts); n > 0 {
		steps = s.scripts[min(s.calls, n-1)]
	}
	s.calls++
	return newStepStream(ctx, steps), nil
}

// Calls reports how many streams were opened.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Requests returns a copy of the received requests.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// stepStream plays steps, honouring delays and context cancellation.
type stepStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	steps  []Step
	cur    Fragment
	err    error
}

func newStepStream(ctx context.Context, steps []Step) *stepStream {
	ctx, cancel := context.WithCancel(ctx)
	return &stepStream{ctx: ctx, cancel: cancel, steps: steps}
}

func (s *stepStream) Next() bool {
	if s.err != nil || len(s.steps) == 0 {
		return false
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.Delay > 0 {
		t := time.NewTimer(st.Delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			s.err = s.ctx.Err()
			return false
		case <-t.C:
		}
	}
	if st.Err != nil {
		s.err = st.Err
		return false
	}
	s.cur = st.Fragment
	return true
}

func (s *stepStream) Current() Fragment { return s.cur }
func (s *stepStream) Err() error        { return s.err }

func (s *stepStream) Close() error {
	s.cancel()
	return nil
}
