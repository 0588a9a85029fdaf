package metrics

import "time"

// StreamStats tracks fragment counts and gaps for one stream pass.
// It is not safe for concurrent use.
type StreamStats struct {
	start     time.Time
	last      time.Time
	ByType    map[string]int
	FirstGap  time.Duration // start to first fragment
	MaxGap    time.Duration // largest gap between consecutive fragments
	Fragments int
}

// NewStreamStats starts the clock at now.
func NewStreamStats(now time.Time) *StreamStats {
	return &StreamStats{start: now, ByType: make(map[string]int)}
}

// Observe records one fragment of kind typ arriving at now.
func (s *StreamStats) Observe(typ string, now time.Time) {
	if s.Fragments == 0 {
		s.FirstGap = now.Sub(s.start)
	} else if gap := now.Sub(s.last); gap > s.MaxGap {
		s.MaxGap = gap
	}
	s.last = now
	s.Fragments++
	s.ByType[typ]++
}

// Fields returns the stats as telemetry fields.
func (s *StreamStats) Fields() map[string]any {
	byType := make(map[string]any, len(s.ByType))
	for k, v := range s.ByType {
		byType[k] = v
	}
	return map[string]any{
		"fragments":    s.Fragments,
		"by_type":      byType,
		"first_gap_ms": s.FirstGap.Milliseconds(),
		"max_gap_ms":   s.MaxGap.Milliseconds(),
	}
}
