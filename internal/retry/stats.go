package retry

import (
	"sort"
	"sync"

	"github.com/audioforge/audioforge/internal/faults"
)

// KindCount pairs a failure kind with its occurrence count.
type KindCount struct {
	Kind  faults.Kind
	Count int
}

// Stats tracks operation outcomes across the process lifetime. Counters
// are monotonic and safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	successes int
	failures  int
	byKind    map[faults.Kind]int
}

// NewStats returns empty stats.
func NewStats() *Stats {
	return &Stats{byKind: make(map[faults.Kind]int)}
}

// RecordSuccess counts one successful operation.
func (s *Stats) RecordSuccess() {
	s.mu.Lock()
	s.successes++
	s.mu.Unlock()
}

// RecordFailure counts one failed attempt of the given kind.
func (s *Stats) RecordFailure(kind faults.Kind) {
	s.mu.Lock()
	s.failures++
	s.byKind[kind]++
	s.mu.Unlock()
}

// SuccessRate returns successes / (successes + failures), or 1 when
// nothing has been recorded yet.
func (s *Stats) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.successes + s.failures
	if total == 0 {
		return 1
	}
	return float64(s.successes) / float64(total)
}

// CommonKinds returns up to n kinds ordered by descending count, ties
// broken by kind name for stable output.
func (s *Stats) CommonKinds(n int) []KindCount {
	s.mu.Lock()
	counts := make([]KindCount, 0, len(s.byKind))
	for kind, count := range s.byKind {
		counts = append(counts, KindCount{Kind: kind, Count: count})
	}
	s.mu.Unlock()

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Kind < counts[j].Kind
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// RepeatedSuggestions aggregates the ordered suggestions for every kind
// seen at least threshold times.
func (s *Stats) RepeatedSuggestions(threshold int) []string {
	var out []string
	for _, kc := range s.CommonKinds(0) {
		if kc.Count >= threshold {
			out = append(out, faults.Suggestions(kc.Kind)...)
		}
	}
	return out
}
