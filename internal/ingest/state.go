package ingest

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sells-group/cad-ingest/internal/model"
)

// runState aggregates counters for one run. Records are processed
// concurrently within a batch, so counters are atomic and the seen set and
// skip tally sit behind a mutex.
type runState struct {
	scraped  atomic.Int64
	saved    atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
	geocoded atomic.Int64
	expired  atomic.Int64

	mu      sync.Mutex
	seen    map[string]struct{}
	reasons map[string]int
	sources []model.SourceReport
	preview []model.Call
}

func newRunState() *runState {
	return &runState{
		seen:    make(map[string]struct{}),
		reasons: make(map[string]int),
	}
}

// skip counts a dropped record under reason.
func (s *runState) skip(reason string) {
	s.skipped.Add(1)
	s.mu.Lock()
	s.reasons[reason]++
	s.mu.Unlock()
}

// markSeen claims callID for this run. It returns false when another record
// already claimed it.
func (s *runState) markSeen(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[callID]; ok {
		return false
	}
	s.seen[callID] = struct{}{}
	return true
}

func (s *runState) addSource(sr model.SourceReport) {
	s.mu.Lock()
	s.sources = append(s.sources, sr)
	s.mu.Unlock()
}

func (s *runState) addPreview(c model.Call) {
	s.mu.Lock()
	s.preview = append(s.preview, c)
	s.mu.Unlock()
}

// fill copies the counters into r.
func (s *runState) fill(r *model.Report) {
	r.Scraped = int(s.scraped.Load())
	r.Saved = int(s.saved.Load())
	r.Skipped = int(s.skipped.Load())
	r.Failed = int(s.failed.Load())
	r.Geocoded = int(s.geocoded.Load())
	r.Expired = int(s.expired.Load())

	s.mu.Lock()
	defer s.mu.Unlock()

	sources := make([]model.SourceReport, len(s.sources))
	copy(sources, s.sources)
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Source < sources[j].Source })
	r.Sources = sources

	if len(s.reasons) > 0 {
		r.SkipReasons = make(map[string]int, len(s.reasons))
		for k, v := range s.reasons {
			r.SkipReasons[k] = v
		}
	}
	if len(s.preview) > 0 {
		r.Calls = make([]model.Call, len(s.preview))
		copy(r.Calls, s.preview)
		sort.SliceStable(r.Calls, func(i, j int) bool { return r.Calls[i].CallID < r.Calls[j].CallID })
	}
}
