package history

import (
	"sync"

	"github.com/scarson/optilink-monitor/internal/telemetry"
)

// Store keeps a bounded, insertion-ordered sample history per site. It is
// written only by the poll cycle but read concurrently by analytics and the
// read APIs, so all access goes through a reader/writer lock.
type Store struct {
	mu       sync.RWMutex
	sites    map[string][]telemetry.SiteSample
	capacity int
}

// NewStore creates a store with the given per-site cap. Site histories are
// created lazily on first sample and live for the process lifetime.
func NewStore(capacity int) *Store {
	return &Store{
		sites:    make(map[string][]telemetry.SiteSample),
		capacity: capacity,
	}
}

// Record appends a sample to its site's history, evicting the oldest entry
// first when the cap is reached.
func (s *Store) Record(sample telemetry.SiteSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.sites[sample.SiteName]
	if len(buf) >= s.capacity {
		buf = buf[1:]
	}
	s.sites[sample.SiteName] = append(buf, sample)
}

// Window returns the last k samples for a site in time order, fewer if the
// history is shorter. Non-positive k returns nil. The result is a copy.
func (s *Store) Window(site string, k int) []telemetry.SiteSample {
	if k <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.sites[site]
	if k > len(buf) {
		k = len(buf)
	}

	result := make([]telemetry.SiteSample, k)
	copy(result, buf[len(buf)-k:])
	return result
}

// Len returns the number of samples held for a site.
func (s *Store) Len(site string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sites[site])
}

// Sites returns the names of all sites seen so far.
func (s *Store) Sites() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.sites))
	for name := range s.sites {
		names = append(names, name)
	}
	return names
}
