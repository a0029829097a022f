package metadata

import (
	"sort"
	"sync"
)

// LookupInfo is one name lookup into deserialized metadata.
type LookupInfo struct {
	From  string // module performing the lookup
	Scope string // package fq name, empty for package lookups
	Name  string
}

// LookupTracker records lookups for incremental compilation.
type LookupTracker interface {
	Record(info LookupInfo)
}

type doNothing struct{}

func (doNothing) Record(LookupInfo) {}

// DoNothing is the tracker used when incremental compilation is off.
var DoNothing LookupTracker = doNothing{}

// RecordingTracker keeps every lookup. Safe for concurrent use.
type RecordingTracker struct {
	mu      sync.Mutex
	lookups map[LookupInfo]int
}

// NewRecordingTracker creates an empty tracker.
func NewRecordingTracker() *RecordingTracker {
	return &RecordingTracker{lookups: make(map[LookupInfo]int)}
}

// Record implements LookupTracker.
func (t *RecordingTracker) Record(info LookupInfo) {
	t.mu.Lock()
	t.lookups[info]++
	t.mu.Unlock()
}

// Lookups returns the distinct lookups, sorted.
func (t *RecordingTracker) Lookups() []LookupInfo {
	t.mu.Lock()
	out := make([]LookupInfo, 0, len(t.lookups))
	for l := range t.lookups {
		out = append(out, l)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].From < out[j].From
	})
	return out
}

// Count returns how many times info was recorded.
func (t *RecordingTracker) Count(info LookupInfo) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookups[info]
}
