package scheduler

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// EventualityTracker matches chain-observed transactions to the Plan that
// produced them (spec.md §4.E/§4.F). Fingerprints are indexed by their
// xxhash so a scanner processing thousands of confirmed transactions per
// scan window can look up "is this one of ours" in O(1) rather than
// linearly scanning every outstanding Eventuality, the same non-cryptographic
// fast-hash indexing idiom the teacher's trie/bloom lookup paths use
// xxhash for internally via goleveldb's own dependency on it.
type EventualityTracker struct {
	mu      sync.Mutex
	byHash  map[uint64][]Eventuality
	pending map[[32]byte]Eventuality

	// scannedThrough is the block number the scanner may safely resume
	// from; RegisterAt lowers it whenever a newly tracked Eventuality's
	// registration block predates it, per spec.md §4.E: "register lowers
	// the cursor to the registration block".
	scannedThrough     uint64
	scannedThroughKnown bool
}

// NewEventualityTracker returns an empty tracker.
func NewEventualityTracker() *EventualityTracker {
	return &EventualityTracker{
		byHash:  make(map[uint64][]Eventuality),
		pending: make(map[[32]byte]Eventuality),
	}
}

// Track registers e as outstanding, to be matched against future
// observed fingerprints.
func (t *EventualityTracker) Track(e Eventuality) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := xxhash.Sum64(e.Fingerprint[:])
	t.byHash[h] = append(t.byHash[h], e)
	t.pending[e.PlanID] = e
}

// RegisterAt tracks e and ensures the tracker's scanned-through cursor
// never sits past block: a Plan's Eventuality must be observable from
// the block it was registered at onward, even if the scanner had
// already moved past that height for other reasons.
func (t *EventualityTracker) RegisterAt(block uint64, e Eventuality) {
	t.Track(e)
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.scannedThroughKnown || block < t.scannedThrough {
		t.scannedThrough = block
		t.scannedThroughKnown = true
	}
}

// ScannedThroughBlock returns the lowest block RegisterAt has required
// the scanner to cover, or ok=false if nothing has been registered yet.
func (t *EventualityTracker) ScannedThroughBlock() (block uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scannedThrough, t.scannedThroughKnown
}

// Match looks up whether a chain-observed fingerprint completes any
// tracked Eventuality, removing it from tracking if so.
func (t *EventualityTracker) Match(fingerprint [32]byte) (Eventuality, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := xxhash.Sum64(fingerprint[:])
	bucket := t.byHash[h]
	for i, e := range bucket {
		if e.Fingerprint == fingerprint {
			t.byHash[h] = append(bucket[:i], bucket[i+1:]...)
			delete(t.pending, e.PlanID)
			return e, true
		}
	}
	return Eventuality{}, false
}

// Pending reports whether planID still has an outstanding Eventuality.
func (t *EventualityTracker) Pending(planID [32]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[planID]
	return ok
}

// Outstanding returns every Eventuality not yet matched, used to drive
// resubmission of a Plan whose original broadcast never confirmed.
func (t *EventualityTracker) Outstanding() []Eventuality {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Eventuality, 0, len(t.pending))
	for _, e := range t.pending {
		out = append(out, e)
	}
	return out
}
