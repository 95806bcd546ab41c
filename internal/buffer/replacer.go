// Package buffer implements C2 (page frames), C3 (the LRU-K replacer),
// and C4 (the buffer pool manager) that mediates all disk access for
// the layers above it.
package buffer

import "sync"

// frameHistory tracks a single frame's access history for the LRU-K
// policy and whether it is currently a candidate for eviction.
type frameHistory struct {
	// accesses holds up to K most recent access timestamps, oldest
	// first. Once full, a new access drops the oldest entry.
	accesses  []int64
	evictable bool
}

// Replacer selects an unpinned frame for eviction using LRU-K: the
// backward k-distance at time t is t minus the timestamp of the
// frame's k-th most recent access; frames with fewer than K accesses
// have infinite distance. Among frames with infinite distance, the one
// with the earliest single access time is chosen (classic LRU-K
// tie-break). K=2 matches the source this spec is distilled from.
type Replacer struct {
	mu      sync.Mutex
	k       int
	clock   int64
	history map[int]*frameHistory
}

// NewReplacer creates an LRU-K replacer tracking up to k accesses per
// frame.
func NewReplacer(k int) *Replacer {
	if k < 1 {
		k = 1
	}
	return &Replacer{k: k, history: make(map[int]*frameHistory)}
}

// RecordAccess notes that frameID was just accessed.
func (r *Replacer) RecordAccess(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock++
	h, ok := r.history[frameID]
	if !ok {
		h = &frameHistory{}
		r.history[frameID] = h
	}
	h.accesses = append(h.accesses, r.clock)
	if len(h.accesses) > r.k {
		h.accesses = h.accesses[len(h.accesses)-r.k:]
	}
}

// SetEvictable marks frameID as evictable or not. A frame with
// pin_count > 0 must never be marked evictable (spec.md invariant 3).
func (r *Replacer) SetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.history[frameID]
	if !ok {
		h = &frameHistory{}
		r.history[frameID] = h
	}
	h.evictable = evictable
}

// Remove drops all history for frameID, e.g. when its page is deleted.
func (r *Replacer) Remove(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.history, frameID)
}

// Evict selects and removes the evictable frame with the greatest
// backward k-distance, returning its id and true. Returns (0, false)
// if no frame is evictable.
func (r *Replacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := -1
	bestInfinite := false
	var bestDistance int64
	var bestEarliest int64

	for id, h := range r.history {
		if !h.evictable || len(h.accesses) == 0 {
			continue
		}
		infinite := len(h.accesses) < r.k
		earliest := h.accesses[0]

		switch {
		case best == -1:
			best, bestInfinite, bestEarliest = id, infinite, earliest
			if !infinite {
				bestDistance = r.clock - h.accesses[0]
			}
		case infinite && !bestInfinite:
			// Infinite distance always beats a finite one.
			best, bestInfinite, bestEarliest = id, true, earliest
		case infinite && bestInfinite:
			// Tie-break: earliest single access time wins.
			if earliest < bestEarliest {
				best, bestEarliest = id, earliest
			}
		case !infinite && !bestInfinite:
			distance := r.clock - h.accesses[0]
			if distance > bestDistance {
				best, bestDistance = id, distance
			}
		}
		// !infinite && bestInfinite: current candidate cannot beat an
		// infinite-distance best; nothing to do.
	}

	if best == -1 {
		return 0, false
	}
	delete(r.history, best)
	return best, true
}

// Size returns the number of frames currently tracked as evictable.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.history {
		if h.evictable {
			n++
		}
	}
	return n
}
