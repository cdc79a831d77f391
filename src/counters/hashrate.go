package counters

import (
	"sync"
	"time"
)

// HashrateWindows are the reporting windows printed every tick.
var HashrateWindows = []time.Duration{
	time.Minute,
	10 * time.Minute,
	time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

const ringSeconds = 24 * 60 * 60

// hashRing accumulates accepted difficulty in one second buckets covering the
// largest reporting window.
type hashRing struct {
	lock    sync.Mutex
	buckets [ringSeconds]uint64
	stamps  [ringSeconds]int64
}

func newHashRing() *hashRing {
	return &hashRing{}
}

func (r *hashRing) add(now time.Time, diff uint64) {
	sec := now.Unix()
	idx := sec % ringSeconds
	r.lock.Lock()
	if r.stamps[idx] != sec {
		r.stamps[idx] = sec
		r.buckets[idx] = 0
	}
	r.buckets[idx] += diff
	r.lock.Unlock()
}

func (r *hashRing) sum(now time.Time, seconds int64) uint64 {
	if seconds > ringSeconds {
		seconds = ringSeconds
	}
	end := now.Unix()
	total := uint64(0)
	r.lock.Lock()
	defer r.lock.Unlock()
	for sec := end - seconds + 1; sec <= end; sec++ {
		idx := sec % ringSeconds
		if r.stamps[idx] == sec {
			total += r.buckets[idx]
		}
	}
	return total
}
