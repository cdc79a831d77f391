package splitter

import (
	"testing"

	"github.com/pkg/errors"
)

func TestStorageAssignsDistinctSlots(t *testing.T) {
	s := NewStorage()
	seen := map[int]bool{}
	for i := int64(0); i < MaxMinersPerMapper; i++ {
		miner := newFakeMiner(i)
		if err := s.Add(miner, login(i, "w")); err != nil {
			t.Fatalf("miner %d: %s", i, err)
		}
		if seen[miner.FixedByte()] {
			t.Fatalf("slot %d handed out twice", miner.FixedByte())
		}
		seen[miner.FixedByte()] = true
	}
	if err := s.Add(newFakeMiner(999), login(999, "w")); !errors.Is(err, ErrStorageFull) {
		t.Fatalf("expected full storage, got %v", err)
	}
}

func TestStorageRejectsDuplicates(t *testing.T) {
	s := NewStorage()
	miner := newFakeMiner(1)
	if err := s.Add(miner, login(1, "w")); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(miner, login(2, "w")); !errors.Is(err, ErrDuplicateMiner) {
		t.Fatalf("expected duplicate miner, got %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("expected one miner, got %d", s.Count())
	}
}

func TestStorageDeadSlotsWaitForNextJob(t *testing.T) {
	s := NewStorage()
	s.SetActive(true)
	s.SetJob(testJob(t, "1"))

	miners := make([]*fakeMiner, MaxMinersPerMapper)
	for i := range miners {
		miners[i] = newFakeMiner(int64(i))
		if err := s.Add(miners[i], login(i, "w")); err != nil {
			t.Fatal(err)
		}
	}
	s.Remove(miners[10])
	if s.Dead() != 1 {
		t.Fatalf("expected one dead slot, got %d", s.Dead())
	}
	// the slot is still in use for the current job
	if err := s.Add(newFakeMiner(1000), login(1000, "w")); !errors.Is(err, ErrStorageFull) {
		t.Fatalf("dead slot reused within the same job: %v", err)
	}

	s.SetJob(testJob(t, "2"))
	late := newFakeMiner(1001)
	if err := s.Add(late, login(1001, "w")); err != nil {
		t.Fatalf("dead slot not recycled: %s", err)
	}
	if late.FixedByte() != miners[10].FixedByte() {
		t.Fatalf("expected recycled slot %d, got %d", miners[10].FixedByte(), late.FixedByte())
	}
}

func TestStorageFreesSlotWithoutJob(t *testing.T) {
	s := NewStorage()
	miner := newFakeMiner(1)
	if err := s.Add(miner, login(1, "w")); err != nil {
		t.Fatal(err)
	}
	s.Remove(miner)
	if s.Dead() != 0 {
		t.Fatalf("slot parked without a job: %d dead", s.Dead())
	}
}

func TestStorageSendsJobs(t *testing.T) {
	s := NewStorage()
	early := newFakeMiner(1)
	if err := s.Add(early, login(1, "w")); err != nil {
		t.Fatal(err)
	}
	if len(early.jobs) != 0 {
		t.Fatal("inactive storage sent a job")
	}

	s.SetActive(true)
	s.SetJob(testJob(t, "1"))
	late := newFakeMiner(2)
	if err := s.Add(late, login(2, "w")); err != nil {
		t.Fatal(err)
	}

	for _, miner := range []*fakeMiner{early, late} {
		if len(miner.jobs) != 1 {
			t.Fatalf("miner %d got %d jobs", miner.id, len(miner.jobs))
		}
		pos := fixedBytePos()
		got := miner.jobs[0].Blob[pos : pos+2]
		if want := hexByte(miner.FixedByte()); got != want {
			t.Fatalf("miner %d: expected fixed byte %s, got %s", miner.id, want, got)
		}
	}
}

func TestStorageReset(t *testing.T) {
	s := NewStorage()
	s.SetActive(true)
	s.SetJob(testJob(t, "1"))
	if !s.IsActive() {
		t.Fatal("expected active storage")
	}
	s.Reset()
	if s.IsActive() || s.Job() != nil {
		t.Fatal("reset kept state")
	}
}

func fixedBytePos() int {
	return 42 * 2
}

func hexByte(b int) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}
