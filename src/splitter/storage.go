package splitter

import (
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"github.com/pkg/errors"
)

// MaxMinersPerMapper is the number of distinct fixed nonce bytes.
const MaxMinersPerMapper = 256

var (
	ErrStorageFull    = errors.New("storage full")
	ErrDuplicateMiner = errors.New("miner already attached")
	ErrInvalidLogin   = errors.New("invalid login")
)

// Storage holds the miners attached to one mapper and the job they work on.
// It is only touched from the proxy event loop.
type Storage struct {
	active bool
	job    *model.Job
	miners map[int64]Miner
	used   [MaxMinersPerMapper]bool
	dead   []int
	index  int
}

func NewStorage() *Storage {
	return &Storage{
		miners: map[int64]Miner{},
	}
}

// Add gives the miner a free nonce slot and sends it the current job when one
// is usable.
func (s *Storage) Add(miner Miner, req *model.LoginRequest) error {
	if req == nil || req.Login == "" {
		return ErrInvalidLogin
	}
	if _, exists := s.miners[miner.ID()]; exists {
		return ErrDuplicateMiner
	}
	slot := s.nextSlot()
	if slot < 0 {
		return ErrStorageFull
	}

	s.used[slot] = true
	s.miners[miner.ID()] = miner
	miner.SetFixedByte(slot)

	if s.IsActive() {
		miner.SetJob(s.job.ForFixedByte(slot))
	}
	return nil
}

func (s *Storage) nextSlot() int {
	for i := 0; i < MaxMinersPerMapper; i++ {
		slot := (s.index + i) % MaxMinersPerMapper
		if !s.used[slot] {
			s.index = (slot + 1) % MaxMinersPerMapper
			return slot
		}
	}
	return -1
}

// Remove detaches the miner. Its slot stays reserved until the next job so no
// two miners ever search the same nonce range of one job.
func (s *Storage) Remove(miner Miner) {
	if _, exists := s.miners[miner.ID()]; !exists {
		return
	}
	delete(s.miners, miner.ID())

	slot := miner.FixedByte()
	if slot < 0 || slot >= MaxMinersPerMapper {
		return
	}
	if s.job == nil {
		s.used[slot] = false
		return
	}
	s.dead = append(s.dead, slot)
}

func (s *Storage) IsActive() bool {
	return s.active && s.job.IsValid()
}

func (s *Storage) IsUsed() bool {
	return len(s.miners) > 0
}

func (s *Storage) SetActive(active bool) {
	s.active = active
}

// SetJob replaces the job wholesale, recycles dead slots and pushes the new job
// to every attached miner.
func (s *Storage) SetJob(job *model.Job) {
	s.recycle()
	s.job = job
	if !job.IsValid() {
		return
	}
	for _, miner := range s.miners {
		miner.SetJob(job.ForFixedByte(miner.FixedByte()))
	}
}

// Reset drops the job and marks the storage inactive.
func (s *Storage) Reset() {
	s.active = false
	s.job = nil
	s.recycle()
}

func (s *Storage) recycle() {
	for _, slot := range s.dead {
		s.used[slot] = false
	}
	s.dead = s.dead[:0]
}

func (s *Storage) Miner(id int64) (Miner, bool) {
	miner, exists := s.miners[id]
	return miner, exists
}

func (s *Storage) Job() *model.Job {
	return s.job
}

func (s *Storage) Count() int {
	return len(s.miners)
}

// Dead is the number of slots waiting for the next job to be recycled.
func (s *Storage) Dead() int {
	return len(s.dead)
}
