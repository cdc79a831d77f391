package sharelog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type memorySink struct {
	lock    sync.Mutex
	shares  []Share
	pruned  []time.Time
	failing bool
}

func (ms *memorySink) Name() string {
	return "memory"
}

func (ms *memorySink) Write(ctx context.Context, shares []Share) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	if ms.failing {
		return errors.New("sink down")
	}
	ms.shares = append(ms.shares, shares...)
	return nil
}

func (ms *memorySink) Prune(ctx context.Context, before time.Time) (int64, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.pruned = append(ms.pruned, before)
	kept := ms.shares[:0]
	for _, s := range ms.shares {
		if !s.Time.Before(before) {
			kept = append(kept, s)
		}
	}
	removed := int64(len(ms.shares) - len(kept))
	ms.shares = kept
	return removed, nil
}

func (ms *memorySink) Ping(ctx context.Context) error {
	return nil
}

func (ms *memorySink) snapshot() []Share {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return append([]Share(nil), ms.shares...)
}

func testShares(count int) []Share {
	base := time.Unix(1700000000, 0).UTC()
	out := make([]Share, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, Share{
			Time:     base.Add(time.Duration(i) * time.Second),
			Mapper:   i % 3,
			Worker:   "rig",
			Pool:     "pool.example.com:3333",
			Diff:     uint64(1000 + i),
			Accepted: i%5 != 0,
		})
	}
	return out
}

func TestJournalFlushesOnShutdown(t *testing.T) {
	primary, broken := &memorySink{}, &memorySink{failing: true}
	journal := NewJournal(zap.NewNop(), primary, broken)
	shares := testShares(600)
	for _, s := range shares {
		journal.Record(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		journal.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("journal did not stop")
	}

	if d := cmp.Diff(shares, primary.snapshot()); d != "" {
		t.Fatalf("unexpected shares: %s", d)
	}
	if journal.Dropped() != 0 {
		t.Fatalf("dropped %d shares", journal.Dropped())
	}
}

func TestJournalFlushesOnTimer(t *testing.T) {
	sink := &memorySink{}
	journal := NewJournal(zap.NewNop(), sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go journal.Run(ctx)

	journal.Record(testShares(1)[0])
	deadline := time.Now().Add(5 * time.Second)
	for len(sink.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("share never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJournalDropsWhenFull(t *testing.T) {
	journal := NewJournal(zap.NewNop(), &memorySink{})
	for _, s := range testShares(journalQueueSize + 10) {
		journal.Record(s)
	}
	if journal.Dropped() != 10 {
		t.Fatalf("expected 10 dropped shares, got %d", journal.Dropped())
	}
}

func TestPruneShares(t *testing.T) {
	sink := &memorySink{}
	shares := testShares(10)
	sink.Write(context.Background(), shares)

	before := shares[4].Time
	PruneShares(context.Background(), before, zap.NewNop(), []Sink{sink})

	if d := cmp.Diff(shares[4:], sink.snapshot()); d != "" {
		t.Fatalf("unexpected shares after prune: %s", d)
	}
	if d := cmp.Diff([]time.Time{before}, sink.pruned); d != "" {
		t.Fatalf("unexpected prune calls: %s", d)
	}
}
