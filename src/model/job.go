package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const (
	// MinBlobSize is the smallest hashing blob (in bytes) a job may carry.
	MinBlobSize = 76
	// MaxBlobSize bounds hashing blobs accepted from a pool.
	MaxBlobSize = 128
	// JobIDSize is the number of job id characters compared on submit.
	JobIDSize = 64

	nonceOffset     = 39
	fixedByteOffset = nonceOffset + 3
)

// Job is one unit of work issued by a pool. Jobs are never mutated after
// construction, ForFixedByte hands out copies.
type Job struct {
	ID     string `json:"job_id"`
	Blob   string `json:"blob"`
	Target string `json:"target"`
	Height uint64 `json:"height,omitempty"`
	Algo   string `json:"algo,omitempty"`

	Diff uint64 `json:"-"`
	Pool string `json:"-"`
}

// NewJob validates the pool supplied fields and derives the difficulty from the
// compact target.
func NewJob(id, blob, target string, height uint64, algo, pool string) (*Job, error) {
	if id == "" {
		return nil, errors.New("job id is empty")
	}
	if err := validateBlob(blob); err != nil {
		return nil, err
	}
	diff, err := TargetToDiff(target)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:     id,
		Blob:   blob,
		Target: target,
		Height: height,
		Algo:   algo,
		Diff:   diff,
		Pool:   pool,
	}, nil
}

func validateBlob(blob string) error {
	if len(blob)%2 != 0 {
		return fmt.Errorf("blob has odd length %d", len(blob))
	}
	size := len(blob) / 2
	if size < MinBlobSize || size > MaxBlobSize {
		return fmt.Errorf("blob size %d out of range", size)
	}
	if _, err := hex.DecodeString(blob); err != nil {
		return errors.Wrap(err, "blob is not hex")
	}
	return nil
}

// TargetToDiff converts a little endian compact target (8 or 16 hex chars)
// into a share difficulty.
func TargetToDiff(target string) (uint64, error) {
	raw, err := hex.DecodeString(target)
	if err != nil {
		return 0, errors.Wrapf(err, "target %q is not hex", target)
	}
	switch len(raw) {
	case 4:
		t := binary.LittleEndian.Uint32(raw)
		if t == 0 {
			return 0, errors.New("zero target")
		}
		return uint64(math.MaxUint32 / t), nil
	case 8:
		t := binary.LittleEndian.Uint64(raw)
		if t == 0 {
			return 0, errors.New("zero target")
		}
		return math.MaxUint64 / t, nil
	}
	return 0, fmt.Errorf("unsupported target length %d", len(target))
}

func (j *Job) IsValid() bool {
	return j != nil && j.ID != "" && j.Diff > 0 && validateBlob(j.Blob) == nil
}

// ForFixedByte returns a copy of the job whose top nonce byte is pinned to b,
// which partitions the nonce space between miners sharing one upstream.
func (j *Job) ForFixedByte(b int) *Job {
	out := *j
	pos := fixedByteOffset * 2
	if len(j.Blob) >= pos+2 {
		out.Blob = j.Blob[:pos] + fmt.Sprintf("%02x", uint8(b)) + j.Blob[pos+2:]
	}
	return &out
}

// MatchesID compares at most JobIDSize characters of the two ids.
func (j *Job) MatchesID(id string) bool {
	return truncateID(j.ID) == truncateID(id)
}

func truncateID(id string) string {
	if len(id) > JobIDSize {
		return id[:JobIDSize]
	}
	return id
}
