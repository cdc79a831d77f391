package splitter

import (
	"strings"
	"testing"
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/counters"
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"github.com/onemorebsmith/stratum-proxy/src/sharelog"
	"github.com/onemorebsmith/stratum-proxy/src/upstream"
	"go.uber.org/zap"
)

var testPool = upstream.ConnInfo{ID: 0, Host: "pool.example.com:3333", IP: "10.0.0.1"}

type fakeStrategy struct {
	listener  upstream.Listener
	connects  int
	stops     int
	seq       int64
	unusable  bool
	submitted []model.JobResult
}

func (f *fakeStrategy) Connect() {
	f.connects++
}

func (f *fakeStrategy) Stop() {
	f.stops++
	f.listener.OnPause(f)
}

func (f *fakeStrategy) Submit(result *model.JobResult) int64 {
	if f.unusable {
		return -1
	}
	f.seq++
	f.submitted = append(f.submitted, *result)
	return f.seq
}

func (f *fakeStrategy) IsActive() bool {
	return !f.unusable
}

type fakeFactory struct {
	strategies map[int]*fakeStrategy
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{strategies: map[int]*fakeStrategy{}}
}

func (ff *fakeFactory) build(id int, listener upstream.Listener) upstream.Strategy {
	s := &fakeStrategy{listener: listener}
	ff.strategies[id] = s
	return s
}

type reply struct {
	ID     any
	Reason string
	Status string
}

type fakeMiner struct {
	id        int64
	login     string
	mapperID  int
	fixedByte int
	jobs      []*model.Job
	replies   []reply
}

func newFakeMiner(id int64) *fakeMiner {
	return &fakeMiner{id: id, login: "worker", mapperID: -1, fixedByte: -1}
}

func (m *fakeMiner) ID() int64             { return m.id }
func (m *fakeMiner) Login() string         { return m.login }
func (m *fakeMiner) MapperID() int         { return m.mapperID }
func (m *fakeMiner) SetMapperID(id int)    { m.mapperID = id }
func (m *fakeMiner) FixedByte() int        { return m.fixedByte }
func (m *fakeMiner) SetFixedByte(b int)    { m.fixedByte = b }
func (m *fakeMiner) SetJob(job *model.Job) { m.jobs = append(m.jobs, job) }

func (m *fakeMiner) Reject(id any, reason string) {
	m.replies = append(m.replies, reply{ID: id, Reason: reason})
}

func (m *fakeMiner) Success(id any, status string) {
	m.replies = append(m.replies, reply{ID: id, Status: status})
}

type fakeRecorder struct {
	shares []sharelog.Share
}

func (r *fakeRecorder) Record(share sharelog.Share) {
	r.shares = append(r.shares, share)
}

type fixture struct {
	factory  *fakeFactory
	counters *counters.Counters
	recorder *fakeRecorder
	now      time.Time
	opts     Options
}

func newFixture() *fixture {
	f := &fixture{
		factory:  newFakeFactory(),
		counters: counters.NewCounters(zap.NewNop(), false),
		recorder: &fakeRecorder{},
		now:      time.Unix(1700000000, 0),
	}
	f.opts = Options{
		Factory:  f.factory.build,
		Counters: f.counters,
		Recorder: f.recorder,
		Logger:   zap.NewNop(),
		Now:      func() time.Time { return f.now },
	}
	return f
}

func testBlob() string {
	return strings.Repeat("0", model.MinBlobSize*2)
}

func testJob(t *testing.T, id string) *model.Job {
	t.Helper()
	job, err := model.NewJob(id, testBlob(), "ffffff00", 1, "rx/0", testPool.Host)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func login(id any, name string) *model.LoginRequest {
	return &model.LoginRequest{ID: id, Login: name, Password: "x"}
}

func submit(id any, jobID string) *model.JobResult {
	return &model.JobResult{
		ID:     id,
		JobID:  jobID,
		Nonce:  "deadbeef",
		Result: strings.Repeat("a", 64),
	}
}

// activeMapper returns a connected mapper that already received job "1".
func activeMapper(t *testing.T, f *fixture, id int) (*Mapper, *fakeStrategy) {
	t.Helper()
	m := NewMapper(id, f.opts)
	m.connect()
	m.OnActive(testPool)
	m.OnJob(testPool, testJob(t, "1"))
	return m, f.factory.strategies[id]
}
