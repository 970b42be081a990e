package sheet

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// SyncAdapter is the realtime collaboration store shared by every operator
// editing the same session. Writes must be idempotent overwrites; delivery
// only needs to be eventual.
type SyncAdapter interface {
	LoadBlocks(ctx context.Context) ([]Block, error)
	PushBlocks(ctx context.Context, blocks []Block) error
	LoadEditLedger(ctx context.Context) (LedgerSnapshot, error)
	RecordEdit(ctx context.Context, key ItemKey, record EditRecord) error
	LoadResolutions(ctx context.Context) (map[ItemKey]Resolution, error)
	RecordResolution(ctx context.Context, key ItemKey, resolution Resolution) error
	ClearResolutions(ctx context.Context) error
	IsLocked(ctx context.Context) (bool, error)
	EditingUsers(ctx context.Context) ([]string, error)
}

// SyncPhase is the editor's position in its sync lifecycle.
type SyncPhase int

const (
	// PhaseClosed: not opened yet.
	PhaseClosed SyncPhase = iota
	// PhaseInitializing: remote state is merged into local state, once.
	PhaseInitializing
	// PhaseSteady: local state is authoritative and remote is a write target.
	PhaseSteady
)

func (p SyncPhase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseSteady:
		return "steady"
	default:
		return "closed"
	}
}

type syncJob struct {
	name    string
	run     func(ctx context.Context) error
	onError func(err error)
}

// syncQueue runs store writes on one background goroutine, in submission
// order, so editing never waits on the network or the disk.
type syncQueue struct {
	jobs    chan syncJob
	pending sync.WaitGroup
	done    chan struct{}
	timeout time.Duration
	once    sync.Once
}

func newSyncQueue(timeout time.Duration) *syncQueue {
	q := &syncQueue{
		jobs:    make(chan syncJob, 256),
		done:    make(chan struct{}),
		timeout: timeout,
	}
	go q.loop()
	return q
}

func (q *syncQueue) loop() {
	defer close(q.done)
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := job.run(ctx)
		cancel()
		if err != nil {
			log.Warn("Sync write failed, will retry on next change", "job", job.name, "error", err)
			if job.onError != nil {
				job.onError(err)
			}
		}
		q.pending.Done()
	}
}

func (q *syncQueue) enqueue(job syncJob) {
	q.pending.Add(1)
	q.jobs <- job
}

// flush waits for every queued write to finish.
func (q *syncQueue) flush() {
	q.pending.Wait()
}

func (q *syncQueue) close() {
	q.once.Do(func() {
		close(q.jobs)
		<-q.done
	})
}
