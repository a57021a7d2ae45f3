package jobs

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

type Executor func(ctx context.Context, job *TranslationJob) (string, error)

// DoneFunc receives the terminal snapshot of a job, including its subscribers.
type DoneFunc func(job *TranslationJob)

// Queue runs translation jobs on a fixed worker pool. Jobs are deduplicated
// by caption text while pending or running.
type Queue struct {
	workerCount int
	maxJobs     int

	mu         sync.RWMutex
	jobs       map[string]*TranslationJob
	dedupe     map[string]string
	idCounter  uint64
	started    bool
	pendingIDs chan string
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewQueue(workerCount int) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		workerCount: workerCount,
		maxJobs:     1000,
		jobs:        make(map[string]*TranslationJob),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		stopCh:      make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Enqueue returns the job for req.Text and whether it was newly created.
// A request for text that already has an outstanding job subscribes the
// client to that job instead.
func (q *Queue) Enqueue(req EnqueueRequest) (*TranslationJob, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[req.Text]; ok {
		if existing, exists := q.jobs[id]; exists {
			if req.ClientID != "" && !slices.Contains(existing.Subscribers, req.ClientID) {
				existing.Subscribers = append(existing.Subscribers, req.ClientID)
				existing.UpdatedAt = now
			}
			snapshot := cloneJob(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, req.Text)
	}

	id := fmt.Sprintf("job-%d", atomic.AddUint64(&q.idCounter, 1))
	job := &TranslationJob{
		ID:        id,
		Text:      req.Text,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.ClientID != "" {
		job.Subscribers = []string{req.ClientID}
	}

	q.jobs[id] = job
	q.dedupe[req.Text] = id
	started := q.started
	snapshot := cloneJob(job)
	q.mu.Unlock()

	if started {
		q.enqueuePendingID(id)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*TranslationJob, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

func (q *Queue) List() []*TranslationJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]*TranslationJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

// Outstanding counts pending and running jobs.
func (q *Queue) Outstanding() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.dedupe)
}

func (q *Queue) Start(exec Executor, done DoneFunc) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]string, 0)
	for id, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, id)
		}
	}
	q.mu.Unlock()

	for _, id := range pending {
		q.enqueuePendingID(id)
	}

	if done == nil {
		done = func(*TranslationJob) {}
	}
	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec, done)
	}
}

func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		close(q.stopCh)
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor, done DoneFunc) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.pendingIDs:
			job, ok := q.markRunning(id)
			if !ok {
				continue
			}

			result, err := exec(q.ctx, job)
			if err != nil {
				done(q.markFailed(id, err))
				continue
			}
			done(q.markSuccess(id, result))
		}
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() { q.pendingIDs <- id }()
	}
}

func (q *Queue) markRunning(id string) (*TranslationJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	return cloneJob(job), true
}

func (q *Queue) markSuccess(id string, result string) *TranslationJob {
	return q.finish(id, func(job *TranslationJob) {
		job.Status = StatusSuccess
		job.Result = result
		job.Error = ""
	})
}

func (q *Queue) markFailed(id string, err error) *TranslationJob {
	return q.finish(id, func(job *TranslationJob) {
		job.Status = StatusFailed
		job.Cause = err
		if err != nil {
			job.Error = err.Error()
		}
	})
}

func (q *Queue) finish(id string, update func(*TranslationJob)) *TranslationJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil
	}
	update(job)
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	if pruned := q.pruneTerminalJobsLocked(); len(pruned) > 0 {
		log.Debug("Pruned %d finished translation jobs", len(pruned))
	}
	return cloneJob(job)
}

func (q *Queue) releaseDedupeLocked(job *TranslationJob) {
	if job == nil {
		return
	}
	if id, ok := q.dedupe[job.Text]; ok && id == job.ID {
		delete(q.dedupe, job.Text)
	}
}

func (q *Queue) pruneTerminalJobsLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(q.jobs))
	for id, job := range q.jobs {
		if job == nil || !job.Status.Terminal() {
			continue
		}
		terminal = append(terminal, candidate{id: id, updatedAt: job.UpdatedAt})
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := min(len(q.jobs)-q.maxJobs, len(terminal))
	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		id := terminal[i].id
		q.releaseDedupeLocked(q.jobs[id])
		delete(q.jobs, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func cloneJob(job *TranslationJob) *TranslationJob {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Subscribers = slices.Clone(job.Subscribers)
	return &tmp
}
