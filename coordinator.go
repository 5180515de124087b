package meshload

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/meshload/internal/parallel"
	"github.com/gogpu/meshload/internal/plan"
	"github.com/gogpu/meshload/internal/resource"
	"github.com/gogpu/meshload/meshcore"
)

// Coordinator owns the load job lifecycle: it schedules chunk work
// across the worker pool and the serialized GPU queue, merges results in
// file order, emits progress, and honors cancellation.
//
// A Coordinator enforces a single active job per caller session; a
// second Submit for the same session returns ErrBusy instead of queuing.
// Independent Coordinators are fully isolated, which keeps tests free of
// global state.
//
// Coordinator is safe for concurrent use.
type Coordinator struct {
	opts    Options
	pool    *parallel.Pool
	res     *resource.Manager
	planner *plan.Planner
	cpu     *cpuProcessor

	mu       sync.Mutex
	closed   bool
	sessions map[string]*loadJob
	jobs     map[meshcore.JobID]*loadJob
}

// MemoryUsage is a snapshot of the coordinator's budget ledgers.
type MemoryUsage struct {
	HostBudgetBytes      int64
	HostOutstandingBytes int64
	GPUOutstandingBytes  int64
}

// NewCoordinator creates a coordinator. Hardware is probed once here to
// size the worker pool and the host memory budget; per-job capability
// snapshots are still taken fresh at each dispatch.
func NewCoordinator(opts Options) *Coordinator {
	opts = opts.withDefaults()

	host := resource.DetectHost()
	workers := opts.Workers
	if workers <= 0 {
		workers = host.Threads
	}
	budget := opts.HostBudgetBytes
	if budget <= 0 {
		budget = resource.SuggestHostBudget(host)
	}

	var gpuBudget int64
	if p := Processor(); p != nil && p.Ready() {
		gpuBudget = int64(p.MemoryBytes())
	}

	pool := parallel.NewPool(workers)
	return &Coordinator{
		opts:     opts,
		pool:     pool,
		res:      resource.NewManager(budget, gpuBudget),
		planner:  plan.NewPlanner(opts.MaxChunkBytes),
		cpu:      newCPUProcessor(pool),
		sessions: make(map[string]*loadJob),
		jobs:     make(map[meshcore.JobID]*loadJob),
	}
}

// Submit starts loading the file at path for the given caller session.
// It returns immediately with the new job's ID, or ErrBusy while another
// job is still active for the session.
func (c *Coordinator) Submit(session, path string) (meshcore.JobID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrCoordinatorClosed
	}
	if active := c.sessions[session]; active != nil && !active.Status().Terminal() {
		return "", ErrBusy
	}

	id := meshcore.JobID(uuid.NewString())
	job := newLoadJob(id, session, path, c)
	c.sessions[session] = job
	c.jobs[id] = job

	go job.run()
	return id, nil
}

// Cancel requests cancellation of a job. The call never blocks: the job
// transitions to Cancelling immediately and reaches Cancelled once
// in-flight chunk work has observed the flag (checked between chunks,
// not mid-chunk). Cancelling a finished job is an acknowledged no-op.
func (c *Coordinator) Cancel(id meshcore.JobID) error {
	job, err := c.lookup(id)
	if err != nil {
		return err
	}
	job.cancel()
	return nil
}

// Status returns the job's lifecycle state.
func (c *Coordinator) Status(id meshcore.JobID) (meshcore.JobStatus, error) {
	job, err := c.lookup(id)
	if err != nil {
		return 0, err
	}
	return job.Status(), nil
}

// Events returns the job's output stream: geometry buffers strictly in
// chunk order, LOD upgrades, and exactly one terminal event, after which
// the channel is closed.
func (c *Coordinator) Events(id meshcore.JobID) (<-chan Event, error) {
	job, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return job.events.channel(), nil
}

// Progress returns the job's push-based progress stream. The stream is
// conflated: the latest report wins, and consumers may observe repeated
// percent values. The channel closes when the job reaches a terminal
// state.
func (c *Coordinator) Progress(id meshcore.JobID) (<-chan meshcore.ProgressReport, error) {
	job, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return job.progress.ch, nil
}

// Report returns the job's most recent progress report.
func (c *Coordinator) Report(id meshcore.JobID) (meshcore.ProgressReport, error) {
	job, err := c.lookup(id)
	if err != nil {
		return meshcore.ProgressReport{}, err
	}
	return job.progress.Latest(), nil
}

// MemoryUsage returns the current budget ledger snapshot. After every
// terminal job state the outstanding counts return to the pre-job level;
// repeated load/cancel cycles must show no net growth.
func (c *Coordinator) MemoryUsage() MemoryUsage {
	host := c.res.Host.Stats()
	gpu := c.res.GPU.Stats()
	return MemoryUsage{
		HostBudgetBytes:      host.BudgetBytes,
		HostOutstandingBytes: host.OutstandingBytes,
		GPUOutstandingBytes:  gpu.OutstandingBytes,
	}
}

// Close cancels all active jobs and shuts down the worker pool. Close
// does not wait for cancellations to drain; job resources are released
// by each job's own terminal transition.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	jobs := make([]*loadJob, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	c.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	c.pool.Close()
	c.res.Close()
}

func (c *Coordinator) lookup(id meshcore.JobID) (*loadJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[id]
	if !ok {
		return nil, ErrUnknownJob
	}
	return job, nil
}
