package meshload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/meshload/internal/bounds"
	"github.com/gogpu/meshload/internal/lod"
	"github.com/gogpu/meshload/internal/resource"
	"github.com/gogpu/meshload/meshcore"
)

// cpuLanes is the number of concurrent chunk pipelines on the CPU path.
// Each lane overlaps its file read with decode work that runs on the
// shared worker pool, so total CPU usage stays bounded by the pool size.
const cpuLanes = 2

// hostBytesPerRecord is the host memory accounted per decoded record:
// 9 position floats, 9 normal floats, one validity byte.
const hostBytesPerRecord = 9*4 + 9*4 + 1

// gpuBytesPerRecord is the GPU memory accounted per record: the output
// arrays plus a validity word.
const gpuBytesPerRecord = 9*4 + 9*4 + 4

// errJobCancelled stops a worker lane cleanly when the cooperative
// cancellation flag is observed. Never surfaced to the caller.
var errJobCancelled = errors.New("meshload: job cancelled")

// chunkResult is one processed chunk travelling from a worker lane to
// the merge loop.
type chunkResult struct {
	buf   *meshcore.GeometryBuffer
	outH  *resource.Handle
	bytes int64
}

// loadJob is one in-flight file load. Chunks are immutable once planned;
// each GeometryBuffer is owned exclusively by one worker until merge;
// bounds and progress are mutated only by the merge loop.
type loadJob struct {
	id      meshcore.JobID
	session string
	path    string
	coord   *Coordinator
	log     *slog.Logger

	statusMu sync.Mutex
	status   meshcore.JobStatus

	cancelled atomic.Bool
	fellBack  atomic.Bool

	events   *eventQueue
	progress *progressFeed

	totalBytes     int64
	bytesProcessed int64 // merge loop only

	handleMu sync.Mutex
	handles  []*resource.Handle
}

func newLoadJob(id meshcore.JobID, session, path string, c *Coordinator) *loadJob {
	return &loadJob{
		id:       id,
		session:  session,
		path:     path,
		coord:    c,
		log:      Logger().With("job", string(id)),
		status:   meshcore.StatusPending,
		events:   newEventQueue(),
		progress: newProgressFeed(),
	}
}

// Status returns the job's current lifecycle state.
func (j *loadJob) Status() meshcore.JobStatus {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()
	return j.status
}

// setStatus advances the job state and reports whether the transition
// applied. Transitions are monotonic forward; attempts to move backward
// or out of a terminal state are ignored, and a job in Cancelling can
// only finish Cancelled.
func (j *loadJob) setStatus(s meshcore.JobStatus) bool {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()
	if j.status.Terminal() {
		return false
	}
	if s == meshcore.StatusCancelled && j.status != meshcore.StatusCancelling &&
		j.status != meshcore.StatusPending {
		// Running jobs pass through Cancelling first.
		return false
	}
	if j.status == meshcore.StatusCancelling && s != meshcore.StatusCancelled {
		return false
	}
	j.status = s
	return true
}

// cancel requests cooperative cancellation. Safe to call at any time and
// from any goroutine; finished jobs ignore it.
func (j *loadJob) cancel() {
	j.cancelled.Store(true)
	j.statusMu.Lock()
	if j.status == meshcore.StatusRunning {
		j.status = meshcore.StatusCancelling
	}
	j.statusMu.Unlock()
}

// run executes the whole job lifecycle. It is the only goroutine that
// moves the job into a terminal state.
func (j *loadJob) run() {
	j.publishProgress(meshcore.PhasePlanning)

	src, err := resource.OpenSource(j.path)
	if err != nil {
		j.fail(err)
		return
	}
	defer src.Close()

	layout, err := j.probe(src)
	if err != nil {
		// Format problems surface before any chunk work is scheduled;
		// the job never enters Running.
		j.fail(err)
		return
	}
	j.totalBytes = layout.PayloadBytes()

	backend := DetectHardware()
	if j.coord.opts.DisableGPU {
		backend.GPUAvailable = false
	}

	// Backpressure: observed memory pressure halves the planner's
	// target for this and subsequent plans.
	if j.coord.res.Host.Pressure() {
		j.coord.planner.Halve()
		j.log.Debug("memory pressure reported, chunk target halved")
	}

	chunks, err := j.coord.planner.Plan(layout, backend, j.coord.res.Host.Budget())
	if err != nil {
		j.fail(&FormatError{Path: j.path, Reason: err.Error()})
		return
	}
	j.log.Debug("chunk plan ready",
		"chunks", len(chunks), "records", layout.RecordCount, "gpu", backend.GPUAvailable)

	if j.cancelled.Load() {
		j.finishCancelled()
		return
	}
	if len(chunks) == 0 {
		j.complete(meshcore.NewBounds(), lod.NewManager(nil))
		return
	}

	j.setStatus(meshcore.StatusRunning)
	j.runPipeline(src, layout, backend, chunks)
}

// probe runs the format detector and cross-checks the declared layout
// against the file size, so a custom Format cannot hand the planner an
// inconsistent record grid.
func (j *loadJob) probe(src *resource.Source) (meshcore.Layout, error) {
	layout, err := j.coord.opts.Format.Probe(src.ReaderAt(), src.Size())
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = j.path
		}
		return meshcore.Layout{}, err
	}
	if layout.HeaderSize+layout.PayloadBytes() != src.Size() {
		return meshcore.Layout{}, &FormatError{
			Path: j.path,
			Reason: fmt.Sprintf("declared layout covers %d bytes but file is %d bytes",
				layout.HeaderSize+layout.PayloadBytes(), src.Size()),
		}
	}
	return layout, nil
}

// runPipeline dispatches chunk work across the CPU lanes and the single
// serialized GPU lane, and merges results in chunk order.
func (j *loadJob) runPipeline(src *resource.Source, layout meshcore.Layout, backend meshcore.Backend, chunks []meshcore.Chunk) {
	g, ctx := errgroup.WithContext(context.Background())

	feed := make(chan meshcore.Chunk)
	results := make(chan *chunkResult, len(chunks))

	// Producer: stops between chunks when cancellation is observed.
	g.Go(func() error {
		defer close(feed)
		for _, c := range chunks {
			if j.cancelled.Load() {
				return nil
			}
			select {
			case feed <- c:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	lanes := cpuLanes
	if lanes > len(chunks) {
		lanes = 1
	}
	for i := 0; i < lanes; i++ {
		g.Go(j.lane(ctx, src, layout, feed, results, false))
	}
	if backend.GPUAvailable && Processor() != nil {
		// GPU hardware does not benefit from concurrent kernel streams
		// for this workload; one lane serializes all dispatches.
		g.Go(j.lane(ctx, src, layout, feed, results, true))
	}

	groupDone := make(chan error, 1)
	go func() { groupDone <- g.Wait() }()

	j.mergeLoop(chunks, results, groupDone)
}

// lane returns one worker loop. A lane pulls chunks until the feed
// drains, checking the cancellation flag between chunks, never
// mid-chunk.
func (j *loadJob) lane(ctx context.Context, src *resource.Source, layout meshcore.Layout, feed <-chan meshcore.Chunk, results chan<- *chunkResult, gpu bool) func() error {
	return func() error {
		for c := range feed {
			if j.cancelled.Load() {
				return nil
			}
			res, err := j.processChunk(ctx, src, layout, c, gpu)
			if err != nil {
				if errors.Is(err, errJobCancelled) {
					return nil
				}
				return fmt.Errorf("chunk %d: %w", c.ID, err)
			}
			results <- res
		}
		return nil
	}
}

// processChunk reads and decodes one chunk. The GPU path is attempted
// first when requested; any GPU failure flags the job as degraded and
// retries the same chunk on the CPU, so GPU trouble is never fatal.
func (j *loadJob) processChunk(ctx context.Context, src *resource.Source, layout meshcore.Layout, c meshcore.Chunk, tryGPU bool) (*chunkResult, error) {
	rawH, err := j.acquireHost(ctx, c.Bytes())
	if err != nil {
		return nil, err
	}
	raw := make([]byte, c.Bytes())
	if err := j.readChunk(src, raw, c); err != nil {
		rawH.Release()
		return nil, err
	}

	outH, err := j.acquireHost(ctx, int64(c.Records)*hostBytesPerRecord)
	if err != nil {
		rawH.Release()
		return nil, err
	}

	req := ProcessRequest{Chunk: c, Layout: layout, Raw: raw}

	var buf *meshcore.GeometryBuffer
	if tryGPU {
		buf = j.processGPU(ctx, req)
	}
	if buf == nil {
		buf, err = j.coord.cpu.process(req)
		if err != nil {
			rawH.Release()
			outH.Release()
			return nil, err
		}
	}

	rawH.Release()
	return &chunkResult{buf: buf, outH: outH, bytes: c.Bytes()}, nil
}

// processGPU runs one chunk through the GPU processor. Returns nil on
// any failure, after flagging the job for CPU fallback.
func (j *loadJob) processGPU(ctx context.Context, req ProcessRequest) *meshcore.GeometryBuffer {
	p := Processor()
	if p == nil || !p.Ready() {
		return nil
	}

	gpuBytes := req.Chunk.Bytes() + int64(req.Chunk.Records)*gpuBytesPerRecord
	gh, err := j.coord.res.GPU.Acquire(gpuBytes)
	if err != nil {
		j.fellBack.Store(true)
		j.log.Warn("GPU memory budget exhausted, chunk falls back to CPU",
			"chunk", req.Chunk.ID, "err", err)
		return nil
	}
	defer gh.Release()

	gctx, cancel := context.WithTimeout(ctx, j.coord.opts.GPUTimeout)
	defer cancel()

	buf, err := p.ProcessChunk(gctx, req)
	if err != nil {
		j.fellBack.Store(true)
		j.log.Warn("GPU chunk processing failed, retrying on CPU",
			"chunk", req.Chunk.ID, "err", err)
		return nil
	}
	return buf
}

// readChunk reads a chunk's payload with one retry; a second failure is
// a persistent IO error and fails the job.
func (j *loadJob) readChunk(src *resource.Source, dst []byte, c meshcore.Chunk) error {
	err := src.ReadRange(dst, c.Start)
	if err == nil {
		return nil
	}
	j.log.Warn("chunk read failed, retrying once", "chunk", c.ID, "err", err)
	if err = src.ReadRange(dst, c.Start); err != nil {
		return fmt.Errorf("persistent read failure: %w", err)
	}
	return nil
}

// acquireHost reserves host budget, waiting while the ledger is full so
// that the number of chunks in flight stays bounded. Observes the
// cancellation flag between attempts.
func (j *loadJob) acquireHost(ctx context.Context, bytes int64) (*resource.Handle, error) {
	for {
		h, err := j.coord.res.Host.Acquire(bytes)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, resource.ErrOutOfMemory) {
			return nil, err
		}
		if j.cancelled.Load() {
			return nil, errJobCancelled
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// mergeLoop reorders completed chunks into file order, folds bounds,
// advances progress, and drives LOD upgrades. It also owns the stall
// watchdog: a job with no chunk completion inside the stall window fails
// instead of hanging.
func (j *loadJob) mergeLoop(chunks []meshcore.Chunk, results <-chan *chunkResult, groupDone <-chan error) {
	acc := bounds.NewAccumulator()
	lodMgr := lod.NewManager(chunks)
	pending := make(map[int]*chunkResult, len(chunks))
	next := 0

	stall := time.NewTimer(j.coord.opts.StallTimeout)
	defer stall.Stop()

	var failure error
	groupFinished := false

loop:
	for next < len(chunks) {
		select {
		case r := <-results:
			if !stall.Stop() {
				<-stall.C
			}
			stall.Reset(j.coord.opts.StallTimeout)

			pending[r.buf.ChunkID] = r
			next = j.mergeReady(pending, next, acc, lodMgr)

			if j.cancelled.Load() {
				break loop
			}

		case err := <-groupDone:
			groupFinished = true
			if err != nil {
				failure = err
				break loop
			}
			// Drain anything the lanes delivered before finishing.
			for {
				select {
				case r := <-results:
					pending[r.buf.ChunkID] = r
					next = j.mergeReady(pending, next, acc, lodMgr)
					continue
				default:
				}
				break
			}
			if next < len(chunks) {
				// Lanes stopped early: only cancellation does that
				// without an error.
				break loop
			}

		case <-stall.C:
			failure = fmt.Errorf("%w (%s without chunk completion)", ErrStalled, j.coord.opts.StallTimeout)
			j.cancelled.Store(true)
			break loop
		}
	}

	// Wait for in-flight chunk work to observe the flag before touching
	// shared state; worst case is one chunk's processing time.
	if !groupFinished {
		if err := <-groupDone; err != nil && failure == nil && !j.cancelled.Load() {
			failure = err
		}
	}
	j.drainResults(results, pending)

	switch {
	case failure != nil:
		j.fail(failure)
	case j.cancelled.Load() && next < len(chunks):
		j.finishCancelled()
	default:
		j.complete(acc.Result(), lodMgr)
	}
}

// mergeReady forwards every consecutively-ready chunk starting at next:
// bounds fold, progress advance, geometry event, LOD check. Returns the
// new next index. Ordering here is what guarantees monotonic progress
// and downstream vertex-index continuity.
func (j *loadJob) mergeReady(pending map[int]*chunkResult, next int, acc *bounds.Accumulator, lodMgr *lod.Manager) int {
	for {
		// An acknowledged cancel stops the merge mid-sweep; undelivered
		// results stay in pending and are drained by the terminal path.
		if j.cancelled.Load() {
			return next
		}
		r, ok := pending[next]
		if !ok {
			return next
		}
		delete(pending, next)

		acc.Consume(r.buf)
		j.trackHandle(r.outH)
		j.bytesProcessed += r.bytes

		j.events.push(Event{Kind: EventGeometry, Job: j.id, Geometry: r.buf})
		j.publishProgress(meshcore.PhaseProcessing)

		lodMgr.CapLevels(j.coord.res.Host.Pressure())
		if lvl := lodMgr.ChunkCompleted(r.buf.ChunkID, acc.Result()); lvl != nil {
			j.events.push(Event{Kind: EventLOD, Job: j.id, LOD: lvl})
		}
		next++
	}
}

// drainResults releases handles of results that arrived after the loop
// decided the job's fate.
func (j *loadJob) drainResults(results <-chan *chunkResult, pending map[int]*chunkResult) {
	for {
		select {
		case r := <-results:
			j.trackHandle(r.outH)
		default:
			for _, r := range pending {
				j.trackHandle(r.outH)
			}
			return
		}
	}
}

func (j *loadJob) trackHandle(h *resource.Handle) {
	if h == nil {
		return
	}
	j.handleMu.Lock()
	j.handles = append(j.handles, h)
	j.handleMu.Unlock()
}

// releaseAll returns every tracked acquisition to the ledgers. Runs on
// every terminal transition; Handle.Release is idempotent so double
// release on racy paths is harmless.
func (j *loadJob) releaseAll() {
	j.handleMu.Lock()
	handles := j.handles
	j.handles = nil
	j.handleMu.Unlock()
	for _, h := range handles {
		h.Release()
	}
}

func (j *loadJob) publishProgress(phase meshcore.ProgressPhase) {
	rep := meshcore.ProgressReport{
		Job:            j.id,
		BytesProcessed: j.bytesProcessed,
		TotalBytes:     j.totalBytes,
		Phase:          phase,
		FellBackToCPU:  j.fellBack.Load(),
	}
	if j.totalBytes > 0 {
		rep.Percent = float64(j.bytesProcessed) / float64(j.totalBytes) * 100
	}
	j.progress.publish(rep)
}

func (j *loadJob) complete(box meshcore.Bounds, lodMgr *lod.Manager) {
	if !j.setStatus(meshcore.StatusCompleted) {
		// A cancel was acknowledged while the last chunks merged; the
		// job must finish Cancelled, never Completed.
		j.finishCancelled()
		return
	}
	j.publishProgress(meshcore.PhaseFinalizing)
	if final := lodMgr.Final(); final != nil && j.totalBytes > 0 {
		j.events.push(Event{Kind: EventLOD, Job: j.id, LOD: final})
	}
	j.releaseAll()
	j.events.push(Event{Kind: EventCompleted, Job: j.id, Bounds: box})
	j.progress.close()
	j.log.Info("load completed",
		"bytes", j.bytesProcessed, "fell_back_to_cpu", j.fellBack.Load())
}

func (j *loadJob) fail(err error) {
	if !j.setStatus(meshcore.StatusFailed) {
		// Cancellation in flight wins over a late failure.
		j.log.Warn("load error during cancellation", "err", err)
		j.finishCancelled()
		return
	}
	j.releaseAll()
	j.events.push(Event{Kind: EventFailed, Job: j.id, Err: err})
	j.progress.close()
	j.log.Warn("load failed", "err", err)
}

func (j *loadJob) finishCancelled() {
	j.setStatus(meshcore.StatusCancelled)
	j.releaseAll()
	j.events.push(Event{Kind: EventCancelled, Job: j.id})
	j.progress.close()
	j.log.Info("load cancelled", "bytes", j.bytesProcessed)
}
