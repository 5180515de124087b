package meshcore

import "fmt"

// JobID identifies one in-flight file load. IDs are opaque strings
// generated by the coordinator and unique per submission.
type JobID string

// JobStatus is the lifecycle state of a load job.
//
// Transitions are monotonic forward:
//
//	Pending -> Running -> {Completed | Failed | Cancelling -> Cancelled}
//
// A job that never passes format validation goes Pending -> Failed without
// entering Running.
type JobStatus int32

const (
	// StatusPending means the job has been accepted but no chunk work
	// has been scheduled yet.
	StatusPending JobStatus = iota

	// StatusRunning means chunk work is being dispatched.
	StatusRunning

	// StatusCancelling means cancellation was requested and the job is
	// waiting for in-flight chunk work to observe the flag.
	StatusCancelling

	// StatusCancelled is the terminal state after a cancellation drained.
	StatusCancelled

	// StatusFailed is the terminal state after a non-recoverable error.
	StatusFailed

	// StatusCompleted is the terminal state after all chunks merged.
	StatusCompleted
)

// String returns the status name.
func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusCancelling:
		return "Cancelling"
	case StatusCancelled:
		return "Cancelled"
	case StatusFailed:
		return "Failed"
	case StatusCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// Terminal reports whether the status is a terminal state.
// No resources may remain allocated once a job reaches a terminal state.
func (s JobStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusFailed || s == StatusCompleted
}

// Layout describes the fixed-size record format of an input file, as
// declared by a format detector. The pipeline is agnostic to the concrete
// triangle-mesh format as long as records are fixed-size and independently
// decodable.
//
// All offsets are in bytes. The three vertices of a record are consecutive
// 12-byte float32 triples starting at VertexOffset; the record normal is a
// 12-byte float32 triple at NormalOffset. Floats are little-endian.
type Layout struct {
	// RecordSize is the size of one record in bytes.
	RecordSize int

	// HeaderSize is the number of bytes preceding the first record.
	HeaderSize int64

	// RecordCount is the record count declared by the file header.
	RecordCount int64

	// NormalOffset is the byte offset of the record normal.
	NormalOffset int

	// VertexOffset is the byte offset of the first of three consecutive
	// vertices.
	VertexOffset int
}

// PayloadBytes returns the total record payload size in bytes.
func (l Layout) PayloadBytes() int64 {
	return l.RecordCount * int64(l.RecordSize)
}

// Chunk is a contiguous, record-aligned byte range of the input file.
// Chunks are created once by the planner and immutable afterwards; together
// they partition the record payload with no gaps or overlaps.
type Chunk struct {
	// ID is the chunk ordinal in file order, starting at 0.
	ID int

	// Start is the inclusive byte offset of the chunk in the file.
	Start int64

	// End is the exclusive byte offset. End-Start is always an exact
	// multiple of the record size.
	End int64

	// Records is the number of records in the chunk.
	Records int
}

// Bytes returns the chunk length in bytes.
func (c Chunk) Bytes() int64 { return c.End - c.Start }

// Backend is a snapshot of hardware capability, queried once per job at
// dispatch time and immutable for the job lifetime.
type Backend struct {
	// GPUAvailable reports whether a GPU processor is registered and
	// initialized.
	GPUAvailable bool

	// GPUMemoryBytes is the usable GPU memory budget, 0 when no GPU.
	GPUMemoryBytes uint64

	// CPUThreads is the number of logical CPU threads.
	CPUThreads int
}

// GeometryBuffer is the processed output for one chunk.
//
// Positions and Normals are flat arrays of 9 float32 per record (x,y,z for
// each of the three vertices; the record normal replicated per vertex).
// Validity holds one flag per record; invalid records are flagged, never
// dropped — downstream consumers decide whether to render them.
type GeometryBuffer struct {
	ChunkID  int
	Records  int
	Position []float32
	Normal   []float32
	Validity []bool

	// Bounds is the local bounding box over the chunk's finite
	// coordinates, computed in the same pass as decoding.
	Bounds Bounds
}

// SizeBytes returns the host memory footprint of the buffer's arrays.
// Used for budget accounting by the resource manager.
func (b *GeometryBuffer) SizeBytes() int64 {
	return int64(len(b.Position))*4 + int64(len(b.Normal))*4 + int64(len(b.Validity))
}

// ProgressPhase names the pipeline stage a progress report was taken in.
type ProgressPhase int32

const (
	// PhasePlanning covers format probing and chunk planning.
	PhasePlanning ProgressPhase = iota

	// PhaseProcessing covers chunk decode and merge.
	PhaseProcessing

	// PhaseFinalizing covers final LOD assembly and cleanup.
	PhaseFinalizing
)

// String returns the phase name.
func (p ProgressPhase) String() string {
	switch p {
	case PhasePlanning:
		return "planning"
	case PhaseProcessing:
		return "processing"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("unknown(%d)", int32(p))
	}
}

// ProgressReport is a point-in-time status snapshot for one job.
// Within a job, BytesProcessed and Percent are monotonically
// non-decreasing; consumers must tolerate repeated identical reports.
type ProgressReport struct {
	Job            JobID
	BytesProcessed int64
	TotalBytes     int64
	Percent        float64
	Phase          ProgressPhase
	FellBackToCPU  bool
}

// LODLevel is one decimation tier for progressive display. Level 0 is the
// coarsest tier and becomes available before the full load completes.
type LODLevel struct {
	// Level is the tier index, 0 = coarsest.
	Level int

	// TriangleBudget is the maximum triangle count for the tier.
	TriangleBudget int

	// SourceChunks lists the chunk IDs contributing to the tier,
	// in file order.
	SourceChunks []int
}
