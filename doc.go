// Package meshload turns large triangle-mesh files into renderable,
// spatially-bounded geometry buffers within a bounded time budget,
// without blocking the caller and without unbounded memory growth.
//
// The pipeline splits a file into record-aligned chunks, decodes them in
// parallel on a GPU compute path (when available) or a vectorized CPU
// path, reduces per-chunk bounds into a global bounding box, and streams
// ordered geometry plus progressive level-of-detail tiers to the caller.
//
// # Basic usage
//
//	coord := meshload.NewCoordinator(meshload.Options{})
//	defer coord.Close()
//
//	id, err := coord.Submit("session-1", "model.stl")
//	if err != nil {
//	    // meshload.ErrBusy while another load is running for the session
//	}
//	events, _ := coord.Events(id)
//	for ev := range events {
//	    switch ev.Kind {
//	    case meshload.EventGeometry: // ordered chunk output
//	    case meshload.EventLOD:      // progressive detail upgrade
//	    case meshload.EventCompleted:
//	    }
//	}
//
// # GPU acceleration
//
// GPU processing is opt-in via blank import, mirroring gg:
//
//	import _ "github.com/gogpu/meshload/gpu" // enables the wgpu compute path
//
// If GPU initialization or any per-chunk dispatch fails, processing falls
// back to the CPU path transparently; GPU failure is never fatal to a job.
package meshload
