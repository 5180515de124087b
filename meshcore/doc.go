// Package meshcore defines the shared value types of the meshload pipeline.
//
// The root meshload package and its internal machinery (planner, reducer,
// CPU and GPU record processors, LOD manager) all speak in terms of these
// types: a [Layout] describes the fixed-size record format declared by a
// format detector, a [Chunk] is a record-aligned byte range of the input
// file, and a [GeometryBuffer] is the processed output for one chunk.
//
// Keeping the types in a leaf package lets internal packages share them
// without importing the coordinator, mirroring how gg splits gpucore out
// of its rendering pipeline.
package meshcore
