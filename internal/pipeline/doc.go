// Package pipeline sends extracted chunks to the analyzer one at a time and
// folds each reply into a running accumulator.
//
// Chunks are processed strictly in index order. Each call is wrapped in the
// retry policy; a chunk that still fails stops the run and the partial
// accumulator is returned alongside a *ChunkError.
package pipeline
