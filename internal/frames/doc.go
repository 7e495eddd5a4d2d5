// Package frames samples a local video into evenly spaced JPEG stills grouped
// into fixed-duration chunks.
//
// Planning is pure arithmetic (see Plan) so callers can preview how many frames
// and requests a clip will cost. Extraction shells out to ffprobe for metadata
// and to ffmpeg for each sample, bounded by a concurrency limit.
package frames
