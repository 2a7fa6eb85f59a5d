// Package stream splits large per-cell or per-sample arrays into fixed-size
// chunks for transports that cannot send them whole.
//
// Chunks are sub-slices of the input, not copies. The consumer owns pacing:
// the iterator produces the next chunk only when asked for it.
package stream

import "iter"

// DefaultChunkSize is used when a caller passes a non-positive size.
const DefaultChunkSize = 4096

// Chunks yields (offset, chunk) pairs covering values in order. Every chunk
// holds exactly size elements except possibly the last. An empty input
// yields nothing.
func Chunks[T any](values []T, size int) iter.Seq2[int, []T] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func(int, []T) bool) {
		for off := 0; off < len(values); off += size {
			end := min(off+size, len(values))
			if !yield(off, values[off:end:end]) {
				return
			}
		}
	}
}

// Count returns how many chunks Chunks yields for n elements.
func Count(n, size int) int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
