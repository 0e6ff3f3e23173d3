package ingest

import "errors"

// DefaultChunkSize is the number of records handed to one deserialization task.
const DefaultChunkSize = 100

// ErrInvalidChunkSize is returned by Chunks for a non-positive size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunks splits items into consecutive batches of size elements; the last
// batch holds the remainder. Concatenating the batches yields items again.
// Batches share items' backing array but are capped so appending to one
// cannot overwrite the next.
func Chunks[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if len(items) == 0 {
		return nil, nil
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches, nil
}
