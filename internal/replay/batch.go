package replay

import "fmt"

// Batch is an inclusive range of operation sequence numbers.
type Batch struct {
	From uint64
	To   uint64
}

// SplitBatches cuts [from, to] into batches of at most size operations.
func SplitBatches(from, to, size uint64) ([]Batch, error) {
	if size == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("last sequence must be >= first sequence")
	}

	batches := make([]Batch, 0, (to-from)/size+1)
	for start := from; ; start += size {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		batches = append(batches, Batch{From: start, To: end})
		if end == to {
			return batches, nil
		}
	}
}
