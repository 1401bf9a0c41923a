package climate

import "time"

// SplitRange decomposes [start, end] into contiguous, non-overlapping chunks of
// at most maxDays inclusive days each. The last chunk may be shorter.
// It returns nil when end precedes start or maxDays is not positive; callers
// validate ranges before splitting.
func SplitRange(start, end time.Time, maxDays int) []DateRange {
	start, end = Day(start), Day(end)
	if end.Before(start) || maxDays < 1 {
		return nil
	}

	var chunks []DateRange
	for cur := start; !cur.After(end); {
		chunkEnd := cur.AddDate(0, 0, maxDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, DateRange{Start: cur, End: chunkEnd})
		cur = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks
}
